package metrics

import (
	"errors"

	"lease-metrics/pkg/metrics/exposition"
	"lease-metrics/pkg/metrics/labels"
)

var (
	// ErrMetadataConflict is returned when a metric is registered under a
	// name that already exists with a different type, help text, or bucket
	// or objective layout.
	ErrMetadataConflict = errors.New("metric metadata conflict")

	// ErrUnsupportedOperation is returned when reading a value through an
	// auto-leasing handle, whose children may expire between calls.
	ErrUnsupportedOperation = errors.New("operation not supported")

	// ErrInvalidExemplar is returned when an exemplar has duplicate keys,
	// invalid key names, or more than exposition.MaxExemplarRunes runes.
	ErrInvalidExemplar = exposition.ErrInvalidExemplar

	// ErrDoubleRelease is returned when a lease is released twice.
	ErrDoubleRelease = errors.New("lease already released")

	// ErrInvalidName is returned for metric or label names the exposition
	// formats cannot carry.
	ErrInvalidName = labels.ErrInvalidName

	// ErrInvalidLabels is returned when label values do not match the label
	// names of a metric, or when instance and static label names collide.
	ErrInvalidLabels = errors.New("invalid labels")

	// ErrStaticLabelsLocked is returned by Registry.SetStaticLabels once a
	// metric has been created in the registry.
	ErrStaticLabelsLocked = errors.New("static labels can no longer be changed")

	// ErrInvalidConfig is returned when a metric configuration fails
	// validation.
	ErrInvalidConfig = errors.New("invalid metric config")
)
