package exposition

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"lease-metrics/pkg/metrics/labels"
)

// MaxExemplarRunes is the OpenMetrics limit on the combined length of all
// exemplar label names and values.
const MaxExemplarRunes = 128

// ErrInvalidExemplar is returned for exemplars the OpenMetrics format cannot
// carry.
var ErrInvalidExemplar = errors.New("invalid exemplar")

// ExemplarLabel is a single key/value pair of an exemplar.
type ExemplarLabel struct {
	Name  string
	Value string
}

// Exemplar links one observation to external context, typically a trace.
type Exemplar struct {
	Labels    []ExemplarLabel
	Value     float64
	Timestamp time.Time
}

// ValidateExemplarLabels rejects duplicate keys, invalid label names and
// label sets whose names and values exceed MaxExemplarRunes runes in total.
func ValidateExemplarLabels(ls []ExemplarLabel) error {
	runes := 0
	for i, l := range ls {
		if err := labels.ValidateLabelName(l.Name); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidExemplar, err)
		}
		if !utf8.ValidString(l.Value) {
			return fmt.Errorf("%w: value of %q is not valid UTF-8", ErrInvalidExemplar, l.Name)
		}
		for _, prev := range ls[:i] {
			if prev.Name == l.Name {
				return fmt.Errorf("%w: duplicate label %q", ErrInvalidExemplar, l.Name)
			}
		}
		runes += utf8.RuneCountInString(l.Name) + utf8.RuneCountInString(l.Value)
	}
	if runes > MaxExemplarRunes {
		return fmt.Errorf("%w: %d runes exceeds the limit of %d", ErrInvalidExemplar, runes, MaxExemplarRunes)
	}
	return nil
}

// Validate checks the exemplar labels.
func (e *Exemplar) Validate() error {
	return ValidateExemplarLabels(e.Labels)
}

// appendExemplar writes ` # {k="v",...} value [timestamp]`.
func appendExemplar(b []byte, e *Exemplar) []byte {
	b = append(b, " # {"...)
	for i, l := range e.Labels {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, l.Name...)
		b = append(b, '=', '"')
		b = labels.AppendEscapedValue(b, l.Value)
		b = append(b, '"')
	}
	b = append(b, "} "...)
	b = labels.AppendFloat(b, e.Value, true)
	if !e.Timestamp.IsZero() {
		b = append(b, ' ')
		b = appendTimestamp(b, e.Timestamp)
	}
	return b
}

// appendTimestamp renders t as seconds since the epoch with millisecond
// precision.
func appendTimestamp(b []byte, t time.Time) []byte {
	ms := t.UnixMilli()
	if ms < 0 {
		b = append(b, '-')
		ms = -ms
	}
	return fmt.Appendf(b, "%d.%03d", ms/1000, ms%1000)
}
