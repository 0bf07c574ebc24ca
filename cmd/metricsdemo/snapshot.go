package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lease-metrics/pkg/metrics"
	"lease-metrics/pkg/metrics/exposition"
)

// snapshotGatherer merges the demo registry with Go runtime metrics
// collected by a client_golang registry.
func snapshotGatherer(r *metrics.Registry) prometheus.Gatherer {
	runtime := prometheus.NewRegistry()
	runtime.MustRegister(collectors.NewGoCollector())
	return prometheus.Gatherers{r, runtime}
}

// writeSnapshot gathers g and writes the families to path in the
// length-delimited protobuf format.
//
// Parameters:
//   - path: destination file, created or truncated
//   - g: gatherer to snapshot
//
// Returns:
//   - int: number of families written
//   - error: gathering, file or encoding failure
func writeSnapshot(path string, g prometheus.Gatherer) (n int, err error) {
	mfs, err := g.Gather()
	if err != nil {
		return 0, fmt.Errorf("gather snapshot: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create snapshot: %w", err)
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	if err := exposition.WriteDelimited(f, mfs); err != nil {
		return 0, fmt.Errorf("write snapshot: %w", err)
	}
	return len(mfs), nil
}
