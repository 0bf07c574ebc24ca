package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"go.uber.org/atomic"
	"google.golang.org/protobuf/proto"

	"lease-metrics/internal/cell"
	"lease-metrics/pkg/metrics/exposition"
	"lease-metrics/pkg/metrics/labels"
)

// Histogram counts observations into configurable buckets.
type Histogram struct {
	*collector[*HistogramChild]
}

// histogramLayout is shared by all children of one histogram.
type histogramLayout struct {
	upper  []float64
	bounds []*labels.Canonical
}

func newHistogramLayout(upper []float64) *histogramLayout {
	return &histogramLayout{
		upper:  upper,
		bounds: labels.Bounds(append(append([]float64(nil), upper...), math.Inf(+1))),
	}
}

// String is used to detect conflicting registrations.
func (l *histogramLayout) String() string {
	return fmt.Sprintf("buckets %v", l.upper)
}

// HistogramChild is the histogram for one combination of label values.
type HistogramChild struct {
	childBase
	layout    *histogramLayout
	counts    []atomic.Uint64
	sum       cell.Float
	exemplars []*exemplarSlot
}

func newHistogramChild(layout *histogramLayout, b ExemplarBehavior) func() *HistogramChild {
	return func() *HistogramChild {
		h := &HistogramChild{
			layout:    layout,
			counts:    make([]atomic.Uint64, len(layout.bounds)),
			exemplars: make([]*exemplarSlot, len(layout.bounds)),
		}
		for i := range h.exemplars {
			h.exemplars[i] = newExemplarSlot(b)
		}
		return h
	}
}

// bucketIndex returns the first bucket whose upper bound is >= v. Values
// above every finite bound and NaN fall into the +Inf bucket.
func (h *HistogramChild) bucketIndex(v float64) int {
	return sort.SearchFloat64s(h.layout.upper, v)
}

// Observe records one observation.
func (h *HistogramChild) Observe(v float64) { h.ObserveN(v, 1) }

// ObserveN records count observations of the same value.
func (h *HistogramChild) ObserveN(v float64, count uint64) {
	if count == 0 {
		return
	}
	h.counts[h.bucketIndex(v)].Add(count)
	h.sum.Add(v * float64(count))
	h.markWritten()
}

// ObserveWithExemplar records one observation and attaches e to the bucket
// it falls into. An invalid exemplar fails the call and records nothing.
func (h *HistogramChild) ObserveWithExemplar(v float64, e exposition.Exemplar) error {
	ex, err := h.prepareExemplar(e, v)
	if err != nil {
		return err
	}
	i := h.bucketIndex(v)
	h.counts[i].Inc()
	h.sum.Add(v)
	if ex != nil {
		h.exemplars[i].offer(ex)
	}
	h.markWritten()
	return nil
}

// Count returns the number of observations.
func (h *HistogramChild) Count() uint64 {
	var n uint64
	for i := range h.counts {
		n += h.counts[i].Load()
	}
	return n
}

// Sum returns the sum of all observations.
func (h *HistogramChild) Sum() float64 { return h.sum.Value() }

// BucketCounts returns the cumulative count of every bucket, +Inf last.
func (h *HistogramChild) BucketCounts() []uint64 {
	out := make([]uint64, len(h.counts))
	var cum uint64
	for i := range h.counts {
		cum += h.counts[i].Load()
		out[i] = cum
	}
	return out
}

func (h *HistogramChild) collect(ctx context.Context, s exposition.Serializer, name string) error {
	sum := h.sum.Value()
	cum := h.BucketCounts()
	for i, bound := range h.layout.bounds {
		if err := s.WriteMetricPoint(ctx, name, exposition.SuffixBucket, h.flattened, bound,
			float64(cum[i]), h.exemplars[i].load()); err != nil {
			return err
		}
	}
	if err := s.WriteMetricPoint(ctx, name, exposition.SuffixSum, h.flattened, nil, sum, nil); err != nil {
		return err
	}
	return s.WriteMetricPoint(ctx, name, exposition.SuffixCount, h.flattened, nil, float64(cum[len(cum)-1]), nil)
}

func (h *HistogramChild) write(m *dto.Metric) {
	cum := h.BucketCounts()
	buckets := make([]*dto.Bucket, len(h.layout.upper))
	for i, ub := range h.layout.upper {
		buckets[i] = &dto.Bucket{
			CumulativeCount: proto.Uint64(cum[i]),
			UpperBound:      proto.Float64(ub),
			Exemplar:        exemplarProto(h.exemplars[i].load()),
		}
	}
	m.Histogram = &dto.Histogram{
		SampleCount: proto.Uint64(cum[len(cum)-1]),
		SampleSum:   proto.Float64(h.sum.Value()),
		Bucket:      buckets,
	}
}

// Observe records an observation on the unlabelled histogram.
func (h *Histogram) Observe(v float64) { h.Unlabelled().Observe(v) }

// ObserveN records count observations on the unlabelled histogram.
func (h *Histogram) ObserveN(v float64, count uint64) { h.Unlabelled().ObserveN(v, count) }

// ObserveWithExemplar records an observation with an exemplar on the
// unlabelled histogram.
func (h *Histogram) ObserveWithExemplar(v float64, e exposition.Exemplar) error {
	return h.Unlabelled().ObserveWithExemplar(v, e)
}

// Count returns the observation count of the unlabelled histogram.
func (h *Histogram) Count() uint64 { return h.Unlabelled().Count() }

// Sum returns the observation sum of the unlabelled histogram.
func (h *Histogram) Sum() float64 { return h.Unlabelled().Sum() }
