package metrics

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/beorn7/perks/quantile"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/atomic"
	"google.golang.org/protobuf/proto"

	"lease-metrics/internal/cell"
	"lease-metrics/pkg/metrics/exposition"
	"lease-metrics/pkg/metrics/labels"
)

// Summary tracks the sum and count of observations and estimates quantiles
// over a sliding time window.
type Summary struct {
	*collector[*SummaryChild]
}

// summaryLayout is shared by all children of one summary.
type summaryLayout struct {
	objectives []QuantileEpsilon
	quantiles  []*labels.Canonical
	targets    map[float64]float64
	maxAge     time.Duration
	ageBuckets int
	bufferSize int
}

func newSummaryLayout(cfg SummaryConfig) *summaryLayout {
	cfg = cfg.withDefaults()
	objectives := slices.Clone(cfg.Objectives)
	slices.SortFunc(objectives, func(a, b QuantileEpsilon) int {
		return cmp.Compare(a.Quantile, b.Quantile)
	})

	l := &summaryLayout{
		objectives: objectives,
		quantiles:  make([]*labels.Canonical, len(objectives)),
		targets:    make(map[float64]float64, len(objectives)),
		maxAge:     cfg.MaxAge,
		ageBuckets: cfg.AgeBuckets,
		bufferSize: cfg.BufferSize,
	}
	for i, o := range objectives {
		l.quantiles[i] = labels.NewCanonical(labels.QuantileLabel, o.Quantile)
		l.targets[o.Quantile] = o.Epsilon
	}
	return l
}

// String is used to detect conflicting registrations.
func (l *summaryLayout) String() string {
	return fmt.Sprintf("objectives %v max age %s age buckets %d", l.objectives, l.maxAge, l.ageBuckets)
}

func (l *summaryLayout) streamDuration() time.Duration {
	return l.maxAge / time.Duration(l.ageBuckets)
}

// SummaryChild is the summary for one combination of label values.
type SummaryChild struct {
	childBase
	layout *summaryLayout
	count  atomic.Uint64
	sum    cell.Float

	// Quantile state. Observations are buffered in hot and merged into every
	// stream; queries read the head stream, which covers the full window.
	mu          sync.Mutex
	hot         []float64
	streams     []*quantile.Stream
	head        int
	headExpires time.Time
}

func newSummaryChild(layout *summaryLayout) func() *SummaryChild {
	return func() *SummaryChild {
		s := &SummaryChild{layout: layout}
		if len(layout.objectives) > 0 {
			s.hot = make([]float64, 0, layout.bufferSize)
			s.streams = make([]*quantile.Stream, layout.ageBuckets)
			for i := range s.streams {
				s.streams[i] = quantile.NewTargeted(layout.targets)
			}
		}
		return s
	}
}

// Observe records one observation.
func (s *SummaryChild) Observe(v float64) {
	s.sum.Add(v)
	s.count.Inc()
	if s.streams != nil {
		now := s.env.clock.Now()
		s.mu.Lock()
		s.rotateLocked(now)
		s.hot = append(s.hot, v)
		if len(s.hot) >= s.layout.bufferSize {
			s.flushLocked()
		}
		s.mu.Unlock()
	}
	s.markWritten()
}

// Count returns the number of observations.
func (s *SummaryChild) Count() uint64 { return s.count.Load() }

// Sum returns the sum of all observations.
func (s *SummaryChild) Sum() float64 { return s.sum.Value() }

// Quantile returns the estimate of quantile q over the current window, or NaN
// when the window holds no observation.
func (s *SummaryChild) Quantile(q float64) float64 {
	if s.streams == nil {
		return math.NaN()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked(s.env.clock.Now(), q)
}

func (s *SummaryChild) queryLocked(now time.Time, q float64) float64 {
	s.rotateLocked(now)
	s.flushLocked()
	head := s.streams[s.head]
	if head.Count() == 0 {
		return math.NaN()
	}
	return head.Query(q)
}

// rotateLocked resets the head stream for every elapsed stream duration.
func (s *SummaryChild) rotateLocked(now time.Time) {
	d := s.layout.streamDuration()
	if s.headExpires.IsZero() {
		s.headExpires = now.Add(d)
		return
	}
	if now.Before(s.headExpires) {
		return
	}
	s.flushLocked()
	if now.Sub(s.headExpires) >= s.layout.maxAge {
		for _, st := range s.streams {
			st.Reset()
		}
		s.headExpires = now.Add(d)
		return
	}
	for !now.Before(s.headExpires) {
		s.streams[s.head].Reset()
		s.head = (s.head + 1) % len(s.streams)
		s.headExpires = s.headExpires.Add(d)
	}
}

func (s *SummaryChild) flushLocked() {
	for _, v := range s.hot {
		for _, st := range s.streams {
			st.Insert(v)
		}
	}
	s.hot = s.hot[:0]
}

// quantileValues computes every objective in one critical section.
func (s *SummaryChild) quantileValues() []float64 {
	if s.streams == nil {
		return nil
	}
	now := s.env.clock.Now()
	out := make([]float64, len(s.layout.objectives))
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.layout.objectives {
		out[i] = s.queryLocked(now, o.Quantile)
	}
	return out
}

func (s *SummaryChild) collect(ctx context.Context, ser exposition.Serializer, name string) error {
	values := s.quantileValues()
	sum, count := s.sum.Value(), s.count.Load()
	for i, q := range s.layout.quantiles {
		if err := ser.WriteMetricPoint(ctx, name, exposition.SuffixNone, s.flattened, q, values[i], nil); err != nil {
			return err
		}
	}
	if err := ser.WriteMetricPoint(ctx, name, exposition.SuffixSum, s.flattened, nil, sum, nil); err != nil {
		return err
	}
	return ser.WriteMetricPoint(ctx, name, exposition.SuffixCount, s.flattened, nil, float64(count), nil)
}

func (s *SummaryChild) write(m *dto.Metric) {
	values := s.quantileValues()
	quantiles := make([]*dto.Quantile, len(values))
	for i, o := range s.layout.objectives {
		quantiles[i] = &dto.Quantile{Quantile: proto.Float64(o.Quantile), Value: proto.Float64(values[i])}
	}
	m.Summary = &dto.Summary{
		SampleCount: proto.Uint64(s.count.Load()),
		SampleSum:   proto.Float64(s.sum.Value()),
		Quantile:    quantiles,
	}
}

// Observe records an observation on the unlabelled summary.
func (s *Summary) Observe(v float64) { s.Unlabelled().Observe(v) }

// Count returns the observation count of the unlabelled summary.
func (s *Summary) Count() uint64 { return s.Unlabelled().Count() }

// Sum returns the observation sum of the unlabelled summary.
func (s *Summary) Sum() float64 { return s.Unlabelled().Sum() }

// Quantile returns quantile q of the unlabelled summary.
func (s *Summary) Quantile(q float64) float64 { return s.Unlabelled().Quantile(q) }
