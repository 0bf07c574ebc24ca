package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"

	"lease-metrics/pkg/metrics/exposition"
)

// Exemplar label names filled by ExemplarFromContext.
const (
	TraceIDLabel = "trace_id"
	SpanIDLabel  = "span_id"
)

// NewExemplar builds an exemplar from alternating keys and values. A
// trailing key without a value gets an empty value. Runes outside the ASCII
// range are replaced with '?'.
func NewExemplar(kv ...string) exposition.Exemplar {
	ls := make([]exposition.ExemplarLabel, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		l := exposition.ExemplarLabel{Name: asciiOnly(kv[i])}
		if i+1 < len(kv) {
			l.Value = asciiOnly(kv[i+1])
		}
		ls = append(ls, l)
	}
	return exposition.Exemplar{Labels: ls}
}

func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0x7f {
			return '?'
		}
		return r
	}, s)
}

// ExemplarFromContext returns an exemplar holding the trace and span IDs of
// the span in ctx. Without a valid span the exemplar is empty and recording
// it is a no-op.
func ExemplarFromContext(ctx context.Context) exposition.Exemplar {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return exposition.Exemplar{}
	}
	return NewExemplar(
		TraceIDLabel, sc.TraceID().String(),
		SpanIDLabel, sc.SpanID().String(),
	)
}

// exemplarSlot stores the latest exemplar of a sample.
type exemplarSlot struct {
	limiter *rate.Limiter
	current atomic.Pointer[exposition.Exemplar]
}

func newExemplarSlot(b ExemplarBehavior) *exemplarSlot {
	s := &exemplarSlot{}
	if b.MinInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(b.MinInterval), 1)
	}
	return s
}

func (s *exemplarSlot) offer(e *exposition.Exemplar) {
	if s.limiter != nil && !s.limiter.AllowN(e.Timestamp, 1) {
		return
	}
	s.current.Store(e)
}

func (s *exemplarSlot) load() *exposition.Exemplar {
	return s.current.Load()
}

// prepareExemplar validates e and binds it to the observed value. It returns
// nil without error for an exemplar without labels.
func (b *childBase) prepareExemplar(e exposition.Exemplar, value float64) (*exposition.Exemplar, error) {
	if len(e.Labels) == 0 {
		return nil, nil
	}
	if err := exposition.ValidateExemplarLabels(e.Labels); err != nil {
		b.env.logger.Debug("exemplar rejected",
			slog.String("metric", b.env.metric),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", b.env.metric, err)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = b.env.clock.Now()
	}
	return &exposition.Exemplar{
		Labels:    slices.Clone(e.Labels),
		Value:     value,
		Timestamp: ts,
	}, nil
}

// exemplarProto converts e for Gather.
func exemplarProto(e *exposition.Exemplar) *dto.Exemplar {
	if e == nil {
		return nil
	}
	pairs := make([]*dto.LabelPair, len(e.Labels))
	for i, l := range e.Labels {
		pairs[i] = &dto.LabelPair{Name: proto.String(l.Name), Value: proto.String(l.Value)}
	}
	return &dto.Exemplar{
		Label:     pairs,
		Value:     proto.Float64(e.Value),
		Timestamp: timestamppb.New(e.Timestamp),
	}
}
