package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"lease-metrics/pkg/metrics/exposition"
)

func TestNewExemplar(t *testing.T) {
	tests := []struct {
		name string
		kv   []string
		want []exposition.ExemplarLabel
	}{
		{
			name: "pairs",
			kv:   []string{"trace_id", "abc", "user", "42"},
			want: []exposition.ExemplarLabel{{Name: "trace_id", Value: "abc"}, {Name: "user", Value: "42"}},
		},
		{
			name: "trailing key",
			kv:   []string{"trace_id"},
			want: []exposition.ExemplarLabel{{Name: "trace_id"}},
		},
		{
			name: "non ascii replaced",
			kv:   []string{"city", "Zürich"},
			want: []exposition.ExemplarLabel{{Name: "city", Value: "Z?rich"}},
		},
		{
			name: "empty",
			want: []exposition.ExemplarLabel{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewExemplar(tt.kv...).Labels)
		})
	}
}

func TestExemplarFromContext(t *testing.T) {
	t.Run("without span", func(t *testing.T) {
		assert.Empty(t, ExemplarFromContext(context.Background()).Labels)
	})

	t.Run("with span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

		ctx, span := tp.Tracer("metrics-test").Start(context.Background(), "operation")
		defer span.End()

		e := ExemplarFromContext(ctx)
		require.Len(t, e.Labels, 2)
		assert.Equal(t, TraceIDLabel, e.Labels[0].Name)
		assert.Equal(t, span.SpanContext().TraceID().String(), e.Labels[0].Value)
		assert.Equal(t, SpanIDLabel, e.Labels[1].Name)
		assert.Equal(t, span.SpanContext().SpanID().String(), e.Labels[1].Value)
	})
}

func newExemplarCounter(t *testing.T, b *ExemplarBehavior) (*Registry, *Counter) {
	t.Helper()
	clock := NewMockClock(time.Unix(1700000000, 123*int64(time.Millisecond)))
	r := newTestRegistry(t, WithClock(clock))
	c, err := NewFactory(r).CreateCounter("requests_total", "", &CounterConfig{
		MetricConfig: MetricConfig{LabelNames: []string{"method"}, ExemplarBehavior: b},
	})
	require.NoError(t, err)
	return r, c
}

func TestCounter_AddWithExemplar(t *testing.T) {
	r, c := newExemplarCounter(t, nil)
	get := c.WithLabels("GET")

	require.NoError(t, get.AddWithExemplar(3, NewExemplar("trace_id", "abc")))

	om := render(t, r, exposition.FormatOpenMetrics)
	assert.Contains(t, om, `requests_total{method="GET"} 3.0 # {trace_id="abc"} 3.0 1700000000.123`+"\n")

	prom := render(t, r, exposition.FormatPrometheus)
	assert.Contains(t, prom, `requests_total{method="GET"} 3`+"\n")
	assert.NotContains(t, prom, "trace_id")
}

func TestCounter_ExemplarValidation(t *testing.T) {
	tests := []struct {
		name    string
		kv      []string
		wantErr bool
	}{
		{name: "at limit", kv: []string{"k", strings.Repeat("a", 127)}},
		{name: "over limit", kv: []string{"k", strings.Repeat("a", 128)}, wantErr: true},
		{name: "duplicate key", kv: []string{"a", "1", "a", "2"}, wantErr: true},
		{name: "invalid key", kv: []string{"0bad", "1"}, wantErr: true},
		{name: "empty is a no-op", kv: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newExemplarCounter(t, nil)
			get := c.WithLabels("GET")
			get.Inc()

			err := get.AddWithExemplar(2, NewExemplar(tt.kv...))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidExemplar)
				assert.Equal(t, 1.0, get.Value(), "rejected exemplar leaves the value unchanged")
				assert.Nil(t, get.exemplar.load())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 3.0, get.Value())
		})
	}
}

func TestExemplar_MinInterval(t *testing.T) {
	_, c := newExemplarCounter(t, &ExemplarBehavior{MinInterval: 10 * time.Second})
	get := c.WithLabels("GET")
	base := time.Unix(1700000000, 0)

	at := func(d time.Duration, id string) exposition.Exemplar {
		e := NewExemplar("trace_id", id)
		e.Timestamp = base.Add(d)
		return e
	}

	require.NoError(t, get.AddWithExemplar(1, at(0, "first")))
	require.NoError(t, get.AddWithExemplar(1, at(time.Second, "second")))
	assert.Equal(t, "first", get.exemplar.load().Labels[0].Value)
	assert.Equal(t, 2.0, get.Value(), "sampling only affects the exemplar")

	require.NoError(t, get.AddWithExemplar(1, at(10*time.Second, "third")))
	assert.Equal(t, "third", get.exemplar.load().Labels[0].Value)
}

func TestHistogram_ObserveWithExemplar(t *testing.T) {
	clock := NewMockClock(time.Unix(1700000000, 0))
	r := newTestRegistry(t, WithClock(clock))
	h, err := NewFactory(r).CreateHistogram("latency_seconds", "", &HistogramConfig{Buckets: []float64{0.1, 1}})
	require.NoError(t, err)

	require.NoError(t, h.ObserveWithExemplar(0.5, NewExemplar("trace_id", "t1")))
	err = h.ObserveWithExemplar(0.5, NewExemplar("a", "1", "a", "1"))
	require.ErrorIs(t, err, ErrInvalidExemplar)
	assert.Equal(t, uint64(1), h.Count())

	om := render(t, r, exposition.FormatOpenMetrics)
	assert.Contains(t, om, `latency_seconds_bucket{le="0.1"} 0`+"\n")
	assert.Contains(t, om, `latency_seconds_bucket{le="1.0"} 1 # {trace_id="t1"} 0.5 1700000000.000`+"\n")
	assert.Contains(t, om, `latency_seconds_bucket{le="+Inf"} 1`+"\n")

	mfs, err := r.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)
	buckets := mfs[0].GetMetric()[0].GetHistogram().GetBucket()
	require.Len(t, buckets, 2)
	assert.Nil(t, buckets[0].GetExemplar())
	require.NotNil(t, buckets[1].GetExemplar())
	assert.Equal(t, 0.5, buckets[1].GetExemplar().GetValue())
	assert.Equal(t, "t1", buckets[1].GetExemplar().GetLabel()[0].GetValue())
}

func TestCounter_GatherExemplar(t *testing.T) {
	r, c := newExemplarCounter(t, nil)
	require.NoError(t, c.WithLabels("GET").AddWithExemplar(1, NewExemplar("trace_id", "abc")))

	mfs, err := r.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 1)

	ex := mfs[0].GetMetric()[0].GetCounter().GetExemplar()
	require.NotNil(t, ex)
	assert.Equal(t, 1.0, ex.GetValue())
	assert.Equal(t, int64(1700000000), ex.GetTimestamp().GetSeconds())
	assert.Equal(t, "trace_id", ex.GetLabel()[0].GetName())
}
