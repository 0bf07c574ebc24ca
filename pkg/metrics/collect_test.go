package metrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protodelim"

	"lease-metrics/pkg/metrics/exposition"
	"lease-metrics/pkg/metrics/labels"
)

// recordingSerializer records every call and fails the failAt-th one.
type recordingSerializer struct {
	calls  []string
	failAt int
	err    error
}

func (s *recordingSerializer) record(call string) error {
	s.calls = append(s.calls, call)
	if s.failAt > 0 && len(s.calls) == s.failAt {
		return s.err
	}
	return nil
}

func (s *recordingSerializer) WriteFamilyDeclaration(_ context.Context, name, help string, typ exposition.MetricType) error {
	return s.record(fmt.Sprintf("family %s %s %q", name, typ, help))
}

func (s *recordingSerializer) WriteMetricPoint(_ context.Context, name string, suffix exposition.Suffix,
	flattened labels.Set, canonical *labels.Canonical, value float64, _ *exposition.Exemplar) error {
	extra := ""
	if canonical != nil {
		extra = " " + string(canonical.Render(false))
	}
	return s.record(fmt.Sprintf("point %s%s %s%s %v", name, suffix, flattened.Prometheus(), extra, value))
}

func (s *recordingSerializer) WriteEnd(context.Context) error { return s.record("end") }

func (s *recordingSerializer) Flush(context.Context) error { return s.record("flush") }

func TestCollect_OpenMetricsCounter(t *testing.T) {
	r := newTestRegistry(t)
	c := NewFactory(r).MustCreateCounter("requests_total", "Total requests.", &CounterConfig{MetricConfig: labelNames("method")})

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			get := c.WithLabels("GET")
			get.Inc()
			get.Add(2)
		}()
	}
	wg.Wait()

	want := "# HELP requests Total requests.\n" +
		"# TYPE requests counter\n" +
		"requests_total{method=\"GET\"} 6.0\n" +
		"# EOF\n"
	assert.Equal(t, want, render(t, r, exposition.FormatOpenMetrics))
}

func TestCollect_CallOrder(t *testing.T) {
	r := newTestRegistry(t)
	f := NewFactory(r)
	g := f.MustCreateGauge("temperature", "", &GaugeConfig{MetricConfig: labelNames("room")})
	f.MustCreateCounter("unused_total", "Never written.", nil)
	h := f.MustCreateHistogram("size_bytes", "", &HistogramConfig{Buckets: []float64{10}})

	g.WithLabels("kitchen").Set(21)
	g.WithLabels("attic").Set(30)
	h.Observe(4)

	s := &recordingSerializer{}
	require.NoError(t, r.CollectAndSerialize(context.Background(), s))

	want := []string{
		`family temperature gauge ""`,
		`point temperature room="kitchen" 21`,
		`point temperature room="attic" 30`,
		`family size_bytes histogram ""`,
		`point size_bytes_bucket  le="10" 1`,
		`point size_bytes_bucket  le="+Inf" 1`,
		`point size_bytes_sum  4`,
		`point size_bytes_count  1`,
		"end",
		"flush",
	}
	if diff := cmp.Diff(want, s.calls); diff != "" {
		t.Errorf("serializer calls mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([][]string{{"kitchen"}, {"attic"}}, g.LabelValues()); diff != "" {
		t.Errorf("label values mismatch (-want +got):\n%s", diff)
	}
}

func TestCollect_SerializerErrors(t *testing.T) {
	boom := errors.New("disk full")

	tests := []struct {
		name    string
		failAt  int
		wantMsg string
	}{
		{name: "declaration", failAt: 1, wantMsg: "failed to write family requests_total"},
		{name: "point", failAt: 2, wantMsg: "failed to write family requests_total"},
		{name: "end", failAt: 3},
		{name: "flush", failAt: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t)
			NewFactory(r).MustCreateCounter("requests_total", "", nil).Inc()

			s := &recordingSerializer{failAt: tt.failAt, err: boom}
			err := r.CollectAndSerialize(context.Background(), s)
			require.ErrorIs(t, err, boom)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Len(t, s.calls, tt.failAt, "collection stops at the first error")
		})
	}
}

func TestCollect_Canceled(t *testing.T) {
	r := newTestRegistry(t)
	NewFactory(r).MustCreateCounter("requests_total", "", nil).Inc()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &recordingSerializer{}
	err := r.CollectAndSerialize(ctx, s)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.calls)
}

func TestCollect_EmptyRegistry(t *testing.T) {
	r := newTestRegistry(t)
	NewFactory(r).MustCreateGauge("idle", "", &GaugeConfig{MetricConfig: labelNames("x")})

	assert.Equal(t, "", render(t, r, exposition.FormatPrometheus))
	assert.Equal(t, "# EOF\n", render(t, r, exposition.FormatOpenMetrics))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestCollect_WriterError(t *testing.T) {
	r := newTestRegistry(t)
	NewFactory(r).MustCreateCounter("requests_total", "", nil).Inc()

	err := r.WriteTo(context.Background(), failingWriter{}, exposition.FormatPrometheus)
	require.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestCollect_Delimited(t *testing.T) {
	r := newTestRegistry(t)
	f := NewFactory(r)
	f.MustCreateCounter("requests_total", "Total requests.", &CounterConfig{MetricConfig: labelNames("method")}).
		WithLabels("GET").Add(2)
	f.MustCreateGauge("temperature", "", nil).Set(-1.5)

	mfs, err := r.Gather()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, exposition.WriteDelimited(&buf, mfs))

	var got []*dto.MetricFamily
	for buf.Len() > 0 {
		mf := &dto.MetricFamily{}
		require.NoError(t, protodelim.UnmarshalFrom(&buf, mf))
		got = append(got, mf)
	}
	require.Len(t, got, 2)

	assert.Equal(t, "requests_total", got[0].GetName())
	assert.Equal(t, dto.MetricType_COUNTER, got[0].GetType())
	assert.Equal(t, 2.0, got[0].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, "method", got[0].GetMetric()[0].GetLabel()[0].GetName())

	assert.Equal(t, "temperature", got[1].GetName())
	assert.Equal(t, -1.5, got[1].GetMetric()[0].GetGauge().GetValue())
}
