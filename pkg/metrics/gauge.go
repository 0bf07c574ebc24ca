package metrics

import (
	"context"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"

	"lease-metrics/internal/cell"
	"lease-metrics/pkg/metrics/exposition"
)

// Gauge is a metric that can go up and down.
type Gauge struct {
	*collector[*GaugeChild]
}

// GaugeChild is the gauge for one combination of label values.
type GaugeChild struct {
	childBase
	value cell.Float
}

func newGaugeChild() *GaugeChild { return &GaugeChild{} }

// Set sets the gauge to v.
func (g *GaugeChild) Set(v float64) {
	g.value.Set(v)
	g.markWritten()
}

// Inc increments the gauge by one.
func (g *GaugeChild) Inc() { g.Add(1) }

// Dec decrements the gauge by one.
func (g *GaugeChild) Dec() { g.Add(-1) }

// Add adds v, which may be negative.
func (g *GaugeChild) Add(v float64) {
	g.value.Add(v)
	g.markWritten()
}

// Sub subtracts v.
func (g *GaugeChild) Sub(v float64) { g.Add(-v) }

// IncTo raises the gauge to v if it is currently lower.
func (g *GaugeChild) IncTo(v float64) {
	g.value.IncrementTo(v)
	g.markWritten()
}

// DecTo lowers the gauge to v if it is currently higher.
func (g *GaugeChild) DecTo(v float64) {
	g.value.DecrementTo(v)
	g.markWritten()
}

// SetToCurrentTime sets the gauge to the current Unix time in seconds.
func (g *GaugeChild) SetToCurrentTime() {
	now := g.env.clock.Now()
	g.Set(float64(now.UnixNano()) / 1e9)
}

// Value returns the current value.
func (g *GaugeChild) Value() float64 { return g.value.Value() }

func (g *GaugeChild) collect(ctx context.Context, s exposition.Serializer, name string) error {
	return s.WriteMetricPoint(ctx, name, exposition.SuffixNone, g.flattened, nil, g.value.Value(), nil)
}

func (g *GaugeChild) write(m *dto.Metric) {
	m.Gauge = &dto.Gauge{Value: proto.Float64(g.value.Value())}
}

// Set sets the unlabelled gauge.
func (g *Gauge) Set(v float64) { g.Unlabelled().Set(v) }

// Inc increments the unlabelled gauge.
func (g *Gauge) Inc() { g.Unlabelled().Inc() }

// Dec decrements the unlabelled gauge.
func (g *Gauge) Dec() { g.Unlabelled().Dec() }

// Add adds v to the unlabelled gauge.
func (g *Gauge) Add(v float64) { g.Unlabelled().Add(v) }

// Sub subtracts v from the unlabelled gauge.
func (g *Gauge) Sub(v float64) { g.Unlabelled().Sub(v) }

// IncTo raises the unlabelled gauge to v.
func (g *Gauge) IncTo(v float64) { g.Unlabelled().IncTo(v) }

// DecTo lowers the unlabelled gauge to v.
func (g *Gauge) DecTo(v float64) { g.Unlabelled().DecTo(v) }

// SetToCurrentTime sets the unlabelled gauge to the current Unix time.
func (g *Gauge) SetToCurrentTime() { g.Unlabelled().SetToCurrentTime() }

// Value returns the value of the unlabelled gauge.
func (g *Gauge) Value() float64 { return g.Unlabelled().Value() }
