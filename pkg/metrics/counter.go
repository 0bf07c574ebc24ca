package metrics

import (
	"context"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"

	"lease-metrics/internal/cell"
	"lease-metrics/pkg/metrics/exposition"
)

// Counter is a monotonically increasing metric.
type Counter struct {
	*collector[*CounterChild]
}

// CounterChild is the counter for one combination of label values.
type CounterChild struct {
	childBase
	value    cell.Float
	exemplar *exemplarSlot
}

func newCounterChild(b ExemplarBehavior) func() *CounterChild {
	return func() *CounterChild {
		return &CounterChild{exemplar: newExemplarSlot(b)}
	}
}

// Inc increments the counter by one.
func (c *CounterChild) Inc() { c.Add(1) }

// Add increments the counter by v. It panics if v is negative.
func (c *CounterChild) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	c.value.Add(v)
	c.markWritten()
}

// IncTo raises the counter to v if it is currently lower.
func (c *CounterChild) IncTo(v float64) {
	c.value.IncrementTo(v)
	c.markWritten()
}

// AddWithExemplar increments the counter by v and records e as its exemplar.
// An invalid exemplar fails the call and leaves the counter unchanged.
func (c *CounterChild) AddWithExemplar(v float64, e exposition.Exemplar) error {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	ex, err := c.prepareExemplar(e, v)
	if err != nil {
		return err
	}
	c.value.Add(v)
	if ex != nil {
		c.exemplar.offer(ex)
	}
	c.markWritten()
	return nil
}

// Value returns the current value.
func (c *CounterChild) Value() float64 { return c.value.Value() }

func (c *CounterChild) collect(ctx context.Context, s exposition.Serializer, name string) error {
	return s.WriteMetricPoint(ctx, name, exposition.SuffixNone, c.flattened, nil, c.value.Value(), c.exemplar.load())
}

func (c *CounterChild) write(m *dto.Metric) {
	m.Counter = &dto.Counter{
		Value:    proto.Float64(c.value.Value()),
		Exemplar: exemplarProto(c.exemplar.load()),
	}
}

// Inc increments the unlabelled counter.
func (c *Counter) Inc() { c.Unlabelled().Inc() }

// Add increments the unlabelled counter by v.
func (c *Counter) Add(v float64) { c.Unlabelled().Add(v) }

// IncTo raises the unlabelled counter to v.
func (c *Counter) IncTo(v float64) { c.Unlabelled().IncTo(v) }

// AddWithExemplar increments the unlabelled counter with an exemplar.
func (c *Counter) AddWithExemplar(v float64, e exposition.Exemplar) error {
	return c.Unlabelled().AddWithExemplar(v, e)
}

// Value returns the value of the unlabelled counter.
func (c *Counter) Value() float64 { return c.Unlabelled().Value() }
