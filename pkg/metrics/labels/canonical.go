package labels

// Well-known numeric label names.
const (
	BucketLabel   = "le"
	QuantileLabel = "quantile"
)

// Canonical is a numeric label attached to individual samples of a family,
// such as a histogram bucket bound or a summary quantile. The label is
// rendered once per output format at construction.
type Canonical struct {
	name        string
	value       float64
	prometheus  []byte
	openMetrics []byte
}

// NewCanonical renders name=value for both text formats.
func NewCanonical(name string, value float64) *Canonical {
	return &Canonical{
		name:        name,
		value:       value,
		prometheus:  renderCanonical(name, value, false),
		openMetrics: renderCanonical(name, value, true),
	}
}

func renderCanonical(name string, value float64, openMetrics bool) []byte {
	b := make([]byte, 0, len(name)+16)
	b = append(b, name...)
	b = append(b, '=', '"')
	b = AppendFloat(b, value, openMetrics)
	return append(b, '"')
}

// Name returns the label name.
func (c *Canonical) Name() string { return c.name }

// Value returns the numeric label value.
func (c *Canonical) Value() float64 { return c.value }

// Render returns the rendered label for the selected format. The returned
// slice must not be modified.
func (c *Canonical) Render(openMetrics bool) []byte {
	if openMetrics {
		return c.openMetrics
	}
	return c.prometheus
}

// Bounds renders one Canonical per bucket upper bound.
func Bounds(upperBounds []float64) []*Canonical {
	out := make([]*Canonical, len(upperBounds))
	for i, ub := range upperBounds {
		out[i] = NewCanonical(BucketLabel, ub)
	}
	return out
}
