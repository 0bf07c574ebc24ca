package metrics

import (
	"maps"

	"lease-metrics/pkg/metrics/exposition"
	"lease-metrics/pkg/metrics/labels"
)

// Factory creates metrics in a registry. A factory may carry static labels
// and a default exemplar behavior that apply to every metric it creates.
//
// Factories are immutable; WithLabels and WithExemplarBehavior return new
// factories.
type Factory struct {
	registry *Registry
	static   map[string]string
	exemplar ExemplarBehavior
}

// NewFactory returns a factory creating metrics in r.
func NewFactory(r *Registry) *Factory {
	return &Factory{registry: r}
}

// DefaultFactory returns a factory bound to DefaultRegistry.
func DefaultFactory() *Factory {
	return NewFactory(DefaultRegistry())
}

// Registry returns the registry the factory creates metrics in.
func (f *Factory) Registry() *Registry { return f.registry }

// WithLabels returns a factory that adds static to the static labels of
// every metric it creates. The static label values become part of the
// metric identity, so the same name can be created once per label set.
func (f *Factory) WithLabels(static map[string]string) *Factory {
	merged := maps.Clone(f.static)
	if merged == nil {
		merged = make(map[string]string, len(static))
	}
	maps.Copy(merged, static)
	return &Factory{registry: f.registry, static: merged, exemplar: f.exemplar}
}

// WithExemplarBehavior returns a factory whose metrics use b unless their
// config overrides it.
func (f *Factory) WithExemplarBehavior(b ExemplarBehavior) *Factory {
	return &Factory{registry: f.registry, static: f.static, exemplar: b}
}

// CreateCounter creates a counter, or returns the existing one with the same
// identity.
func (f *Factory) CreateCounter(name, help string, cfg *CounterConfig) (*Counter, error) {
	if cfg == nil {
		cfg = &CounterConfig{}
	}
	if err := validateConfig("counter", cfg.MetricConfig); err != nil {
		return nil, err
	}
	col, err := register(f.registry, f.registration(name, help, exposition.TypeCounter, cfg.MetricConfig),
		newCounterChild(f.exemplarFor(cfg.MetricConfig)))
	if err != nil {
		return nil, err
	}
	return &Counter{col}, nil
}

// MustCreateCounter is like CreateCounter but panics on error.
func (f *Factory) MustCreateCounter(name, help string, cfg *CounterConfig) *Counter {
	return must(f.CreateCounter(name, help, cfg))
}

// CreateGauge creates a gauge, or returns the existing one with the same
// identity.
func (f *Factory) CreateGauge(name, help string, cfg *GaugeConfig) (*Gauge, error) {
	if cfg == nil {
		cfg = &GaugeConfig{}
	}
	if err := validateConfig("gauge", cfg.MetricConfig); err != nil {
		return nil, err
	}
	col, err := register(f.registry, f.registration(name, help, exposition.TypeGauge, cfg.MetricConfig),
		newGaugeChild)
	if err != nil {
		return nil, err
	}
	return &Gauge{col}, nil
}

// MustCreateGauge is like CreateGauge but panics on error.
func (f *Factory) MustCreateGauge(name, help string, cfg *GaugeConfig) *Gauge {
	return must(f.CreateGauge(name, help, cfg))
}

// CreateHistogram creates a histogram, or returns the existing one with the
// same identity. Registering the same identity with different buckets fails
// with ErrMetadataConflict.
func (f *Factory) CreateHistogram(name, help string, cfg *HistogramConfig) (*Histogram, error) {
	if cfg == nil {
		cfg = &HistogramConfig{}
	}
	if err := validateConfig("histogram", cfg); err != nil {
		return nil, err
	}
	layout := newHistogramLayout(cfg.upperBounds())
	reg := f.registration(name, help, exposition.TypeHistogram, cfg.MetricConfig)
	reg.layout = layout.String()
	reg.reserved = labels.BucketLabel

	col, err := register(f.registry, reg, newHistogramChild(layout, f.exemplarFor(cfg.MetricConfig)))
	if err != nil {
		return nil, err
	}
	return &Histogram{col}, nil
}

// MustCreateHistogram is like CreateHistogram but panics on error.
func (f *Factory) MustCreateHistogram(name, help string, cfg *HistogramConfig) *Histogram {
	return must(f.CreateHistogram(name, help, cfg))
}

// CreateSummary creates a summary, or returns the existing one with the same
// identity. Registering the same identity with different objectives fails
// with ErrMetadataConflict.
func (f *Factory) CreateSummary(name, help string, cfg *SummaryConfig) (*Summary, error) {
	if cfg == nil {
		cfg = &SummaryConfig{}
	}
	if err := validateConfig("summary", cfg); err != nil {
		return nil, err
	}
	layout := newSummaryLayout(*cfg)
	reg := f.registration(name, help, exposition.TypeSummary, cfg.MetricConfig)
	reg.layout = layout.String()
	reg.reserved = labels.QuantileLabel

	col, err := register(f.registry, reg, newSummaryChild(layout))
	if err != nil {
		return nil, err
	}
	return &Summary{col}, nil
}

// MustCreateSummary is like CreateSummary but panics on error.
func (f *Factory) MustCreateSummary(name, help string, cfg *SummaryConfig) *Summary {
	return must(f.CreateSummary(name, help, cfg))
}

func (f *Factory) registration(name, help string, typ exposition.MetricType, cfg MetricConfig) registration {
	return registration{
		name:          name,
		help:          help,
		typ:           typ,
		config:        cfg,
		factoryStatic: f.static,
	}
}

func (f *Factory) exemplarFor(cfg MetricConfig) ExemplarBehavior {
	if cfg.ExemplarBehavior != nil {
		return *cfg.ExemplarBehavior
	}
	return f.exemplar
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
