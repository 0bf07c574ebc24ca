package metrics

import (
	"slices"
	"time"

	"lease-metrics/pkg/metrics/exposition"
)

// ManagedLifetimeFactory creates metrics whose children live under leases.
type ManagedLifetimeFactory struct {
	factory *Factory
	config  ManagedLifetimeConfig
}

// WithManagedLifetime returns a factory for metrics whose children are
// removed after being idle for expiresAfter.
func (f *Factory) WithManagedLifetime(expiresAfter time.Duration) *ManagedLifetimeFactory {
	return f.WithManagedLifetimeConfig(DefaultManagedLifetimeConfig(expiresAfter))
}

// WithManagedLifetimeConfig is like WithManagedLifetime with full control
// over the engine configuration.
func (f *Factory) WithManagedLifetimeConfig(cfg ManagedLifetimeConfig) *ManagedLifetimeFactory {
	return &ManagedLifetimeFactory{factory: f, config: cfg}
}

// CreateCounter creates a counter with managed children.
func (mf *ManagedLifetimeFactory) CreateCounter(name, help string, cfg *CounterConfig) (*ManagedCounter, error) {
	if err := validateConfig("managed lifetime", mf.config); err != nil {
		return nil, err
	}
	c, err := mf.factory.CreateCounter(name, help, cfg)
	if err != nil {
		return nil, err
	}
	m, err := attachManagedLifetime(mf.factory.registry, c.collector, mf.config)
	if err != nil {
		return nil, err
	}
	return &ManagedCounter{m}, nil
}

// CreateGauge creates a gauge with managed children.
func (mf *ManagedLifetimeFactory) CreateGauge(name, help string, cfg *GaugeConfig) (*ManagedGauge, error) {
	if err := validateConfig("managed lifetime", mf.config); err != nil {
		return nil, err
	}
	g, err := mf.factory.CreateGauge(name, help, cfg)
	if err != nil {
		return nil, err
	}
	m, err := attachManagedLifetime(mf.factory.registry, g.collector, mf.config)
	if err != nil {
		return nil, err
	}
	return &ManagedGauge{m}, nil
}

// CreateHistogram creates a histogram with managed children.
func (mf *ManagedLifetimeFactory) CreateHistogram(name, help string, cfg *HistogramConfig) (*ManagedHistogram, error) {
	if err := validateConfig("managed lifetime", mf.config); err != nil {
		return nil, err
	}
	h, err := mf.factory.CreateHistogram(name, help, cfg)
	if err != nil {
		return nil, err
	}
	m, err := attachManagedLifetime(mf.factory.registry, h.collector, mf.config)
	if err != nil {
		return nil, err
	}
	return &ManagedHistogram{m}, nil
}

// CreateSummary creates a summary with managed children.
func (mf *ManagedLifetimeFactory) CreateSummary(name, help string, cfg *SummaryConfig) (*ManagedSummary, error) {
	if err := validateConfig("managed lifetime", mf.config); err != nil {
		return nil, err
	}
	s, err := mf.factory.CreateSummary(name, help, cfg)
	if err != nil {
		return nil, err
	}
	m, err := attachManagedLifetime(mf.factory.registry, s.collector, mf.config)
	if err != nil {
		return nil, err
	}
	return &ManagedSummary{m}, nil
}

// ManagedCounter is a counter whose children are leased.
type ManagedCounter struct {
	*ManagedLifetime[*CounterChild]
}

// ManagedGauge is a gauge whose children are leased.
type ManagedGauge struct {
	*ManagedLifetime[*GaugeChild]
}

// ManagedHistogram is a histogram whose children are leased.
type ManagedHistogram struct {
	*ManagedLifetime[*HistogramChild]
}

// ManagedSummary is a summary whose children are leased.
type ManagedSummary struct {
	*ManagedLifetime[*SummaryChild]
}

// WithExtendLifetimeOnUse returns a handle that takes and releases a lease
// around every write.
func (m *ManagedCounter) WithExtendLifetimeOnUse() *AutoLeasingCounter {
	return &AutoLeasingCounter{m.ManagedLifetime}
}

// WithExtendLifetimeOnUse returns a handle that takes and releases a lease
// around every write.
func (m *ManagedGauge) WithExtendLifetimeOnUse() *AutoLeasingGauge {
	return &AutoLeasingGauge{m.ManagedLifetime}
}

// WithExtendLifetimeOnUse returns a handle that takes and releases a lease
// around every write.
func (m *ManagedHistogram) WithExtendLifetimeOnUse() *AutoLeasingHistogram {
	return &AutoLeasingHistogram{m.ManagedLifetime}
}

// WithExtendLifetimeOnUse returns a handle that takes and releases a lease
// around every write.
func (m *ManagedSummary) WithExtendLifetimeOnUse() *AutoLeasingSummary {
	return &AutoLeasingSummary{m.ManagedLifetime}
}

// autoLeased binds label values to an engine. Every use holds a lease for
// its duration.
type autoLeased[C child] struct {
	engine *ManagedLifetime[C]
	values []string
}

func bindAutoLeased[C child](engine *ManagedLifetime[C], values []string) autoLeased[C] {
	if err := engine.collector.checkValues(values); err != nil {
		panic(err)
	}
	return autoLeased[C]{engine: engine, values: slices.Clone(values)}
}

func (a autoLeased[C]) use(fn func(C)) {
	// Label values were checked when binding; acquire cannot fail.
	_ = a.engine.WithLease(func(c C) error {
		fn(c)
		return nil
	}, a.values...)
}

func (a autoLeased[C]) useErr(fn func(C) error) error {
	return a.engine.WithLease(fn, a.values...)
}

// AutoLeasingCounter is a write-only counter handle that extends the lifetime
// of a child on every write.
type AutoLeasingCounter struct {
	engine *ManagedLifetime[*CounterChild]
}

// WithLabels binds label values. It panics on a label count mismatch.
func (a *AutoLeasingCounter) WithLabels(values ...string) *AutoLeasingCounterChild {
	return &AutoLeasingCounterChild{bindAutoLeased(a.engine, values)}
}

// Unlabelled binds the child of a metric without instance labels.
func (a *AutoLeasingCounter) Unlabelled() *AutoLeasingCounterChild { return a.WithLabels() }

// AutoLeasingCounterChild writes to one counter child under a lease.
type AutoLeasingCounterChild struct {
	autoLeased[*CounterChild]
}

// Inc increments the counter by one.
func (c *AutoLeasingCounterChild) Inc() { c.use((*CounterChild).Inc) }

// Add increments the counter by v. It panics if v is negative.
func (c *AutoLeasingCounterChild) Add(v float64) {
	c.use(func(ch *CounterChild) { ch.Add(v) })
}

// IncTo raises the counter to v.
func (c *AutoLeasingCounterChild) IncTo(v float64) {
	c.use(func(ch *CounterChild) { ch.IncTo(v) })
}

// AddWithExemplar increments the counter by v with an exemplar.
func (c *AutoLeasingCounterChild) AddWithExemplar(v float64, e exposition.Exemplar) error {
	return c.useErr(func(ch *CounterChild) error { return ch.AddWithExemplar(v, e) })
}

// Value always fails: the child may expire between calls.
func (c *AutoLeasingCounterChild) Value() (float64, error) {
	return 0, ErrUnsupportedOperation
}

// AutoLeasingGauge is a write-only gauge handle that extends the lifetime of
// a child on every write.
type AutoLeasingGauge struct {
	engine *ManagedLifetime[*GaugeChild]
}

// WithLabels binds label values. It panics on a label count mismatch.
func (a *AutoLeasingGauge) WithLabels(values ...string) *AutoLeasingGaugeChild {
	return &AutoLeasingGaugeChild{bindAutoLeased(a.engine, values)}
}

// Unlabelled binds the child of a metric without instance labels.
func (a *AutoLeasingGauge) Unlabelled() *AutoLeasingGaugeChild { return a.WithLabels() }

// AutoLeasingGaugeChild writes to one gauge child under a lease.
type AutoLeasingGaugeChild struct {
	autoLeased[*GaugeChild]
}

func (c *AutoLeasingGaugeChild) Set(v float64)   { c.use(func(g *GaugeChild) { g.Set(v) }) }
func (c *AutoLeasingGaugeChild) Inc()            { c.use((*GaugeChild).Inc) }
func (c *AutoLeasingGaugeChild) Dec()            { c.use((*GaugeChild).Dec) }
func (c *AutoLeasingGaugeChild) Add(v float64)   { c.use(func(g *GaugeChild) { g.Add(v) }) }
func (c *AutoLeasingGaugeChild) Sub(v float64)   { c.use(func(g *GaugeChild) { g.Sub(v) }) }
func (c *AutoLeasingGaugeChild) IncTo(v float64) { c.use(func(g *GaugeChild) { g.IncTo(v) }) }
func (c *AutoLeasingGaugeChild) DecTo(v float64) { c.use(func(g *GaugeChild) { g.DecTo(v) }) }
func (c *AutoLeasingGaugeChild) SetToCurrentTime() {
	c.use((*GaugeChild).SetToCurrentTime)
}

// Value always fails: the child may expire between calls.
func (c *AutoLeasingGaugeChild) Value() (float64, error) {
	return 0, ErrUnsupportedOperation
}

// AutoLeasingHistogram is a write-only histogram handle that extends the
// lifetime of a child on every observation.
type AutoLeasingHistogram struct {
	engine *ManagedLifetime[*HistogramChild]
}

// WithLabels binds label values. It panics on a label count mismatch.
func (a *AutoLeasingHistogram) WithLabels(values ...string) *AutoLeasingHistogramChild {
	return &AutoLeasingHistogramChild{bindAutoLeased(a.engine, values)}
}

// Unlabelled binds the child of a metric without instance labels.
func (a *AutoLeasingHistogram) Unlabelled() *AutoLeasingHistogramChild { return a.WithLabels() }

// AutoLeasingHistogramChild observes into one histogram child under a lease.
type AutoLeasingHistogramChild struct {
	autoLeased[*HistogramChild]
}

// Observe records one observation.
func (c *AutoLeasingHistogramChild) Observe(v float64) {
	c.use(func(h *HistogramChild) { h.Observe(v) })
}

// ObserveN records count observations of v.
func (c *AutoLeasingHistogramChild) ObserveN(v float64, count uint64) {
	c.use(func(h *HistogramChild) { h.ObserveN(v, count) })
}

// ObserveWithExemplar records one observation with an exemplar.
func (c *AutoLeasingHistogramChild) ObserveWithExemplar(v float64, e exposition.Exemplar) error {
	return c.useErr(func(h *HistogramChild) error { return h.ObserveWithExemplar(v, e) })
}

// Count always fails: the child may expire between calls.
func (c *AutoLeasingHistogramChild) Count() (uint64, error) {
	return 0, ErrUnsupportedOperation
}

// Sum always fails: the child may expire between calls.
func (c *AutoLeasingHistogramChild) Sum() (float64, error) {
	return 0, ErrUnsupportedOperation
}

// AutoLeasingSummary is a write-only summary handle that extends the
// lifetime of a child on every observation.
type AutoLeasingSummary struct {
	engine *ManagedLifetime[*SummaryChild]
}

// WithLabels binds label values. It panics on a label count mismatch.
func (a *AutoLeasingSummary) WithLabels(values ...string) *AutoLeasingSummaryChild {
	return &AutoLeasingSummaryChild{bindAutoLeased(a.engine, values)}
}

// Unlabelled binds the child of a metric without instance labels.
func (a *AutoLeasingSummary) Unlabelled() *AutoLeasingSummaryChild { return a.WithLabels() }

// AutoLeasingSummaryChild observes into one summary child under a lease.
type AutoLeasingSummaryChild struct {
	autoLeased[*SummaryChild]
}

// Observe records one observation.
func (c *AutoLeasingSummaryChild) Observe(v float64) {
	c.use(func(s *SummaryChild) { s.Observe(v) })
}

// Count always fails: the child may expire between calls.
func (c *AutoLeasingSummaryChild) Count() (uint64, error) {
	return 0, ErrUnsupportedOperation
}

// Sum always fails: the child may expire between calls.
func (c *AutoLeasingSummaryChild) Sum() (float64, error) {
	return 0, ErrUnsupportedOperation
}

// Quantile always fails: the child may expire between calls.
func (c *AutoLeasingSummaryChild) Quantile(float64) (float64, error) {
	return 0, ErrUnsupportedOperation
}
