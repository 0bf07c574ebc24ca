package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"unicode/utf8"

	"go.uber.org/atomic"

	"lease-metrics/pkg/metrics/exposition"
	"lease-metrics/pkg/metrics/labels"
)

// Registry holds metric families and renders them on collection.
//
// A Registry is safe for concurrent use. Registering metrics, writing to
// children and collecting may all happen at the same time.
type Registry struct {
	logger *slog.Logger
	clock  Clock

	mu       sync.RWMutex
	families map[string]*family
	order    []*family

	// static is immutable once frozen is set.
	static labels.Set
	frozen atomic.Bool

	callbackMu sync.RWMutex
	callbacks  []func(ctx context.Context) error

	enginesMu sync.Mutex
	engines   []sweeper
	closed    bool
}

// sweeper is the part of a leasing engine the registry manages.
type sweeper interface {
	start()
	Close()
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock sets the clock used for expiry, exemplar timestamps and
// SetToCurrentTime. The default is SystemClock.
func WithClock(clock Clock) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:   slog.New(slog.DiscardHandler),
		clock:    &SystemClock{},
		families: make(map[string]*family),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry, creating it on first
// use.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// SetStaticLabels sets labels attached to every metric of the registry. It
// fails with ErrStaticLabelsLocked once a metric has been created.
func (r *Registry) SetStaticLabels(static map[string]string) error {
	set, err := sortedLabelSet(static)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrStaticLabelsLocked
	}
	r.static = set
	return nil
}

// StaticLabels returns the registry-wide static labels.
func (r *Registry) StaticLabels() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, r.static.Len())
	for i := 0; i < r.static.Len(); i++ {
		out[r.static.Names().At(i)] = r.static.Values().At(i)
	}
	return out
}

// AddBeforeCollectCallback registers fn to run at the start of every
// collection. An error returned by fn aborts that collection.
func (r *Registry) AddBeforeCollectCallback(fn func(ctx context.Context) error) {
	r.callbackMu.Lock()
	defer r.callbackMu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// freezeStatic locks the static labels and returns them.
func (r *Registry) freezeStatic() labels.Set {
	if r.frozen.Load() {
		return r.static
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen.Store(true)
	return r.static
}

// getOrAddFamily returns the family registered under name, creating it on
// first use. Type and help must match the existing family.
func (r *Registry) getOrAddFamily(name, help string, typ exposition.MetricType) (*family, error) {
	r.mu.RLock()
	f, ok := r.families[name]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		f, ok = r.families[name]
		if !ok {
			f = newFamily(name, help, typ)
			r.families[name] = f
			r.order = append(r.order, f)
			r.mu.Unlock()
			r.logger.Debug("metric family created",
				slog.String("metric", name),
				slog.String("type", typ.String()))
			return f, nil
		}
		r.mu.Unlock()
	}

	if f.typ != typ {
		return nil, fmt.Errorf("%w: %s is already registered as a %s, requested %s",
			ErrMetadataConflict, name, f.typ, typ)
	}
	if f.help != help {
		return nil, fmt.Errorf("%w: %s is already registered with help %q, requested %q",
			ErrMetadataConflict, name, f.help, help)
	}
	return f, nil
}

// familySnapshot returns the families in registration order.
func (r *Registry) familySnapshot() []*family {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*family, len(r.order))
	copy(out, r.order)
	return out
}

// addEngine hands a leasing engine to the registry, which starts its sweep
// and stops it on Close.
func (r *Registry) addEngine(e sweeper) {
	r.enginesMu.Lock()
	defer r.enginesMu.Unlock()
	r.engines = append(r.engines, e)
	if !r.closed {
		e.start()
	}
}

// Close stops the background sweep of every leasing engine created in the
// registry. Metrics remain usable; expired children are then only removed
// by explicit Sweep calls. Close is idempotent.
func (r *Registry) Close() error {
	r.enginesMu.Lock()
	engines := slices.Clone(r.engines)
	r.closed = true
	r.enginesMu.Unlock()

	for _, e := range engines {
		e.Close()
	}
	return nil
}

// registration describes a metric being created through a Factory.
type registration struct {
	name          string
	help          string
	typ           exposition.MetricType
	config        MetricConfig
	factoryStatic map[string]string
	layout        string
	reserved      string
}

// register resolves the family and collector for reg, creating them as
// needed.
func register[C child](r *Registry, reg registration, newChild func() C) (*collector[C], error) {
	if err := labels.ValidateMetricName(reg.name); err != nil {
		return nil, err
	}
	if err := labels.ValidateLabelNames(reg.config.LabelNames); err != nil {
		return nil, err
	}
	if reg.reserved != "" && slices.Contains(reg.config.LabelNames, reg.reserved) {
		return nil, fmt.Errorf("%w: label name %q is reserved for %s metrics", ErrInvalidLabels, reg.reserved, reg.typ)
	}

	static, err := mergeStatic(reg.factoryStatic, reg.config.StaticLabels)
	if err != nil {
		return nil, err
	}
	registryStatic := r.freezeStatic()
	for i := 0; i < registryStatic.Len(); i++ {
		name := registryStatic.Names().At(i)
		if _, dup := static[name]; dup {
			return nil, fmt.Errorf("%w: static label %q is also set on the registry", ErrInvalidLabels, name)
		}
		static[name] = registryStatic.Values().At(i)
	}
	if _, ok := static[reg.reserved]; ok && reg.reserved != "" {
		return nil, fmt.Errorf("%w: label name %q is reserved for %s metrics", ErrInvalidLabels, reg.reserved, reg.typ)
	}
	for _, n := range reg.config.LabelNames {
		if _, dup := static[n]; dup {
			return nil, fmt.Errorf("%w: label %q is both an instance and a static label", ErrInvalidLabels, n)
		}
	}
	staticSet, err := sortedLabelSet(static)
	if err != nil {
		return nil, err
	}

	fam, err := r.getOrAddFamily(reg.name, reg.help, reg.typ)
	if err != nil {
		return nil, err
	}

	id := identity{
		labelNames:   labels.New(reg.config.LabelNames...),
		staticNames:  staticSet.Names(),
		staticValues: staticSet.Values(),
	}
	col, err := fam.getOrAdd(id, reg.layout, func() familyCollector {
		env := &childEnv{clock: r.clock, logger: r.logger, metric: reg.name}
		return newCollector(id, reg.layout, staticSet, reg.config, env, newChild)
	})
	if err != nil {
		return nil, err
	}

	typed, ok := col.(*collector[C])
	if !ok {
		return nil, fmt.Errorf("%w: %s is registered with a different metric type", ErrMetadataConflict, reg.name)
	}
	return typed, nil
}

// mergeStatic combines the factory and metric static labels. The same name
// may not be set twice.
func mergeStatic(factory, metric map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(factory)+len(metric))
	maps.Copy(out, factory)
	for k, v := range metric {
		if _, dup := out[k]; dup {
			return nil, fmt.Errorf("%w: static label %q is set by both the factory and the metric", ErrInvalidLabels, k)
		}
		out[k] = v
	}
	return out, nil
}

// sortedLabelSet validates m and returns it as a set sorted by name.
func sortedLabelSet(m map[string]string) (labels.Set, error) {
	names := slices.Sorted(maps.Keys(m))
	if err := labels.ValidateLabelNames(names); err != nil {
		return labels.Set{}, err
	}
	values := make([]string, len(names))
	for i, n := range names {
		if !utf8.ValidString(m[n]) {
			return labels.Set{}, fmt.Errorf("%w: value of static label %q is not valid UTF-8", ErrInvalidLabels, n)
		}
		values[i] = m[n]
	}
	return labels.NewSet(labels.New(names...), labels.New(values...))
}
