package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.uber.org/atomic"

	"lease-metrics/pkg/metrics/labels"
)

// ManagedLifetime puts the children of a metric under leases.
//
// A child is created or resolved by AcquireLease and stays in the output
// while it holds at least one lease. Once the last lease is released, the
// child is removed by the sweep after it has been idle for the configured
// expiry. A lease taken for the same label values afterwards creates a fresh
// child.
//
// The sweep runs in a background goroutine started when the engine is
// created and stopped by Close or by closing the registry.
type ManagedLifetime[C child] struct {
	collector *collector[C]
	config    ManagedLifetimeConfig
	clock     Clock
	epoch     time.Time
	logger    *slog.Logger

	mu      sync.RWMutex
	records map[uint64][]*lifetime[C]

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func newManagedLifetime[C child](col *collector[C], cfg ManagedLifetimeConfig, clock Clock, logger *slog.Logger) *ManagedLifetime[C] {
	return &ManagedLifetime[C]{
		collector: col,
		config:    cfg,
		clock:     clock,
		epoch:     clock.Now(),
		logger:    logger,
		records:   make(map[uint64][]*lifetime[C]),
		done:      make(chan struct{}),
	}
}

// attachManagedLifetime returns the engine bound to col, creating it on first
// use. An engine with a different expiry is a conflict.
func attachManagedLifetime[C child](r *Registry, col *collector[C], cfg ManagedLifetimeConfig) (*ManagedLifetime[C], error) {
	col.lifetimeMu.Lock()
	defer col.lifetimeMu.Unlock()

	if col.lifetime != nil {
		existing, ok := col.lifetime.(*ManagedLifetime[C])
		if !ok || existing.config.ExpiresAfter != cfg.ExpiresAfter {
			return nil, fmt.Errorf("%w: %s already has a managed lifetime with a different expiry",
				ErrMetadataConflict, col.env.metric)
		}
		return existing, nil
	}

	m := newManagedLifetime(col, cfg, r.clock, r.logger)
	col.lifetime = m
	r.addEngine(m)
	return m, nil
}

// now returns the monotonic reading used for keepalive timestamps.
func (m *ManagedLifetime[C]) now() time.Duration {
	return m.clock.Now().Sub(m.epoch)
}

// Lease pins a managed child in the output until released.
type Lease struct {
	release  func()
	released atomic.Bool
	logger   *slog.Logger
	metric   string
}

// Release releases the lease. Releasing a lease twice returns
// ErrDoubleRelease and leaves the lease count unchanged.
func (l *Lease) Release() error {
	if !l.released.CompareAndSwap(false, true) {
		l.logger.Warn("lease released twice", slog.String("metric", l.metric))
		return fmt.Errorf("%s: %w", l.metric, ErrDoubleRelease)
	}
	l.release()
	return nil
}

// AcquireLease returns the child for values with a new lease on it. The child
// is published and stays in the output at least until the lease is released.
func (m *ManagedLifetime[C]) AcquireLease(values ...string) (C, *Lease, error) {
	rec, err := m.acquire(values)
	if err != nil {
		var zero C
		return zero, nil, err
	}
	lease := &Lease{
		release: func() { rec.release(m.now()) },
		logger:  m.logger,
		metric:  m.collector.env.metric,
	}
	return rec.child, lease, nil
}

// WithLease runs fn with the child for values while holding a lease on it.
// The lease is released when fn returns or panics.
func (m *ManagedLifetime[C]) WithLease(fn func(C) error, values ...string) error {
	rec, err := m.acquire(values)
	if err != nil {
		return err
	}
	defer func() { rec.release(m.now()) }()
	return fn(rec.child)
}

func (m *ManagedLifetime[C]) acquire(values []string) (*lifetime[C], error) {
	h := labels.HashValues(values)

	m.mu.RLock()
	rec := m.lookupLocked(h, values)
	if rec != nil && m.collector.holds(rec.child.base()) && rec.tryAcquire() {
		m.mu.RUnlock()
		return rec, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if rec := m.lookupLocked(h, values); rec != nil {
		if m.collector.holds(rec.child.base()) && rec.tryAcquire() {
			return rec, nil
		}
		// Ended records and records whose child was removed through the
		// collector are retired, never reused. Leases still held on a
		// retired record release against it harmlessly.
		m.deleteLocked(h, rec)
	}

	ch, err := m.collector.get(values)
	if err != nil {
		return nil, err
	}
	ch.base().Publish()
	rec = newLifetime(ch.base().values, ch, m.now())
	m.records[h] = append(m.records[h], rec)
	return rec, nil
}

func (m *ManagedLifetime[C]) lookupLocked(h uint64, values []string) *lifetime[C] {
	for _, rec := range m.records[h] {
		if rec.values.EqualValues(values) {
			return rec
		}
	}
	return nil
}

func (m *ManagedLifetime[C]) deleteLocked(h uint64, rec *lifetime[C]) {
	bucket := m.records[h]
	i := slices.Index(bucket, rec)
	if i < 0 {
		return
	}
	bucket = slices.Delete(bucket, i, i+1)
	if len(bucket) == 0 {
		delete(m.records, h)
		return
	}
	m.records[h] = bucket
}

// LeaseCount returns the number of leases held on the child for values, or
// zero if there is no live child.
func (m *ManagedLifetime[C]) LeaseCount(values ...string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec := m.lookupLocked(labels.HashValues(values), values); rec != nil {
		return int(max(rec.leases(), 0))
	}
	return 0
}

// Sweep ends every child without leases that has been idle for at least the
// configured expiry and returns how many were ended. The background loop
// calls it periodically; tests may call it directly.
func (m *ManagedLifetime[C]) Sweep() int {
	start := time.Now()
	now := m.now()

	type candidate struct {
		rec   *lifetime[C]
		state int64
	}
	var candidates []candidate

	m.mu.RLock()
	for _, bucket := range m.records {
		for _, rec := range bucket {
			if s, ok := rec.staleState(now, m.config.ExpiresAfter); ok {
				candidates = append(candidates, candidate{rec: rec, state: s})
			}
		}
	}
	m.mu.RUnlock()

	ended := 0
	for _, c := range candidates {
		if m.end(c.rec, c.state) {
			ended++
		}
	}

	if ended > 0 {
		m.logger.Debug("managed lifetime sweep",
			slog.String("metric", m.collector.env.metric),
			slog.Int("ended", ended),
			slog.Int("candidates", len(candidates)),
			slog.Duration("duration", time.Since(start)))
	}
	return ended
}

// end retires rec if its state is still the one observed as stale. A lease
// acquired or released since then makes the swap fail and the record
// survives this cycle.
func (m *ManagedLifetime[C]) end(rec *lifetime[C], observed int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !rec.state.CompareAndSwap(observed, stateEnded) {
		return false
	}
	m.collector.removeChild(rec.child.base())
	m.deleteLocked(rec.values.Hash(), rec)
	return true
}

func (m *ManagedLifetime[C]) start() {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		go m.sweepLoop(ctx)
	})
}

func (m *ManagedLifetime[C]) sweepLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.config.sweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close stops the background sweep and waits for it to exit. Leases keep
// working; expired children are only removed by explicit Sweep calls.
func (m *ManagedLifetime[C]) Close() {
	m.closeOnce.Do(func() {
		// Prevent a later start.
		m.startOnce.Do(func() { close(m.done) })
		if m.cancel != nil {
			m.cancel()
		}
		<-m.done
	})
}
