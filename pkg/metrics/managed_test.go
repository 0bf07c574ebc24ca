package metrics

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"lease-metrics/pkg/metrics/exposition"
)

// managedTestConfig keeps the background sweep out of the way so tests drive
// expiry through Sweep.
func managedTestConfig(expiresAfter time.Duration) ManagedLifetimeConfig {
	return ManagedLifetimeConfig{ExpiresAfter: expiresAfter, SweepInterval: time.Hour}
}

func newManagedGauge(t *testing.T, clock *MockClock) (*Registry, *ManagedGauge) {
	t.Helper()
	r := newTestRegistry(t, WithClock(clock))
	g, err := NewFactory(r).WithManagedLifetimeConfig(managedTestConfig(100*time.Millisecond)).
		CreateGauge("active_sessions", "Active sessions.", &GaugeConfig{MetricConfig: labelNames("client")})
	require.NoError(t, err)
	return r, g
}

func TestManaged_LeaseRoundTrip(t *testing.T) {
	clock := NewMockClock(time.Unix(1700000000, 0))
	r, g := newManagedGauge(t, clock)

	child, lease, err := g.AcquireLease("abc")
	require.NoError(t, err)
	assert.Equal(t, 1, g.LeaseCount("abc"))
	child.Set(3)

	rec := g.lookupLocked(child.values.Hash(), []string{"abc"})
	require.NotNil(t, rec)
	before := rec.keepalive.Load()

	clock.Advance(10 * time.Millisecond)
	require.NoError(t, lease.Release())

	assert.Equal(t, 0, g.LeaseCount("abc"))
	assert.Equal(t, before+int64(10*time.Millisecond), rec.keepalive.Load())
	assert.Contains(t, render(t, r, exposition.FormatPrometheus), `active_sessions{client="abc"} 3`)
}

func TestManaged_LeasedChildIsPublishedWithoutWrites(t *testing.T) {
	clock := NewMockClock(time.Unix(1700000000, 0))
	r, g := newManagedGauge(t, clock)

	_, lease, err := g.AcquireLease("abc")
	require.NoError(t, err)
	defer func() { _ = lease.Release() }()

	assert.Contains(t, render(t, r, exposition.FormatPrometheus), `active_sessions{client="abc"} 0`)
}

func TestManaged_ExpiryAndReappearance(t *testing.T) {
	clock := NewMockClock(time.Unix(1700000000, 0))
	r, g := newManagedGauge(t, clock)

	old, lease, err := g.AcquireLease("abc")
	require.NoError(t, err)
	old.Set(5)
	require.NoError(t, lease.Release())

	// Not idle long enough yet.
	clock.Advance(99 * time.Millisecond)
	assert.Zero(t, g.Sweep())
	assert.Contains(t, render(t, r, exposition.FormatPrometheus), `client="abc"`)

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, g.Sweep())
	assert.NotContains(t, render(t, r, exposition.FormatPrometheus), `client="abc"`)
	assert.Zero(t, g.LeaseCount("abc"))

	// A new lease creates a fresh child instead of resurrecting the old one.
	fresh, lease, err := g.AcquireLease("abc")
	require.NoError(t, err)
	defer func() { _ = lease.Release() }()

	assert.NotSame(t, old, fresh)
	assert.Zero(t, fresh.Value())
	assert.Contains(t, render(t, r, exposition.FormatPrometheus), `active_sessions{client="abc"} 0`)

	// Writes through the expired child no longer reach the output.
	old.Set(42)
	assert.NotContains(t, render(t, r, exposition.FormatPrometheus), "42")
}

func TestManaged_HeldLeaseNeverExpires(t *testing.T) {
	clock := NewMockClock(time.Unix(1700000000, 0))
	r, g := newManagedGauge(t, clock)

	_, lease, err := g.AcquireLease("abc")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	assert.Zero(t, g.Sweep())
	assert.Contains(t, render(t, r, exposition.FormatPrometheus), `client="abc"`)

	require.NoError(t, lease.Release())
	assert.Zero(t, g.Sweep(), "keepalive is stamped at release")

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, g.Sweep())
}

func TestManaged_DoubleRelease(t *testing.T) {
	clock := NewMockClock(time.Unix(1700000000, 0))
	_, g := newManagedGauge(t, clock)

	_, first, err := g.AcquireLease("abc")
	require.NoError(t, err)
	_, second, err := g.AcquireLease("abc")
	require.NoError(t, err)
	assert.Equal(t, 2, g.LeaseCount("abc"))

	require.NoError(t, first.Release())
	err = first.Release()
	require.ErrorIs(t, err, ErrDoubleRelease)
	assert.Equal(t, 1, g.LeaseCount("abc"))

	require.NoError(t, second.Release())
	assert.Equal(t, 0, g.LeaseCount("abc"))
}

func TestManaged_WithLease(t *testing.T) {
	clock := NewMockClock(time.Unix(1700000000, 0))
	_, g := newManagedGauge(t, clock)

	err := g.WithLease(func(c *GaugeChild) error {
		assert.Equal(t, 1, g.LeaseCount("abc"))
		c.Inc()
		return nil
	}, "abc")
	require.NoError(t, err)
	assert.Equal(t, 0, g.LeaseCount("abc"))

	boom := errors.New("boom")
	err = g.WithLease(func(*GaugeChild) error { return boom }, "abc")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, g.LeaseCount("abc"))

	assert.Panics(t, func() {
		_ = g.WithLease(func(*GaugeChild) error { panic("handler failed") }, "abc")
	})
	assert.Equal(t, 0, g.LeaseCount("abc"), "lease is released on panic")

	err = g.WithLease(func(*GaugeChild) error { return nil }, "too", "many")
	require.ErrorIs(t, err, ErrInvalidLabels)
}

func TestManaged_WithLeaseStampsKeepaliveOnRelease(t *testing.T) {
	clock := NewMockClock(time.Unix(1700000000, 0))
	r, g := newManagedGauge(t, clock)

	// The handler outlives the expiry; idle time starts when it returns.
	err := g.WithLease(func(c *GaugeChild) error {
		c.Set(1)
		clock.Advance(time.Second)
		return nil
	}, "abc")
	require.NoError(t, err)

	assert.Zero(t, g.Sweep())
	assert.Contains(t, render(t, r, exposition.FormatPrometheus), `active_sessions{client="abc"} 1`)

	clock.Advance(99 * time.Millisecond)
	assert.Zero(t, g.Sweep())

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, g.Sweep())
}

func TestManaged_AutoLeasingStampsKeepaliveOnUse(t *testing.T) {
	clock := NewMockClock(time.Unix(1700000000, 0))
	r, g := newManagedGauge(t, clock)
	sessions := g.WithExtendLifetimeOnUse().WithLabels("abc")

	sessions.Set(1)
	clock.Advance(90 * time.Millisecond)
	sessions.Inc()
	clock.Advance(90 * time.Millisecond)

	assert.Zero(t, g.Sweep(), "every write extends the lifetime")
	assert.Contains(t, render(t, r, exposition.FormatPrometheus), `active_sessions{client="abc"} 2`)
}

func TestManaged_RemovedChildIsNotLeasedAgain(t *testing.T) {
	tests := []struct {
		name         string
		remove       func(plain *Gauge, c *GaugeChild)
		releaseFirst bool
	}{
		{name: "child remove while leased", remove: func(_ *Gauge, c *GaugeChild) { c.Remove() }},
		{name: "child remove after release", remove: func(_ *Gauge, c *GaugeChild) { c.Remove() }, releaseFirst: true},
		{name: "remove labelled", remove: func(plain *Gauge, _ *GaugeChild) { plain.RemoveLabelled("abc") }},
		{name: "clear", remove: func(plain *Gauge, _ *GaugeChild) { plain.Clear() }, releaseFirst: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewMockClock(time.Unix(1700000000, 0))
			r, g := newManagedGauge(t, clock)
			plain, err := NewFactory(r).CreateGauge("active_sessions", "Active sessions.",
				&GaugeConfig{MetricConfig: labelNames("client")})
			require.NoError(t, err)

			old, lease, err := g.AcquireLease("abc")
			require.NoError(t, err)
			old.Set(3)

			if tt.releaseFirst {
				require.NoError(t, lease.Release())
			}
			tt.remove(plain, old)
			if !tt.releaseFirst {
				require.NoError(t, lease.Release())
			}

			fresh, lease, err := g.AcquireLease("abc")
			require.NoError(t, err)
			defer func() { _ = lease.Release() }()

			assert.NotSame(t, old, fresh)
			assert.Equal(t, 1, g.LeaseCount("abc"))
			fresh.Set(7)
			assert.Contains(t, render(t, r, exposition.FormatPrometheus), `active_sessions{client="abc"} 7`)
			assert.Same(t, fresh, plain.WithLabels("abc"))
		})
	}
}

func TestManaged_ActiveSessionsScenario(t *testing.T) {
	clock := NewMockClock(time.Unix(1700000000, 0))
	r, g := newManagedGauge(t, clock)

	sessions := g.WithExtendLifetimeOnUse()
	sessions.WithLabels("abc").Inc()
	assert.Contains(t, render(t, r, exposition.FormatPrometheus), `active_sessions{client="abc"} 1`)

	clock.Advance(150 * time.Millisecond)
	g.Sweep()

	assert.NotContains(t, render(t, r, exposition.FormatPrometheus), `client="abc"`)
}

func TestManaged_BackgroundSweep(t *testing.T) {
	r := newTestRegistry(t)
	g, err := NewFactory(r).WithManagedLifetime(100*time.Millisecond).
		CreateGauge("active_sessions", "", &GaugeConfig{MetricConfig: labelNames("client")})
	require.NoError(t, err)

	g.WithExtendLifetimeOnUse().WithLabels("abc").Inc()
	require.Contains(t, render(t, r, exposition.FormatPrometheus), `client="abc"`)

	time.Sleep(150 * time.Millisecond)
	require.Eventually(t, func() bool {
		return !strings.Contains(render(t, r, exposition.FormatPrometheus), `client="abc"`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManaged_AutoLeasingReadsAreUnsupported(t *testing.T) {
	clock := NewMockClock(time.Unix(1700000000, 0))
	r := newTestRegistry(t, WithClock(clock))
	mf := NewFactory(r).WithManagedLifetimeConfig(managedTestConfig(time.Second))

	counter, err := mf.CreateCounter("c_total", "", nil)
	require.NoError(t, err)
	c := counter.WithExtendLifetimeOnUse().Unlabelled()
	c.Inc()
	c.Add(2)
	_, err = c.Value()
	require.ErrorIs(t, err, ErrUnsupportedOperation)

	gauge, err := mf.CreateGauge("g", "", nil)
	require.NoError(t, err)
	_, err = gauge.WithExtendLifetimeOnUse().Unlabelled().Value()
	require.ErrorIs(t, err, ErrUnsupportedOperation)

	hist, err := mf.CreateHistogram("h", "", nil)
	require.NoError(t, err)
	h := hist.WithExtendLifetimeOnUse().Unlabelled()
	h.Observe(1)
	_, err = h.Count()
	require.ErrorIs(t, err, ErrUnsupportedOperation)
	_, err = h.Sum()
	require.ErrorIs(t, err, ErrUnsupportedOperation)

	sum, err := mf.CreateSummary("s", "", nil)
	require.NoError(t, err)
	s := sum.WithExtendLifetimeOnUse().Unlabelled()
	s.Observe(1)
	_, err = s.Quantile(0.5)
	require.ErrorIs(t, err, ErrUnsupportedOperation)

	out := render(t, r, exposition.FormatPrometheus)
	assert.Contains(t, out, "c_total 3\n")
	assert.Contains(t, out, "h_count 1\n")
	assert.Contains(t, out, "s_count 1\n")

	assert.Panics(t, func() { counter.WithExtendLifetimeOnUse().WithLabels("unexpected") })
}

func TestManaged_ConflictingExpiry(t *testing.T) {
	f := NewFactory(newTestRegistry(t))

	_, err := f.WithManagedLifetimeConfig(managedTestConfig(time.Second)).CreateCounter("c_total", "", nil)
	require.NoError(t, err)
	_, err = f.WithManagedLifetimeConfig(managedTestConfig(time.Second)).CreateCounter("c_total", "", nil)
	require.NoError(t, err)
	_, err = f.WithManagedLifetimeConfig(managedTestConfig(time.Minute)).CreateCounter("c_total", "", nil)
	require.ErrorIs(t, err, ErrMetadataConflict)
}

func TestManaged_InvalidConfig(t *testing.T) {
	f := NewFactory(newTestRegistry(t))

	_, err := f.WithManagedLifetime(0).CreateGauge("g", "", nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = f.WithManagedLifetime(-time.Second).CreateGauge("g", "", nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestManaged_ConcurrentLeasesAndSweeps(t *testing.T) {
	const (
		workers    = 8
		iterations = 500
	)

	clock := NewMockClock(time.Unix(1700000000, 0))
	_, g := newManagedGauge(t, clock)

	stop := make(chan struct{})
	var sweeper sync.WaitGroup
	sweeper.Add(1)
	go func() {
		defer sweeper.Done()
		for {
			select {
			case <-stop:
				return
			default:
				clock.Advance(time.Second)
				g.Sweep()
			}
		}
	}()

	var eg errgroup.Group
	for range workers {
		eg.Go(func() error {
			for range iterations {
				child, lease, err := g.AcquireLease("abc")
				if err != nil {
					return err
				}
				// While the lease is held the child must stay registered.
				current, err := g.collector.get([]string{"abc"})
				if err != nil {
					return err
				}
				if current != child {
					return errors.New("leased child was removed while the lease was held")
				}
				if !child.IsPublished() {
					return errors.New("leased child is not published")
				}
				if err := lease.Release(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	close(stop)
	sweeper.Wait()

	assert.Zero(t, g.LeaseCount("abc"))
}

func TestLifetimeState(t *testing.T) {
	clock := NewMockClock(time.Unix(1700000000, 0))
	_, g := newManagedGauge(t, clock)
	child, lease, err := g.AcquireLease("x")
	require.NoError(t, err)

	rec := newLifetime(child.values, child, 0)
	assert.Equal(t, int64(1), rec.leases())

	_, stale := rec.staleState(time.Hour, time.Second)
	assert.False(t, stale, "a leased record is never stale")

	rec.release(time.Second)
	s, stale := rec.staleState(2*time.Second, time.Second)
	require.True(t, stale)
	assert.Equal(t, int64(1), releaseEpoch(s))
	assert.Equal(t, int64(0), leaseCount(s))

	// An acquire and release after the staleness read defeats the swap.
	require.True(t, rec.tryAcquire())
	rec.release(time.Second)
	assert.False(t, rec.state.CompareAndSwap(s, stateEnded))

	s, stale = rec.staleState(2*time.Second, time.Second)
	require.True(t, stale)
	require.True(t, rec.state.CompareAndSwap(s, stateEnded))
	assert.False(t, rec.tryAcquire(), "an ended record cannot be leased again")
	assert.Equal(t, int64(-1), rec.leases())

	require.NoError(t, lease.Release())
}
