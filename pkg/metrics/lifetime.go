package metrics

import (
	"time"

	"go.uber.org/atomic"

	"lease-metrics/pkg/metrics/labels"
)

// Lifetime state layout.
//
// The lease count lives in the low 32 bits and a release epoch in bits
// 32..62. Every acquire changes the count and every release bumps the epoch,
// so a sweep that read the state before either happened fails its
// compare-and-swap. The value -1 marks an ended record; it cannot be reached
// by counting and is never left again.
const (
	stateEnded    int64 = -1
	leaseMask     int64 = 0xFFFFFFFF
	epochShift          = 32
	epochMask     int64 = 0x7FFFFFFF
	maxLeaseCount int64 = leaseMask
)

func leaseCount(state int64) int64 { return state & leaseMask }

func releaseEpoch(state int64) int64 { return (state >> epochShift) & epochMask }

func packState(epoch, count int64) int64 {
	return (epoch&epochMask)<<epochShift | count&leaseMask
}

// lifetime is the lease bookkeeping of one managed child.
type lifetime[C child] struct {
	values labels.Sequence
	child  C

	state atomic.Int64
	// keepalive is the time of the last release, in nanoseconds since the
	// engine epoch. It is written before the state so a sweep that sees the
	// new epoch also sees the new keepalive.
	keepalive atomic.Int64
}

func newLifetime[C child](values labels.Sequence, ch C, now time.Duration) *lifetime[C] {
	l := &lifetime[C]{values: values, child: ch}
	l.state.Store(packState(0, 1))
	l.keepalive.Store(int64(now))
	return l
}

// tryAcquire adds a lease unless the record has ended.
func (l *lifetime[C]) tryAcquire() bool {
	for {
		s := l.state.Load()
		if s == stateEnded {
			return false
		}
		if leaseCount(s) == maxLeaseCount {
			panic("lease count overflow")
		}
		if l.state.CompareAndSwap(s, s+1) {
			return true
		}
	}
}

// release drops a lease, stamping the keepalive first.
func (l *lifetime[C]) release(now time.Duration) {
	l.keepalive.Store(int64(now))
	for {
		s := l.state.Load()
		n := leaseCount(s)
		if s == stateEnded || n == 0 {
			panic("lease released on a record without leases")
		}
		if l.state.CompareAndSwap(s, packState(releaseEpoch(s)+1, n-1)) {
			return
		}
	}
}

// staleState returns the state the sweep will try to end the record from, and
// whether the record is idle for at least expiresAfter.
func (l *lifetime[C]) staleState(now, expiresAfter time.Duration) (int64, bool) {
	s := l.state.Load()
	if s == stateEnded || leaseCount(s) != 0 {
		return 0, false
	}
	if now-time.Duration(l.keepalive.Load()) < expiresAfter {
		return 0, false
	}
	return s, true
}

// leases returns the current lease count, or -1 once ended.
func (l *lifetime[C]) leases() int64 {
	s := l.state.Load()
	if s == stateEnded {
		return -1
	}
	return leaseCount(s)
}
