// Package cell provides the lock-free numeric storage shared by every metric
// child. A Float is safe for concurrent use by any number of writers.
package cell

import (
	"math"

	"go.uber.org/atomic"
)

// Float holds a float64 that is updated without locks.
//
// The value is stored as its IEEE-754 bit pattern so that every update is a
// single compare-and-swap on a uint64. The zero value holds 0.
type Float struct {
	bits atomic.Uint64
}

// NewFloat returns a Float initialised to v.
func NewFloat(v float64) *Float {
	f := &Float{}
	f.Set(v)
	return f
}

// Value returns the current value.
func (f *Float) Value() float64 {
	return math.Float64frombits(f.bits.Load())
}

// Set stores v unconditionally.
func (f *Float) Set(v float64) {
	f.bits.Store(math.Float64bits(v))
}

// Add adds delta to the stored value and returns the new value.
//
// Concurrent adds never lose updates: a failed compare-and-swap re-reads the
// current bit pattern and retries.
func (f *Float) Add(delta float64) float64 {
	for {
		oldBits := f.bits.Load()
		next := math.Float64frombits(oldBits) + delta
		if f.bits.CompareAndSwap(oldBits, math.Float64bits(next)) {
			return next
		}
	}
}

// IncrementTo raises the stored value to target if target is greater than the
// current value. Smaller targets are ignored, so the cell never decreases
// through this method regardless of how concurrent calls interleave.
//
// It reports whether the stored value was replaced.
func (f *Float) IncrementTo(target float64) bool {
	for {
		oldBits := f.bits.Load()
		if !(target > math.Float64frombits(oldBits)) {
			return false
		}
		if f.bits.CompareAndSwap(oldBits, math.Float64bits(target)) {
			return true
		}
	}
}

// DecrementTo lowers the stored value to target if target is less than the
// current value. It is the mirror of IncrementTo.
func (f *Float) DecrementTo(target float64) bool {
	for {
		oldBits := f.bits.Load()
		if !(target < math.Float64frombits(oldBits)) {
			return false
		}
		if f.bits.CompareAndSwap(oldBits, math.Float64bits(target)) {
			return true
		}
	}
}
