package metrics

import "math"

// DefaultBuckets are the default histogram bucket bounds, tailored to
// response times in seconds.
var DefaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// LinearBuckets returns count buckets, each width wide, the lowest one
// having start as its upper bound. It panics if count is less than one.
func LinearBuckets(start, width float64, count int) []float64 {
	if count < 1 {
		panic("LinearBuckets needs a positive count")
	}
	buckets := make([]float64, count)
	for i := range buckets {
		buckets[i] = start + float64(i)*width
	}
	return buckets
}

// ExponentialBuckets returns count buckets, the lowest one having start as
// its upper bound and each following one factor times the previous. It
// panics if count is less than one, start is not positive or factor is not
// greater than one.
func ExponentialBuckets(start, factor float64, count int) []float64 {
	switch {
	case count < 1:
		panic("ExponentialBuckets needs a positive count")
	case start <= 0:
		panic("ExponentialBuckets needs a positive start value")
	case factor <= 1:
		panic("ExponentialBuckets needs a factor greater than 1")
	}
	buckets := make([]float64, count)
	next := start
	for i := range buckets {
		buckets[i] = next
		next *= factor
	}
	return buckets
}

// PowersOfTenDividedBuckets divides every power of ten from 10^startPower to
// 10^endPower into divisions equal steps.
//
// Example:
//
//	PowersOfTenDividedBuckets(0, 1, 5) // 0.2 0.4 0.6 0.8 1 2 4 6 8 10
func PowersOfTenDividedBuckets(startPower, endPower, divisions int) []float64 {
	if startPower > endPower {
		panic("PowersOfTenDividedBuckets needs startPower <= endPower")
	}
	if divisions < 1 {
		panic("PowersOfTenDividedBuckets needs a positive number of divisions")
	}
	buckets := make([]float64, 0, (endPower-startPower+1)*divisions)
	for p := startPower; p <= endPower; p++ {
		top := math.Pow10(p)
		for d := 1; d <= divisions; d++ {
			v := float64(d) * top / float64(divisions)
			// The first divisions of a power overlap the previous power.
			if n := len(buckets); n > 0 && v <= buckets[n-1] {
				continue
			}
			buckets = append(buckets, v)
		}
	}
	return buckets
}
