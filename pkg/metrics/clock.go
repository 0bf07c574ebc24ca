package metrics

import "time"

// Clock abstracts time so expiry and exemplar timestamps can be controlled
// in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// SystemClock is a Clock that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}
