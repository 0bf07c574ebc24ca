package metrics

import (
	"fmt"
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Summary defaults.
const (
	DefaultMaxAge     = 10 * time.Minute
	DefaultAgeBuckets = 5
	DefaultBufferSize = 500
)

// minSweepInterval bounds how often a leasing engine wakes up.
const minSweepInterval = time.Millisecond

// ExemplarBehavior controls how exemplars are recorded by a metric.
type ExemplarBehavior struct {
	// MinInterval is the minimum time between two exemplar replacements on
	// the same child. Zero records every exemplar.
	MinInterval time.Duration
}

// Validate checks the behavior.
func (b ExemplarBehavior) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.MinInterval, validation.Min(time.Duration(0))),
	)
}

// MetricConfig holds the options shared by every metric type.
type MetricConfig struct {
	// LabelNames are the instance label names. Their order is part of the
	// metric identity.
	LabelNames []string

	// StaticLabels are attached to every child of the metric.
	StaticLabels map[string]string

	// PublishOnCreate makes a child visible in the output as soon as it is
	// created. By default a child is published on its first write.
	PublishOnCreate bool

	// ExemplarBehavior overrides the behavior inherited from the factory.
	ExemplarBehavior *ExemplarBehavior
}

// Validate checks the config.
func (c MetricConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ExemplarBehavior),
	)
}

// CounterConfig configures a counter.
type CounterConfig struct {
	MetricConfig
}

// GaugeConfig configures a gauge.
type GaugeConfig struct {
	MetricConfig
}

// HistogramConfig configures a histogram.
type HistogramConfig struct {
	MetricConfig

	// Buckets are the bucket upper bounds in strictly increasing order. A
	// +Inf bucket is always added. Default: DefaultBuckets.
	Buckets []float64
}

// Validate checks the config.
func (c HistogramConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MetricConfig),
		validation.Field(&c.Buckets, validation.By(strictlyIncreasing)),
	)
}

// upperBounds returns the finite bucket bounds, applying the default.
func (c HistogramConfig) upperBounds() []float64 {
	src := c.Buckets
	if len(src) == 0 {
		src = DefaultBuckets
	}
	out := make([]float64, 0, len(src))
	for _, b := range src {
		if !math.IsInf(b, +1) {
			out = append(out, b)
		}
	}
	return out
}

// QuantileEpsilon is a summary objective: a quantile and its allowed
// absolute error.
type QuantileEpsilon struct {
	Quantile float64
	Epsilon  float64
}

// Validate checks the objective.
func (q QuantileEpsilon) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Quantile, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&q.Epsilon, validation.Min(0.0), validation.Max(1.0)),
	)
}

// SummaryConfig configures a summary.
type SummaryConfig struct {
	MetricConfig

	// Objectives are the quantiles to report. Without objectives only the
	// sum and count are reported.
	Objectives []QuantileEpsilon

	// MaxAge is the sliding window the quantiles are computed over.
	// Default: DefaultMaxAge.
	MaxAge time.Duration

	// AgeBuckets is the number of windows kept to slide the window.
	// Default: DefaultAgeBuckets.
	AgeBuckets int

	// BufferSize is the number of observations buffered before they are
	// merged into the quantile streams. Default: DefaultBufferSize.
	BufferSize int
}

// Validate checks the config.
func (c SummaryConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MetricConfig),
		validation.Field(&c.Objectives, validation.By(uniqueQuantiles)),
		validation.Field(&c.MaxAge, validation.Min(time.Duration(0))),
		validation.Field(&c.AgeBuckets, validation.Min(0)),
		validation.Field(&c.BufferSize, validation.Min(0)),
	)
}

func (c SummaryConfig) withDefaults() SummaryConfig {
	if c.MaxAge == 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.AgeBuckets == 0 {
		c.AgeBuckets = DefaultAgeBuckets
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	return c
}

// ManagedLifetimeConfig configures a leasing engine.
type ManagedLifetimeConfig struct {
	// ExpiresAfter is how long a child may stay without leases before the
	// sweep removes it.
	ExpiresAfter time.Duration

	// SweepInterval is the period of the background sweep.
	// Default: ExpiresAfter / 4, at least one millisecond.
	SweepInterval time.Duration
}

// DefaultManagedLifetimeConfig returns the configuration used by
// Factory.WithManagedLifetime.
func DefaultManagedLifetimeConfig(expiresAfter time.Duration) ManagedLifetimeConfig {
	return ManagedLifetimeConfig{ExpiresAfter: expiresAfter}
}

// Validate checks the config.
func (c ManagedLifetimeConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ExpiresAfter, validation.Required, validation.Min(time.Duration(1))),
		validation.Field(&c.SweepInterval, validation.Min(time.Duration(0))),
	)
}

func (c ManagedLifetimeConfig) sweepInterval() time.Duration {
	if c.SweepInterval > 0 {
		return c.SweepInterval
	}
	return max(c.ExpiresAfter/4, minSweepInterval)
}

func strictlyIncreasing(value interface{}) error {
	buckets, _ := value.([]float64)
	for i, b := range buckets {
		if math.IsNaN(b) {
			return validation.NewError("validation_bucket_nan", "buckets must not contain NaN")
		}
		if i > 0 && b <= buckets[i-1] {
			return validation.NewError("validation_bucket_order",
				fmt.Sprintf("buckets must be strictly increasing, got %g after %g", b, buckets[i-1]))
		}
	}
	return nil
}

func uniqueQuantiles(value interface{}) error {
	objectives, _ := value.([]QuantileEpsilon)
	seen := make(map[float64]struct{}, len(objectives))
	for _, o := range objectives {
		if _, dup := seen[o.Quantile]; dup {
			return validation.NewError("validation_quantile_duplicate",
				fmt.Sprintf("quantile %g is listed twice", o.Quantile))
		}
		seen[o.Quantile] = struct{}{}
	}
	return nil
}

// validateConfig wraps ozzo errors in ErrInvalidConfig.
func validateConfig(kind string, v validation.Validatable) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, kind, err)
	}
	return nil
}
