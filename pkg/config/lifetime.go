package config

import (
	"log/slog"
	"time"

	"lease-metrics/pkg/metrics"
)

// LoadManagedLifetimeConfig reads a managed lifetime configuration from
// environment variables named after prefix:
//
//   - <prefix>_EXPIRES_AFTER: idle time before an unleased child is removed
//     (default: defaultExpiry)
//   - <prefix>_SWEEP_INTERVAL: sweep period (default: 0, a quarter of the
//     expiry)
//
// Invalid values are logged and replaced by their defaults, so the returned
// configuration always validates when defaultExpiry is positive.
//
// Example:
//
//	cfg := LoadManagedLifetimeConfig("DEMO_SESSION", 30*time.Second)
//	gauge, err := factory.WithManagedLifetimeConfig(cfg).CreateGauge(...)
func LoadManagedLifetimeConfig(prefix string, defaultExpiry time.Duration) metrics.ManagedLifetimeConfig {
	cfg := metrics.DefaultManagedLifetimeConfig(defaultExpiry)

	expiresKey := prefix + "_EXPIRES_AFTER"
	expires := GetEnvDuration(expiresKey, defaultExpiry)
	if err := ValidatePositiveDuration(expires); err != nil {
		slog.Warn("invalid managed lifetime expiry, using default",
			slog.String("key", expiresKey),
			slog.String("value", expires.String()),
			slog.String("default", defaultExpiry.String()))
		expires = defaultExpiry
	}
	cfg.ExpiresAfter = expires

	sweepKey := prefix + "_SWEEP_INTERVAL"
	sweep := GetEnvDuration(sweepKey, 0)
	if err := ValidateNonNegativeDuration(sweep); err != nil {
		slog.Warn("invalid sweep interval, using default",
			slog.String("key", sweepKey),
			slog.String("value", sweep.String()))
		sweep = 0
	}
	cfg.SweepInterval = sweep

	return cfg
}

// LoadExemplarBehavior reads <prefix>_EXEMPLAR_MIN_INTERVAL, the minimum time
// between exemplar replacements per child (default: 0, every exemplar is
// kept).
func LoadExemplarBehavior(prefix string) metrics.ExemplarBehavior {
	key := prefix + "_EXEMPLAR_MIN_INTERVAL"
	interval := GetEnvDuration(key, 0)
	if err := ValidateNonNegativeDuration(interval); err != nil {
		slog.Warn("invalid exemplar interval, using default",
			slog.String("key", key),
			slog.String("value", interval.String()))
		interval = 0
	}
	return metrics.ExemplarBehavior{MinInterval: interval}
}
