package main

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"lease-metrics/pkg/config"
	"lease-metrics/pkg/metrics"
	"lease-metrics/pkg/metrics/exposition"
)

// Scenario describes the simulated traffic. It can be loaded from a YAML
// file named by DEMO_SCENARIO.
type Scenario struct {
	Clients            []string      `yaml:"clients"`
	Workers            int           `yaml:"workers"`
	RequestsPerSession int           `yaml:"requests_per_session"`
	ThinkTime          time.Duration `yaml:"think_time"`
	ErrorRate          float64       `yaml:"error_rate"`
	SessionExpiry      time.Duration `yaml:"session_expiry"`
}

// DefaultScenario returns the traffic used when no scenario file is given.
func DefaultScenario() Scenario {
	return Scenario{
		Clients:            []string{"web", "ios", "android"},
		Workers:            4,
		RequestsPerSession: 5,
		ThinkTime:          100 * time.Millisecond,
		ErrorRate:          0.05,
		SessionExpiry:      5 * time.Second,
	}
}

// Validate checks the scenario.
func (s Scenario) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Clients, validation.Required, validation.Each(validation.Required)),
		validation.Field(&s.Workers, validation.Required, validation.Min(1)),
		validation.Field(&s.RequestsPerSession, validation.Required, validation.Min(1)),
		validation.Field(&s.ThinkTime, validation.Min(time.Duration(0))),
		validation.Field(&s.ErrorRate, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&s.SessionExpiry, validation.Required, validation.Min(time.Millisecond)),
	)
}

// LoadScenario reads a YAML scenario. Fields missing from the file keep the
// values of DefaultScenario.
func LoadScenario(path string) (Scenario, error) {
	s := DefaultScenario()
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return s, nil
}

// DemoConfig is the full configuration of the demo binary.
type DemoConfig struct {
	Scenario     Scenario
	Duration     time.Duration
	DumpSchedule string
	Format       exposition.Format
	Lifetime     metrics.ManagedLifetimeConfig
	Exemplars    metrics.ExemplarBehavior
	SnapshotPath string
}

// LoadConfig builds the configuration from environment variables.
//
// Environment variables:
//   - DEMO_SCENARIO: path to a YAML scenario (default: built-in scenario)
//   - DEMO_DURATION: how long to simulate traffic (default: 10s)
//   - DEMO_DUMP_SCHEDULE: cron spec for periodic dumps (default: @every 2s)
//   - DEMO_FORMAT: "prometheus" or "openmetrics" (default: openmetrics)
//   - DEMO_SESSION_EXPIRES_AFTER / DEMO_SESSION_SWEEP_INTERVAL: managed
//     lifetime of per-session series (default: the scenario's session_expiry)
//   - DEMO_EXEMPLAR_MIN_INTERVAL: exemplar sampling interval (default: 0)
//   - DEMO_SNAPSHOT: file receiving a protobuf snapshot of the demo and Go
//     runtime metrics at exit (default: none)
func LoadConfig() (DemoConfig, error) {
	scenario := DefaultScenario()
	if path := config.GetEnvString("DEMO_SCENARIO", ""); path != "" {
		s, err := LoadScenario(path)
		if err != nil {
			return DemoConfig{}, err
		}
		scenario = s
	}

	format, err := parseFormat(config.GetEnvString("DEMO_FORMAT", "openmetrics"))
	if err != nil {
		return DemoConfig{}, err
	}

	duration := config.GetEnvDuration("DEMO_DURATION", 10*time.Second)
	if err := config.ValidatePositiveDuration(duration); err != nil {
		return DemoConfig{}, fmt.Errorf("invalid DEMO_DURATION: %w", err)
	}

	return DemoConfig{
		Scenario:     scenario,
		Duration:     duration,
		DumpSchedule: config.GetEnvString("DEMO_DUMP_SCHEDULE", "@every 2s"),
		Format:       format,
		Lifetime:     config.LoadManagedLifetimeConfig("DEMO_SESSION", scenario.SessionExpiry),
		Exemplars:    config.LoadExemplarBehavior("DEMO"),
		SnapshotPath: config.GetEnvString("DEMO_SNAPSHOT", ""),
	}, nil
}

func parseFormat(s string) (exposition.Format, error) {
	switch s {
	case "prometheus", "text":
		return exposition.FormatPrometheus, nil
	case "openmetrics":
		return exposition.FormatOpenMetrics, nil
	default:
		return 0, fmt.Errorf("unknown DEMO_FORMAT %q, expected prometheus or openmetrics", s)
	}
}
