// Command metricsdemo simulates client sessions against a metrics registry
// and prints the exposition text periodically.
//
// Per-session series live under a managed lifetime and disappear from the
// output once the session has been idle for the configured expiry, while the
// per-client aggregates stay.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"lease-metrics/internal/logging"
	"lease-metrics/pkg/metrics"
)

func main() {
	logger := logging.NewTextLogger()
	slog.SetDefault(logger)

	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo configuration loaded",
		slog.Any("clients", cfg.Scenario.Clients),
		slog.Int("workers", cfg.Scenario.Workers),
		slog.Duration("duration", cfg.Duration),
		slog.Duration("session_expiry", cfg.Lifetime.ExpiresAfter),
		slog.String("dump_schedule", cfg.DumpSchedule),
		slog.String("format", cfg.Format.String()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(logging.WithLogger(ctx, logger), cfg, os.Stdout); err != nil {
		logger.Error("demo failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// run simulates traffic for cfg.Duration, dumping the registry on schedule
// and once more at the end.
func run(ctx context.Context, cfg DemoConfig, out io.Writer) (err error) {
	logger := logging.FromContext(ctx)

	registry := metrics.NewRegistry(metrics.WithLogger(logger))
	defer func() { err = errors.Join(err, registry.Close()) }()

	if err := registry.SetStaticLabels(map[string]string{"app": "metricsdemo"}); err != nil {
		return err
	}
	m, err := newDemoMetrics(metrics.NewFactory(registry), cfg)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider()
	defer func() { err = errors.Join(err, tp.Shutdown(context.Background())) }()

	d := newDumper(registry, out, cfg.Format, logger)
	scheduler, err := d.Start(cfg.DumpSchedule)
	if err != nil {
		return err
	}

	sim := &simulator{
		scenario: cfg.Scenario,
		metrics:  m,
		tracer:   tp.Tracer("metricsdemo"),
		logger:   logger,
	}

	simCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()
	simErr := sim.Run(simCtx)

	// Wait for a running dump before the final one.
	<-scheduler.Stop().Done()

	if simErr != nil && !errors.Is(simErr, context.DeadlineExceeded) && !errors.Is(simErr, context.Canceled) {
		return fmt.Errorf("simulation: %w", simErr)
	}
	logger.Info("simulation finished")
	if err := d.Dump(context.Background(), "final"); err != nil {
		return err
	}

	if cfg.SnapshotPath != "" {
		n, err := writeSnapshot(cfg.SnapshotPath, snapshotGatherer(registry))
		if err != nil {
			return err
		}
		logger.Info("snapshot written", slog.String("path", cfg.SnapshotPath), slog.Int("families", n))
	}
	return nil
}
