package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"lease-metrics/pkg/metrics"
	"lease-metrics/pkg/metrics/exposition"
)

// dumper writes the registry to out on a cron schedule.
type dumper struct {
	registry *metrics.Registry
	format   exposition.Format
	logger   *slog.Logger
	timeout  time.Duration

	mu  sync.Mutex
	out io.Writer
}

func newDumper(r *metrics.Registry, out io.Writer, format exposition.Format, logger *slog.Logger) *dumper {
	return &dumper{registry: r, out: out, format: format, logger: logger, timeout: 5 * time.Second}
}

// Start schedules dumps and returns the running scheduler.
func (d *dumper) Start(schedule string) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if err := d.Dump(context.Background(), "scheduled"); err != nil {
			d.logger.Error("metrics dump failed", slog.Any("error", err))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid dump schedule %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}

// Dump writes one exposition, preceded by a comment line naming the reason.
func (d *dumper) Dump(ctx context.Context, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := fmt.Fprintf(d.out, "# ---- %s dump (%s) ----\n", reason, d.format); err != nil {
		return err
	}
	start := time.Now()
	if err := d.registry.WriteTo(ctx, d.out, d.format); err != nil {
		return fmt.Errorf("write %s exposition: %w", d.format, err)
	}
	d.logger.Debug("metrics dumped", slog.String("reason", reason), slog.Duration("duration", time.Since(start)))
	return nil
}
