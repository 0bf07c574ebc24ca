package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"lease-metrics/pkg/metrics"
)

// demoMetrics are the metrics the simulator writes to.
type demoMetrics struct {
	activeSessions  *metrics.ManagedGauge
	sessionRequests *metrics.AutoLeasingCounter
	requests        *metrics.Counter
	latency         *metrics.Histogram
	sessionLength   *metrics.Summary
}

func newDemoMetrics(f *metrics.Factory, cfg DemoConfig) (*demoMetrics, error) {
	f = f.WithExemplarBehavior(cfg.Exemplars)
	managed := f.WithManagedLifetimeConfig(cfg.Lifetime)

	active, err := managed.CreateGauge("demo_active_sessions", "Sessions currently open.",
		&metrics.GaugeConfig{MetricConfig: metrics.MetricConfig{LabelNames: []string{"client"}}})
	if err != nil {
		return nil, fmt.Errorf("create active sessions gauge: %w", err)
	}

	perSession, err := managed.CreateCounter("demo_session_requests_total", "Requests per session.",
		&metrics.CounterConfig{MetricConfig: metrics.MetricConfig{LabelNames: []string{"client", "session"}}})
	if err != nil {
		return nil, fmt.Errorf("create session requests counter: %w", err)
	}

	requests, err := f.CreateCounter("demo_requests_total", "Requests by client and outcome.",
		&metrics.CounterConfig{MetricConfig: metrics.MetricConfig{LabelNames: []string{"client", "outcome"}}})
	if err != nil {
		return nil, fmt.Errorf("create requests counter: %w", err)
	}

	latency, err := f.CreateHistogram("demo_request_duration_seconds", "Simulated request latency.",
		&metrics.HistogramConfig{
			MetricConfig: metrics.MetricConfig{LabelNames: []string{"client"}},
			Buckets:      metrics.ExponentialBuckets(0.005, 2, 8),
		})
	if err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}

	length, err := f.CreateSummary("demo_session_length_seconds", "Wall time of finished sessions.",
		&metrics.SummaryConfig{
			Objectives: []metrics.QuantileEpsilon{
				{Quantile: 0.5, Epsilon: 0.05},
				{Quantile: 0.9, Epsilon: 0.01},
				{Quantile: 0.99, Epsilon: 0.001},
			},
			MaxAge: time.Minute,
		})
	if err != nil {
		return nil, fmt.Errorf("create session length summary: %w", err)
	}

	return &demoMetrics{
		activeSessions:  active,
		sessionRequests: perSession.WithExtendLifetimeOnUse(),
		requests:        requests,
		latency:         latency,
		sessionLength:   length,
	}, nil
}

// simulator drives sessions against demoMetrics.
type simulator struct {
	scenario Scenario
	metrics  *demoMetrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Run starts one goroutine per worker and returns when ctx is done or a
// worker fails.
func (s *simulator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for w := range s.scenario.Workers {
		g.Go(func() error {
			for n := 0; ctx.Err() == nil; n++ {
				client := s.scenario.Clients[(w+n)%len(s.scenario.Clients)]
				if err := s.session(ctx, client); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// session holds a lease on the client's active-sessions gauge for its whole
// duration and issues the scenario's requests.
func (s *simulator) session(ctx context.Context, client string) error {
	started := time.Now()
	id := uuid.NewString()

	gauge, lease, err := s.metrics.activeSessions.AcquireLease(client)
	if err != nil {
		return fmt.Errorf("lease active sessions for %s: %w", client, err)
	}
	defer func() {
		if err := lease.Release(); err != nil {
			s.logger.Warn("failed to release session lease", slog.String("session", id), slog.Any("error", err))
		}
	}()

	gauge.Inc()
	defer gauge.Dec()

	for range s.scenario.RequestsPerSession {
		if err := s.request(ctx, client, id); err != nil {
			if ctx.Err() != nil {
				// Interrupted by shutdown; the session still counts.
				break
			}
			return err
		}
	}

	s.metrics.sessionLength.Observe(time.Since(started).Seconds())
	s.logger.Debug("session finished", slog.String("client", client), slog.String("session", id))
	return nil
}

func (s *simulator) request(ctx context.Context, client, session string) error {
	ctx, span := s.tracer.Start(ctx, "demo.request")
	defer span.End()

	latency := time.Duration(rand.ExpFloat64() * float64(20*time.Millisecond))
	if err := sleep(ctx, latency+s.scenario.ThinkTime); err != nil {
		return err
	}

	outcome := "ok"
	if rand.Float64() < s.scenario.ErrorRate {
		outcome = "error"
	}

	exemplar := metrics.ExemplarFromContext(ctx)
	if err := s.metrics.requests.WithLabels(client, outcome).AddWithExemplar(1, exemplar); err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	if err := s.metrics.latency.WithLabels(client).ObserveWithExemplar(latency.Seconds(), exemplar); err != nil {
		return fmt.Errorf("record latency: %w", err)
	}
	s.metrics.sessionRequests.WithLabels(client, session).Inc()
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
