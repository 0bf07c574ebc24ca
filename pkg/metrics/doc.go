// Package metrics is an in-process instrumentation library.
//
// Application code creates named, labeled metrics (counters, gauges,
// histograms and summaries) through a Factory bound to a Registry. A scrape
// calls Registry.CollectAndSerialize, which renders every published child in
// the Prometheus or OpenMetrics text format.
//
// Metrics created for transient entities can be put under a managed lifetime:
// callers lease a child while the entity is in use, and a background sweep
// removes children whose last lease ended longer ago than the configured
// expiry. A child that expired reappears with a fresh value the next time a
// lease is taken for the same label values.
//
// Example:
//
//	reg := metrics.NewRegistry()
//	defer reg.Close()
//
//	requests := metrics.NewFactory(reg).MustCreateCounter("requests_total", "Handled requests.",
//		&metrics.CounterConfig{MetricConfig: metrics.MetricConfig{LabelNames: []string{"method"}}})
//	requests.WithLabels("GET").Inc()
//
//	_ = reg.WriteTo(ctx, os.Stdout, exposition.FormatPrometheus)
package metrics
