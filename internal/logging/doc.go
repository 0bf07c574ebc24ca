// Package logging builds log/slog loggers for the binaries of this module.
//
// The metrics library itself never logs unless it is handed a logger with
// metrics.WithLogger; binaries create one here and pass it down, either
// explicitly or through the context.
//
// Example usage:
//
//	logger := logging.NewTextLogger()
//	registry := metrics.NewRegistry(metrics.WithLogger(logger))
//	ctx := logging.WithLogger(context.Background(), logger)
package logging
