package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelEnv is the environment variable read by NewLogger and NewTextLogger.
const LevelEnv = "LOG_LEVEL"

// NewLogger creates a structured logger with JSON output on stdout.
// The level is taken from LOG_LEVEL (debug, info, warn, error; default info).
func NewLogger() *slog.Logger {
	return New(os.Stdout, false, ParseLevel(os.Getenv(LevelEnv)))
}

// NewTextLogger creates a logger with human-readable text output on stdout.
// This is useful for local development and for the demo binary.
func NewTextLogger() *slog.Logger {
	return New(os.Stdout, true, ParseLevel(os.Getenv(LevelEnv)))
}

// New creates a logger writing to w at the given level.
func New(w io.Writer, text bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		// Source locations only in debug output.
		AddSource: level <= slog.LevelDebug,
	}
	if text {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values fall back
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithFields returns a new logger with additional structured fields.
func WithFields(logger *slog.Logger, fields map[string]any) *slog.Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return logger.With(args...)
}

// FromContext retrieves the logger from the context, or returns the default logger if not found.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

type contextKey string

const loggerContextKey contextKey = "logger"
