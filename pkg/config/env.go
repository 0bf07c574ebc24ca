// Package config reads process configuration from environment variables.
//
// Every getter falls back to its default when the variable is unset or
// empty. A value that is set but cannot be parsed is reported with a slog
// warning and also replaced by the default, so a typo never stops a binary
// from starting.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvString returns the value of key or defaultValue if it is unset or empty.
//
// Parameters:
//   - key: Environment variable name
//   - defaultValue: Value to return if the variable is not set or empty
//
// Returns:
//   - string: The variable's value or defaultValue
//
// Example:
//
//	path := GetEnvString("DEMO_SNAPSHOT", "")
func GetEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt returns the value of key parsed as an int.
//
// Parameters:
//   - key: Environment variable name
//   - defaultValue: Value to return if the variable is unset, empty or invalid
//
// Returns:
//   - int: The parsed value or defaultValue
//
// Example:
//
//	workers := GetEnvInt("DEMO_WORKERS", 4)
func GetEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		warnInvalid(key, raw, strconv.Itoa(defaultValue), err)
		return defaultValue
	}
	return value
}

// GetEnvFloat returns the value of key parsed as a float64.
//
// Parameters:
//   - key: Environment variable name
//   - defaultValue: Value to return if the variable is unset, empty or invalid
//
// Returns:
//   - float64: The parsed value or defaultValue
//
// Example:
//
//	ratio := GetEnvFloat("DEMO_ERROR_RATIO", 0.05)
func GetEnvFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		warnInvalid(key, raw, strconv.FormatFloat(defaultValue, 'g', -1, 64), err)
		return defaultValue
	}
	return value
}

// GetEnvBool returns the value of key parsed with strconv.ParseBool
// ("1", "t", "true", "0", "f", "false" and their capitalised forms).
//
// Parameters:
//   - key: Environment variable name
//   - defaultValue: Value to return if the variable is unset, empty or invalid
//
// Returns:
//   - bool: The parsed value or defaultValue
func GetEnvBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		warnInvalid(key, raw, strconv.FormatBool(defaultValue), err)
		return defaultValue
	}
	return value
}

// GetEnvDuration returns the value of key parsed by time.ParseDuration
// (e.g. "250ms", "30s", "1h30m").
//
// Parameters:
//   - key: Environment variable name
//   - defaultValue: Value to return if the variable is unset, empty or invalid
//
// Returns:
//   - time.Duration: The parsed value or defaultValue
//
// Example:
//
//	expiry := GetEnvDuration("DEMO_SESSION_EXPIRY", 30*time.Second)
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		warnInvalid(key, raw, defaultValue.String(), err)
		return defaultValue
	}
	return value
}

// GetEnvStringList splits the value of key on commas, trimming whitespace and
// dropping empty entries. An empty result yields defaultValue.
//
// Parameters:
//   - key: Environment variable name
//   - defaultValue: Value to return if the variable holds no entries
//
// Returns:
//   - []string: The non-empty entries in order, or defaultValue
//
// Example:
//
//	// DEMO_CLIENTS="web, ios,,android"
//	clients := GetEnvStringList("DEMO_CLIENTS", nil) // ["web", "ios", "android"]
func GetEnvStringList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}

	var result []string
	for part := range strings.SplitSeq(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

func warnInvalid(key, value, defaultValue string, err error) {
	slog.Warn("invalid value for environment variable, using default",
		slog.String("key", key),
		slog.String("value", value),
		slog.String("default", defaultValue),
		slog.String("error", err.Error()))
}
