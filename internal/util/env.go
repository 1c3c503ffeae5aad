// Package util provides environment variable parsing helpers shared across components.
package util

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ParseBoolEnv parses a boolean environment variable with a default value.
// Accepts: true/1/yes/on and false/0/no/off (case-insensitive). Invalid values return default.
func ParseBoolEnv(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		slog.Warn("ParseBoolEnv: invalid boolean value, using default", "key", key, "value", val, "default", defaultValue)
		return defaultValue
	}
}

// ParseIntEnv parses an integer environment variable. Invalid values return default.
func ParseIntEnv(key string, defaultValue int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("ParseIntEnv: invalid integer value, using default", "key", key, "value", val, "default", defaultValue)
		return defaultValue
	}
	return n
}

// ParseFloatEnv parses a float environment variable. Invalid values return default.
func ParseFloatEnv(key string, defaultValue float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		slog.Warn("ParseFloatEnv: invalid float value, using default", "key", key, "value", val, "default", defaultValue)
		return defaultValue
	}
	return f
}

// ParseListEnv splits a comma-separated environment variable, dropping empty
// entries. An unset or empty variable returns default.
func ParseListEnv(key string, defaultValue []string) []string {
	list := SplitList(os.Getenv(key))
	if len(list) == 0 {
		return defaultValue
	}
	return list
}

// SplitList splits a comma-separated string into trimmed, non-empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseRange parses "min-max" into two non-negative integers with min <= max.
func ParseRange(s string) (int, int, error) {
	loStr, hiStr, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return 0, 0, fmt.Errorf("range %q is not in min-max form", s)
	}
	lo, err := strconv.Atoi(strings.TrimSpace(loStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range minimum %q: %w", loStr, err)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(hiStr))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range maximum %q: %w", hiStr, err)
	}
	if lo < 0 || hi < lo {
		return 0, 0, fmt.Errorf("range %q must satisfy 0 <= min <= max", s)
	}
	return lo, hi, nil
}

// ParseRangeEnv parses a "min-max" environment variable. Invalid values return the defaults.
func ParseRangeEnv(key string, defaultMin, defaultMax int) (int, int) {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return defaultMin, defaultMax
	}
	lo, hi, err := ParseRange(val)
	if err != nil {
		slog.Warn("ParseRangeEnv: invalid range, using default", "key", key, "value", val, "error", err)
		return defaultMin, defaultMax
	}
	return lo, hi
}

// ParseLogLevel maps debug/info/warn/error to a slog.Level. Unknown values return fallback.
func ParseLogLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
