package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ParseBool accepts 1/true/yes/on (any case) as true. Empty input yields
// fallback; anything else is false.
func ParseBool(value string, fallback bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func envString(name string, target *string) {
	if val := os.Getenv(name); val != "" {
		*target = val
	}
}

func envBool(name string, target *bool) {
	if val, ok := os.LookupEnv(name); ok && val != "" {
		*target = ParseBool(val, *target)
	}
}

func envInt(name string, target *int) {
	if val := os.Getenv(name); val != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			*target = n
		}
	}
}

// envMillis reads a duration given in milliseconds. Unparseable values are
// ignored and the current value kept.
func envMillis(name string, target *time.Duration) {
	if val := os.Getenv(name); val != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && n >= 0 {
			*target = time.Duration(n) * time.Millisecond
		}
	}
}

func absPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
