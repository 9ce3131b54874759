package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOrDefault resolves a duration-typed config field. Koyomi keeps
// durations as strings in the config tree so YAML, env overrides, and the
// Default* constants share one representation; an unset field falls back to
// its package default before parsing.
func DurationOrDefault(value, defaultValue string) (time.Duration, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		raw = strings.TrimSpace(defaultValue)
	}
	if raw == "" {
		return 0, fmt.Errorf("duration is not set and has no default")
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	return d, nil
}
