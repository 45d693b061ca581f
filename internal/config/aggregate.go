package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// AggregateConfig holds configuration for aggregation. Window and
// recompute-from are resolved at load time.
type AggregateConfig struct {
	RPCURL        string
	Input         string
	WindowSeconds uint64
	PGDSN         string
	BatchSize     int
	StateFile     string
	RecomputeFrom uint64
	SkipPartial   bool
	LogLevel      string
}

// StateName keys the aggregation progress so each window size resumes on
// its own.
func (c AggregateConfig) StateName() string {
	return fmt.Sprintf("aggregator:%d", c.WindowSeconds)
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"batch-size": 1000,
		"log-level":  "info",
		"window":     "5m",
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	windowSeconds, err := ParseWindow(v.GetString("window"))
	if err != nil {
		return AggregateConfig{}, err
	}
	recomputeFrom, err := ParseTimestamp(v.GetString("recompute-from"))
	if err != nil {
		return AggregateConfig{}, fmt.Errorf("parse recompute-from: %w", err)
	}

	return AggregateConfig{
		RPCURL:        v.GetString("rpc"),
		Input:         v.GetString("in"),
		WindowSeconds: windowSeconds,
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		StateFile:     v.GetString("state-file"),
		RecomputeFrom: recomputeFrom,
		SkipPartial:   v.GetBool("skip-partial"),
		LogLevel:      v.GetString("log-level"),
	}, nil
}

// ParseWindow parses an aggregation window such as "5m" into whole seconds.
func ParseWindow(window string) (uint64, error) {
	d, err := time.ParseDuration(strings.TrimSpace(window))
	if err != nil {
		return 0, fmt.Errorf("invalid window: %w", err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("window must be at least 1s, got %s", d)
	}
	return uint64(d / time.Second), nil
}

// ParseTimestamp parses unix seconds, an RFC3339 time or a UTC date
// (2006-01-02). Empty input is zero.
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}
	if ts, err := strconv.ParseUint(input, 10, 64); err == nil {
		return ts, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if tm, err := time.Parse(layout, input); err == nil {
			if tm.Unix() < 0 {
				return 0, fmt.Errorf("timestamp %q is before 1970", input)
			}
			return uint64(tm.Unix()), nil
		}
	}
	return 0, fmt.Errorf("timestamp %q is neither unix seconds, RFC3339 nor a date", input)
}
