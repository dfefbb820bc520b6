// Package config loads the engine's environment knobs (spec.md §6). The
// knob set is a flat list of scalars, not nested structured config, so it
// is decoded directly from os.Environ() rather than through a YAML/flag
// loader — see DESIGN.md for why no pack env-struct library was adopted
// here.
package config

import (
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-tunable value the engine reads at
// startup. Fields group by the subsystem they configure.
type Config struct {
	// Worker heartbeat / staleness.
	HeartbeatInterval  time.Duration
	WorkerStaleMultiplier int

	// Task queue defaults.
	TaskDefaultVisibility time.Duration
	TaskDefaultMaxAttempts int
	TaskBackoffBase       time.Duration
	TaskBackoffCap        time.Duration

	// Turn controller limits.
	TurnMaxIterations int
	TurnMaxDuration   time.Duration

	// Circuit breaker.
	BreakerFailureThreshold int
	BreakerWindow           time.Duration
	BreakerCooldown         time.Duration

	// Per-session SSE fan-out channel capacity.
	SSEChannelCapacity int
}

// Defaults mirrors spec.md §6's literal default values.
func Defaults() Config {
	return Config{
		HeartbeatInterval:       5000 * time.Millisecond,
		WorkerStaleMultiplier:   3,
		TaskDefaultVisibility:   30 * time.Second,
		TaskDefaultMaxAttempts:  5,
		TaskBackoffBase:         500 * time.Millisecond,
		TaskBackoffCap:          30 * time.Second,
		TurnMaxIterations:       25,
		TurnMaxDuration:         5 * time.Minute,
		BreakerFailureThreshold: 5,
		BreakerWindow:           60 * time.Second,
		BreakerCooldown:         30 * time.Second,
		SSEChannelCapacity:      64,
	}
}

// FromEnv parses env (in os.Environ() "KEY=VALUE" form) over Defaults(),
// recognizing every knob enumerated in spec.md §6. Unset or malformed
// values fall back to the default rather than failing startup.
func FromEnv(env []string) Config {
	lookup := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			lookup[k] = v
		}
	}
	get := func(key string) (string, bool) {
		v, ok := lookup[key]
		return v, ok
	}

	cfg := Defaults()
	cfg.HeartbeatInterval = durationMSOr(get, "HEARTBEAT_INTERVAL_MS", cfg.HeartbeatInterval)
	cfg.WorkerStaleMultiplier = intOr(get, "WORKER_STALE_MULTIPLIER", cfg.WorkerStaleMultiplier)

	cfg.TaskDefaultVisibility = durationMSOr(get, "TASK_DEFAULT_VISIBILITY_MS", cfg.TaskDefaultVisibility)
	cfg.TaskDefaultMaxAttempts = intOr(get, "TASK_DEFAULT_MAX_ATTEMPTS", cfg.TaskDefaultMaxAttempts)
	cfg.TaskBackoffBase = durationMSOr(get, "TASK_BACKOFF_BASE_MS", cfg.TaskBackoffBase)
	cfg.TaskBackoffCap = durationMSOr(get, "TASK_BACKOFF_CAP_MS", cfg.TaskBackoffCap)

	cfg.TurnMaxIterations = intOr(get, "TURN_MAX_ITERATIONS", cfg.TurnMaxIterations)
	cfg.TurnMaxDuration = durationMSOr(get, "TURN_MAX_DURATION_MS", cfg.TurnMaxDuration)

	cfg.BreakerFailureThreshold = intOr(get, "BREAKER_FAILURE_THRESHOLD", cfg.BreakerFailureThreshold)
	cfg.BreakerWindow = durationMSOr(get, "BREAKER_WINDOW_MS", cfg.BreakerWindow)
	cfg.BreakerCooldown = durationMSOr(get, "BREAKER_COOLDOWN_MS", cfg.BreakerCooldown)

	cfg.SSEChannelCapacity = intOr(get, "SSE_CHANNEL_CAPACITY", cfg.SSEChannelCapacity)
	return cfg
}

func intOr(get func(string) (string, bool), key string, defaultVal int) int {
	if v, ok := get(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func durationMSOr(get func(string) (string, bool), key string, defaultVal time.Duration) time.Duration {
	if v, ok := get(key); ok {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
