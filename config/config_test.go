package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaultsWhenUnset(t *testing.T) {
	cfg := FromEnv(nil)
	want := Defaults()
	if cfg != want {
		t.Fatalf("FromEnv(nil) = %+v, want defaults %+v", cfg, want)
	}
}

func TestFromEnvParsesKnobs(t *testing.T) {
	env := []string{
		"HEARTBEAT_INTERVAL_MS=1000",
		"WORKER_STALE_MULTIPLIER=2",
		"TASK_DEFAULT_VISIBILITY_MS=15000",
		"TASK_DEFAULT_MAX_ATTEMPTS=10",
		"TASK_BACKOFF_BASE_MS=200",
		"TASK_BACKOFF_CAP_MS=60000",
		"TURN_MAX_ITERATIONS=50",
		"TURN_MAX_DURATION_MS=600000",
		"BREAKER_FAILURE_THRESHOLD=3",
		"BREAKER_WINDOW_MS=30000",
		"BREAKER_COOLDOWN_MS=15000",
		"SSE_CHANNEL_CAPACITY=128",
	}
	cfg := FromEnv(env)
	if cfg.HeartbeatInterval != time.Second {
		t.Errorf("HeartbeatInterval = %v, want 1s", cfg.HeartbeatInterval)
	}
	if cfg.WorkerStaleMultiplier != 2 {
		t.Errorf("WorkerStaleMultiplier = %d, want 2", cfg.WorkerStaleMultiplier)
	}
	if cfg.TaskDefaultVisibility != 15*time.Second {
		t.Errorf("TaskDefaultVisibility = %v, want 15s", cfg.TaskDefaultVisibility)
	}
	if cfg.TaskDefaultMaxAttempts != 10 {
		t.Errorf("TaskDefaultMaxAttempts = %d, want 10", cfg.TaskDefaultMaxAttempts)
	}
	if cfg.TurnMaxIterations != 50 {
		t.Errorf("TurnMaxIterations = %d, want 50", cfg.TurnMaxIterations)
	}
	if cfg.BreakerFailureThreshold != 3 {
		t.Errorf("BreakerFailureThreshold = %d, want 3", cfg.BreakerFailureThreshold)
	}
	if cfg.SSEChannelCapacity != 128 {
		t.Errorf("SSEChannelCapacity = %d, want 128", cfg.SSEChannelCapacity)
	}
}

func TestFromEnvIgnoresMalformedValue(t *testing.T) {
	cfg := FromEnv([]string{"TURN_MAX_ITERATIONS=not-a-number"})
	if cfg.TurnMaxIterations != Defaults().TurnMaxIterations {
		t.Errorf("malformed value should fall back to default, got %d", cfg.TurnMaxIterations)
	}
}
