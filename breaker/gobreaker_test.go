package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOpensAfterConsecutiveFailures(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 3, Window: time.Minute, Cooldown: 50 * time.Millisecond})
	key := "llm:anthropic"

	for i := 0; i < 3; i++ {
		allowed, probe := r.Allow(key)
		require.True(t, allowed)
		require.False(t, probe)
		r.Report(key, false)
	}

	assert.Equal(t, StateOpen, r.State(key))
	allowed, _ := r.Allow(key)
	assert.False(t, allowed, "open breaker must refuse claims for the cooldown duration")
}

func TestRegistryHalfOpenAdmitsOneProbe(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 1, Window: time.Minute, Cooldown: 20 * time.Millisecond})
	key := "tool:weather"

	allowed, _ := r.Allow(key)
	require.True(t, allowed)
	r.Report(key, false)
	require.Equal(t, StateOpen, r.State(key))

	time.Sleep(30 * time.Millisecond)

	allowed1, probe1 := r.Allow(key)
	require.True(t, allowed1)
	assert.True(t, probe1, "first claim after cooldown must be the half-open probe")

	allowed2, _ := r.Allow(key)
	assert.False(t, allowed2, "a second concurrent claim must not also be admitted as a probe")

	r.Report(key, true)
	assert.Equal(t, StateClosed, r.State(key), "a successful probe closes the breaker")
}

func TestRegistryResetForcesClosed(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 1, Window: time.Minute, Cooldown: time.Hour})
	key := "llm:bedrock"
	r.Allow(key)
	r.Report(key, false)
	require.Equal(t, StateOpen, r.State(key))

	r.Reset(key)
	assert.Equal(t, StateClosed, r.State(key))
}
