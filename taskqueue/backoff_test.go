package taskqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsAndClamps(t *testing.T) {
	base := 100 * time.Millisecond
	cap := 2 * time.Second

	prevMax := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		// Sample several times since jitter is random; the clamp must hold and
		// the theoretical max for each attempt should trend upward until capped.
		for i := 0; i < 20; i++ {
			d := Backoff(attempt, base, cap)
			assert.LessOrEqual(t, d, cap)
			assert.GreaterOrEqual(t, d, time.Duration(0))
		}
		theoreticalMax := time.Duration(float64(int64(1)<<uint(minInt(attempt-1, 20))) * float64(base) * 1.5)
		if theoreticalMax > cap {
			theoreticalMax = cap
		}
		assert.GreaterOrEqual(t, theoreticalMax, prevMax)
		prevMax = theoreticalMax
	}
}

func TestBackoffDefaultsWhenBaseZero(t *testing.T) {
	d := Backoff(1, 0, time.Minute)
	assert.Greater(t, d, time.Duration(0))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
