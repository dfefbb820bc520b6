package taskqueue

import (
	"math/rand"
	"time"
)

// Backoff computes the exponential-backoff-with-jitter delay before retrying
// a failed attempt, per spec.md §4.2:
//
//	base · 2^(attempt-1) · uniform(0.5, 1.5), clamped to cap.
//
// attempt is 1-indexed (the attempt number that just failed). base and cap
// are configured per activity type.
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = time.Second
	}
	// Clamp the shift so overflow cannot produce a negative duration for
	// large attempt counts; the cap below makes anything past ~20 attempts
	// saturate to maxDelay regardless.
	shift := attempt - 1
	if shift > 20 {
		shift = 20
	}
	d := time.Duration(uint64(1)<<uint(shift)) * base
	jitter := 0.5 + rand.Float64() // uniform(0.5, 1.5)
	d = time.Duration(float64(d) * jitter)
	if maxDelay > 0 && (d > maxDelay || d < 0) {
		d = maxDelay
	}
	return d
}
