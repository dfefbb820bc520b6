package breaker

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// registry adapts github.com/sony/gobreaker/v2's generic
// TwoStepCircuitBreaker to the Registry interface, one breaker instance per
// key. TwoStepCircuitBreaker.Allow()'s (done func, err) shape already
// implements the "admit at most one concurrent half-open probe" rule spec.md
// §4.3 requires, so the adapter only needs to translate gobreaker.State to
// our State vocabulary and fan out per key.
type registry struct {
	mu       sync.Mutex
	settings Settings
	breakers map[string]*gobreaker.TwoStepCircuitBreaker[any]
	pending  map[string]func(bool)
}

// NewRegistry returns a Registry whose breakers all share settings. A real
// deployment may want per-key overrides; spec.md's environment knobs
// (BREAKER_FAILURE_THRESHOLD, BREAKER_WINDOW_MS, BREAKER_COOLDOWN_MS) are
// process-wide, so one shared Settings is sufficient here.
func NewRegistry(settings Settings) Registry {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.Window <= 0 {
		settings.Window = time.Minute
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	return &registry{
		settings: settings,
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker[any]),
		pending:  make(map[string]func(bool)),
	}
}

func (r *registry) breakerFor(key string) *gobreaker.TwoStepCircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		settings := r.settings
		b = gobreaker.NewTwoStepCircuitBreaker[any](gobreaker.Settings{
			Name:        key,
			MaxRequests: 1, // at most one concurrent half-open probe per key
			Interval:    settings.Window,
			Timeout:     settings.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= settings.FailureThreshold
			},
		})
		r.breakers[key] = b
	}
	return b
}

func (r *registry) Allow(key string) (allowed bool, probe bool) {
	b := r.breakerFor(key)
	done, err := b.Allow()
	if err != nil {
		// gobreaker.ErrOpenState or ErrTooManyRequests: refuse the claim, the
		// task remains pending and is retried on the next claim cycle.
		return false, false
	}
	r.mu.Lock()
	r.pending[key] = done
	r.mu.Unlock()
	return true, b.State() == gobreaker.StateHalfOpen
}

func (r *registry) Report(key string, success bool) {
	r.mu.Lock()
	done, ok := r.pending[key]
	delete(r.pending, key)
	r.mu.Unlock()
	if ok {
		done(success)
	}
}

func (r *registry) State(key string) State {
	b := r.breakerFor(key)
	switch b.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func (r *registry) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// gobreaker has no explicit reset; replacing the instance is equivalent
	// and safe since in-flight Allow() calls hold their own *CircuitBreaker
	// reference via closures captured before the swap.
	delete(r.breakers, key)
	delete(r.pending, key)
}
