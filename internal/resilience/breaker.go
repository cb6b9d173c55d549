package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is rejected because the per-key
// circuit is open and the cool-down has not elapsed. The guarded operation
// is not invoked and no retry attempt is consumed.
var ErrCircuitOpen = errors.New("circuit breaker open")

const (
	defaultOpenThreshold = 5
	defaultCoolDown      = 60 * time.Second
)

type breakerState struct {
	consecutiveFailures int
	lastFailureAt       time.Time
	open                bool
}

// Breakers tracks circuit state per opaque key (typically the gateway
// instance name). State is process-wide and guarded by a mutex; concurrent
// operations on the same key observe a consistent counter.
//
// The circuit closes again by blind timeout after the cool-down, without a
// half-open trial request. This mirrors the dashboard's established breaker
// behavior; see DESIGN.md before changing it.
type Breakers struct {
	mu        sync.Mutex
	states    map[string]*breakerState
	threshold int
	coolDown  time.Duration
	now       func() time.Time
}

// NewBreakers creates a breaker registry opening circuits after 5
// consecutive failures with a 60s cool-down.
func NewBreakers() *Breakers {
	return &Breakers{
		states:    map[string]*breakerState{},
		threshold: defaultOpenThreshold,
		coolDown:  defaultCoolDown,
		now:       time.Now,
	}
}

// Allow reports whether a call for the key may proceed. An open circuit
// whose cool-down elapsed is closed and reset before allowing the call.
func (b *Breakers) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.states[key]
	if !ok || !state.open {
		return true
	}
	if b.now().Sub(state.lastFailureAt) >= b.coolDown {
		state.open = false
		state.consecutiveFailures = 0
		return true
	}
	return false
}

// Record registers the outcome of a completed call. Success closes the
// circuit and resets the counter; failure increments it, opening the circuit
// at the threshold.
func (b *Breakers) Record(key string, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.states[key]
	if !ok {
		state = &breakerState{}
		b.states[key] = state
	}
	if success {
		state.consecutiveFailures = 0
		state.open = false
		return
	}
	state.consecutiveFailures++
	state.lastFailureAt = b.now()
	if state.consecutiveFailures >= b.threshold {
		state.open = true
	}
}

// IsOpen reports whether the key's circuit is currently open, ignoring the
// cool-down (Allow performs the timed reset).
func (b *Breakers) IsOpen(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.states[key]
	return ok && state.open
}

// ExecuteWithBreaker wraps ExecuteWithRetry with the per-key circuit check.
// A rejected call returns ErrCircuitOpen with zero attempts; a completed
// call records its final outcome against the key.
func ExecuteWithBreaker[T any](ctx context.Context, breakers *Breakers, key string, op Operation[T], policy Policy) Result[T] {
	if !breakers.Allow(key) {
		return Result[T]{Err: ErrCircuitOpen}
	}
	result := ExecuteWithRetry(ctx, op, policy)
	breakers.Record(key, result.OK())
	return result
}
