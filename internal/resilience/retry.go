// Package resilience provides the retry executor and circuit breaker used to
// guard gateway calls. Both primitives return results as data; they never
// panic across their boundary.
package resilience

import (
	"context"
	"errors"
	"math"
	"net"
	"os"
	"syscall"
	"time"
)

// StatusCoder is implemented by errors that carry an HTTP response status.
// It lets the default predicate classify gateway failures without this
// package depending on the gateway client.
type StatusCoder interface {
	HTTPStatus() int
}

// Policy configures bounded retries with exponential backoff. A zero Policy
// is usable; missing fields are filled from DefaultPolicy.
type Policy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// Retryable decides whether a failed attempt may be retried.
	Retryable func(error) bool
	// OnRetry is an optional observation hook invoked before each retry.
	// It must not affect control flow.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns the delivery-path defaults: 3 attempts, 1s base
// delay doubling up to 10s, retrying network errors, timeouts, and 5xx.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		Retryable:         DefaultRetryable,
	}
}

func (p Policy) normalized() Policy {
	defaults := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaults.MaxDelay
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if p.Retryable == nil {
		p.Retryable = DefaultRetryable
	}
	return p
}

// DelayFor returns the backoff delay applied after failed attempt n (n >= 1):
// min(BaseDelay * BackoffMultiplier^(n-1), MaxDelay).
func (p Policy) DelayFor(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// DefaultRetryable retries network errors, timeouts, and HTTP 5xx responses.
// Client errors (4xx) and context cancellation are terminal.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var coder StatusCoder
	if errors.As(err, &coder) {
		return coder.HTTPStatus() >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	return false
}

// Operation is a retryable unit of work.
type Operation[T any] func(ctx context.Context) (T, error)

// Result reports the outcome of a retried operation as data, so callers
// branch on fields instead of recovering from panics or sentinel control flow.
type Result[T any] struct {
	Value    T
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// OK reports whether the operation eventually succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// ExecuteWithRetry runs op up to policy.MaxAttempts times with exponential
// backoff between attempts. Cancelling ctx aborts pending sleeps and further
// attempts; the context error is then reported as the result error.
func ExecuteWithRetry[T any](ctx context.Context, op Operation[T], policy Policy) Result[T] {
	policy = policy.normalized()
	started := time.Now()
	var result Result[T]
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		value, err := op(ctx)
		result.Attempts = attempt
		result.Elapsed = time.Since(started)
		if err == nil {
			result.Value = value
			result.Err = nil
			return result
		}
		result.Err = err
		if attempt == policy.MaxAttempts || !policy.Retryable(err) {
			return result
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err)
		}
		if sleepErr := sleep(ctx, policy.DelayFor(attempt)); sleepErr != nil {
			result.Err = sleepErr
			result.Elapsed = time.Since(started)
			return result
		}
	}
	return result
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
