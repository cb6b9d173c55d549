package resilience_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapdeskhq/zapdesk/internal/resilience"
)

type statusError struct {
	status int
}

func (e *statusError) Error() string   { return "status error" }
func (e *statusError) HTTPStatus() int { return e.status }

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

var _ net.Error = (*timeoutError)(nil)

func TestDelayFor_NonDecreasingAndBounded(t *testing.T) {
	t.Parallel()
	policy := resilience.Policy{
		MaxAttempts:       10,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 2.0,
	}
	previous := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		delay := policy.DelayFor(attempt)
		if delay < previous {
			t.Fatalf("delay for attempt %d decreased: %v < %v", attempt, delay, previous)
		}
		if delay > policy.MaxDelay {
			t.Fatalf("delay for attempt %d exceeds max: %v", attempt, delay)
		}
		previous = delay
	}
	assert.Equal(t, 100*time.Millisecond, policy.DelayFor(1))
	assert.Equal(t, 200*time.Millisecond, policy.DelayFor(2))
	assert.Equal(t, 2*time.Second, policy.DelayFor(9))
}

func TestExecuteWithRetry_TerminalOn4xx(t *testing.T) {
	t.Parallel()
	calls := 0
	result := resilience.ExecuteWithRetry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", &statusError{status: 401}
	}, resilience.DefaultPolicy())

	require.False(t, result.OK())
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetry_RecoversAfterNetworkErrors(t *testing.T) {
	t.Parallel()
	calls := 0
	policy := resilience.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
	result := resilience.ExecuteWithRetry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &timeoutError{}
		}
		return "delivered", nil
	}, policy)

	require.True(t, result.OK())
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, "delivered", result.Value)
}

func TestExecuteWithRetry_ExhaustionReportsLastError(t *testing.T) {
	t.Parallel()
	lastErr := &statusError{status: 503}
	policy := resilience.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}
	result := resilience.ExecuteWithRetry(context.Background(), func(ctx context.Context) (int, error) {
		return 0, lastErr
	}, policy)

	require.False(t, result.OK())
	assert.Equal(t, 3, result.Attempts)
	assert.ErrorIs(t, result.Err, error(lastErr))
}

func TestExecuteWithRetry_OnRetryHookObservesEachRetry(t *testing.T) {
	t.Parallel()
	var observed []int
	policy := resilience.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		OnRetry: func(attempt int, err error) {
			observed = append(observed, attempt)
		},
	}
	resilience.ExecuteWithRetry(context.Background(), func(ctx context.Context) (int, error) {
		return 0, &timeoutError{}
	}, policy)

	assert.Equal(t, []int{1, 2}, observed)
}

func TestExecuteWithRetry_ContextCancelStopsBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	policy := resilience.Policy{
		MaxAttempts: 5,
		BaseDelay:   10 * time.Second,
	}
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	started := time.Now()
	result := resilience.ExecuteWithRetry(ctx, func(ctx context.Context) (int, error) {
		calls++
		return 0, &timeoutError{}
	}, policy)

	require.False(t, result.OK())
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(started), time.Second)
}

func TestDefaultRetryable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout", err: &timeoutError{}, want: true},
		{name: "server error", err: &statusError{status: 500}, want: true},
		{name: "bad gateway", err: &statusError{status: 502}, want: true},
		{name: "unauthorized", err: &statusError{status: 401}, want: false},
		{name: "unprocessable", err: &statusError{status: 422}, want: false},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := resilience.DefaultRetryable(tc.err); got != tc.want {
				t.Fatalf("DefaultRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
