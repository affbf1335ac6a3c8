package stripebridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0,
	}
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	rs := NewRetryStrategy(fastRetryConfig())

	calls := 0
	err := rs.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return NewGatewayError(ErrRemoteUnavailable, "flaky", 0, nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	rs := NewRetryStrategy(fastRetryConfig())

	calls := 0
	err := rs.Do(context.Background(), func() error {
		calls++
		return NewGatewayError(ErrInvalidAmount, "bad order", 0, nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, ErrInvalidAmount, CodeOf(err))
}

func TestRetryExhaustsBudgetAndReturnsLastError(t *testing.T) {
	rs := NewRetryStrategy(fastRetryConfig())

	calls := 0
	err := rs.Do(context.Background(), func() error {
		calls++
		return NewGatewayError(ErrRateLimited, "throttled", 0, nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, ErrRateLimited, CodeOf(err))
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	rs := NewRetryStrategy(RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := rs.Do(ctx, func() error {
		calls++
		return NewGatewayError(ErrRemoteUnavailable, "down", 0, nil)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		CooldownPeriod:   time.Minute,
	})

	fail := func() error {
		return NewGatewayError(ErrRemoteUnavailable, "down", 0, nil)
	}

	require.Error(t, cb.Execute(fail))
	assert.Equal(t, CircuitClosed, cb.State())

	require.Error(t, cb.Execute(fail))
	assert.Equal(t, CircuitOpen, cb.State())

	calls := 0
	err := cb.Execute(func() error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, ErrCircuitOpen, CodeOf(err))
	assert.Zero(t, calls)
}

func TestCircuitBreakerIgnoresNonRetryableFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		CooldownPeriod:   time.Minute,
	})

	err := cb.Execute(func() error {
		return NewGatewayError(ErrInvalidAmount, "bad order", 0, nil)
	})
	require.Error(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerRecoversAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		CooldownPeriod:   5 * time.Millisecond,
	})

	require.Error(t, cb.Execute(func() error {
		return NewGatewayError(ErrRemoteUnavailable, "down", 0, nil)
	}))
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(10 * time.Millisecond)

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		CooldownPeriod:   5 * time.Millisecond,
	})

	fail := func() error {
		return NewGatewayError(ErrRemoteUnavailable, "down", 0, nil)
	}

	for i := 0; i < 3; i++ {
		require.Error(t, cb.Execute(fail))
	}
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(10 * time.Millisecond)

	// The probe fails; the breaker snaps back open without needing the
	// full threshold again.
	require.Error(t, cb.Execute(fail))
	assert.Equal(t, CircuitOpen, cb.State())
}
