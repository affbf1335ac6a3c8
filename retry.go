package stripebridge

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RetryConfig holds configuration for retry behavior on session creation.
// Capture is never auto-retried: a capture attempt must re-validate the
// remote status, so retries are left to a fresh buyer-driven attempt.
type RetryConfig struct {
	MaxAttempts  int           // Maximum number of attempts, including the first
	BaseDelay    time.Duration // Base delay for exponential backoff
	MaxDelay     time.Duration // Maximum delay between attempts
	JitterFactor float64       // Jitter as percentage (0.25 = ±25%)
}

// DefaultRetryConfig returns sensible defaults for provider calls made
// inside a synchronous checkout request.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    150 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		JitterFactor: 0.25,
	}
}

// RetryStrategy retries a function while its failures stay retryable.
type RetryStrategy struct {
	config RetryConfig
}

// NewRetryStrategy creates a new retry strategy
func NewRetryStrategy(config RetryConfig) *RetryStrategy {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &RetryStrategy{config: config}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. The last error is returned as-is so the
// canonical code survives.
func (rs *RetryStrategy) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < rs.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := rs.calculateBackoff(attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// calculateBackoff calculates exponential backoff with jitter
func (rs *RetryStrategy) calculateBackoff(attempt int) time.Duration {
	backoff := rs.config.BaseDelay * time.Duration(1<<uint(attempt))

	if backoff > rs.config.MaxDelay {
		backoff = rs.config.MaxDelay
	}

	jitterRange := float64(backoff) * rs.config.JitterFactor
	jitter := time.Duration(rand.Float64()*2*jitterRange - jitterRange)

	backoff += jitter

	if backoff < 0 {
		backoff = rs.config.BaseDelay
	}

	return backoff
}

// CircuitState represents the state of the session-create circuit breaker
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for the breaker guarding
// session creation. When the provider is down, further checkout renders
// fail fast instead of stacking up blocked requests.
type CircuitBreakerConfig struct {
	FailureThreshold int           // Consecutive retryable failures before opening
	CooldownPeriod   time.Duration // Wait in OPEN before probing again
}

// DefaultCircuitBreakerConfig returns production-ready defaults
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		CooldownPeriod:   30 * time.Second,
	}
}

// CircuitBreaker implements a minimal closed/open/half-open breaker.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	lastStateChange time.Time
	config          CircuitBreakerConfig
}

// NewCircuitBreaker creates a new circuit breaker with given config
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 1
	}
	return &CircuitBreaker{
		state:           CircuitClosed,
		config:          config,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn with breaker protection. Only retryable (provider-side)
// failures count toward opening; configuration errors do not.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(err)

	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if time.Since(cb.lastStateChange) > cb.config.CooldownPeriod {
			cb.transitionTo(CircuitHalfOpen)
			return nil
		}
		return NewGatewayError(ErrCircuitOpen, "provider circuit is open", 0, nil)
	}

	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.failureCount = 0
		if cb.state != CircuitClosed {
			cb.transitionTo(CircuitClosed)
		}
		return
	}

	if !IsRetryable(err) {
		return
	}

	cb.failureCount++
	if cb.state == CircuitHalfOpen || cb.failureCount >= cb.config.FailureThreshold {
		cb.transitionTo(CircuitOpen)
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transitionTo(state CircuitState) {
	cb.state = state
	cb.failureCount = 0
	cb.lastStateChange = time.Now()
}
