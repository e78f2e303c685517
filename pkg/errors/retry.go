package errors

import (
	"context"
	"time"
)

// RetryPolicy defines how operations should be retried. Attempts are
// numbered from 1.
type RetryPolicy interface {
	// ShouldRetry determines if another attempt follows the failed attempt.
	ShouldRetry(err error, attempt int) bool

	// RetryDelay is the wait after the given failed attempt.
	RetryDelay(attempt int) time.Duration

	// MaxAttempts returns the total number of attempts, first one included.
	MaxAttempts() int
}

// LinearBackoffPolicy waits BaseDelay after the first failure and grows the
// wait by Increment after each further failure, capped at MaxDelay when set.
type LinearBackoffPolicy struct {
	BaseDelay time.Duration
	Increment time.Duration
	MaxDelay  time.Duration
	Attempts  int
}

// NewLinearBackoffPolicy creates a new linear backoff policy.
func NewLinearBackoffPolicy(baseDelay, increment, maxDelay time.Duration, maxAttempts int) *LinearBackoffPolicy {
	return &LinearBackoffPolicy{
		BaseDelay: baseDelay,
		Increment: increment,
		MaxDelay:  maxDelay,
		Attempts:  maxAttempts,
	}
}

// DefaultDeliveryPolicy is the durable channel policy: 3 attempts, waiting
// 1s then 2s between them.
func DefaultDeliveryPolicy() *LinearBackoffPolicy {
	return NewLinearBackoffPolicy(time.Second, time.Second, 0, 3)
}

// NoDelayPolicy retries immediately. Intended for tests.
func NoDelayPolicy(maxAttempts int) *LinearBackoffPolicy {
	return NewLinearBackoffPolicy(0, 0, 0, maxAttempts)
}

// ShouldRetry determines if an error should be retried.
func (p *LinearBackoffPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.Attempts {
		return false
	}
	if ne, ok := As(err); ok {
		return ne.Retryable
	}
	// Raw transport errors carry no hint; treat them as transient.
	return true
}

// RetryDelay calculates the delay before the next attempt.
func (p *LinearBackoffPolicy) RetryDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := p.BaseDelay + time.Duration(attempt-1)*p.Increment
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// MaxAttempts returns the maximum number of attempts.
func (p *LinearBackoffPolicy) MaxAttempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
