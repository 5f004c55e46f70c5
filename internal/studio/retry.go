package studio

import (
	"errors"
	"math"
	"time"
)

// RetryPolicy controls how transient studio failures are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 behave as 1.
	MaxAttempts int
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff factor.
	Multiplier float64
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// NewRetryPolicy creates a retry policy from configuration values.
func NewRetryPolicy(maxAttempts int, initialDelay, maxDelay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		Multiplier:   2.0,
	}
}

// ShouldRetry reports whether another attempt is allowed after attempts
// calls have failed with err. Only transient StudioErrors are retried.
func (p RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil || attempts >= p.MaxAttempts {
		return false
	}
	var se *StudioError
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}

// NextDelay returns the backoff before retry number attempt (0-based).
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return p.InitialDelay
	}

	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
