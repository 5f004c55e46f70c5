package cron

import (
	"errors"
	"math"
	"time"
)

// RetryableError reports whether a failed job is worth running again.
type RetryableError interface {
	error
	Retryable() bool
}

// RetryPolicy defines how a failed execution is retried within one tick.
type RetryPolicy struct {
	// MaxAttempts counts the first run. 1 or less disables retries.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy retries twice with a short backoff. Maintenance jobs
// run again on the next tick anyway.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// ShouldRetry reports whether another attempt follows attempts failures.
func (p RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil || attempts >= p.MaxAttempts {
		return false
	}
	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}
	return true
}

// NextDelay returns the pause before retry number attempt (1-based).
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.InitialDelay
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() error   { return e.err }
func (e *permanentError) Retryable() bool { return false }

// Permanent marks err so the job is not retried within the current tick.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
