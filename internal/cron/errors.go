// Package cron runs the gateway's periodic maintenance jobs: sweeping stale
// approvals and pruning run history.
package cron

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound = errors.New("cron: no such job")
	ErrJobExists   = errors.New("cron: duplicate job name")
	// ErrJobRunning is returned when a run is requested while the previous
	// one has not returned yet. Scheduled ticks skip silently.
	ErrJobRunning = errors.New("cron: job still running")
)

// InvalidScheduleError reports a schedule robfig/cron could not parse.
type InvalidScheduleError struct {
	Schedule string
	Message  string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("cron: bad schedule %q: %s", e.Schedule, e.Message)
}

func (e *InvalidScheduleError) Is(target error) bool {
	_, ok := target.(*InvalidScheduleError)
	return ok
}

// ErrInvalidSchedule matches any *InvalidScheduleError via errors.Is.
var ErrInvalidSchedule = &InvalidScheduleError{}

// ExecutionFailedError wraps the last error of a job that ran out of retries.
type ExecutionFailedError struct {
	JobName  string
	Attempts int
	Cause    error
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("cron: %s failed (attempts=%d): %v", e.JobName, e.Attempts, e.Cause)
}

func (e *ExecutionFailedError) Unwrap() error { return e.Cause }

func (e *ExecutionFailedError) Is(target error) bool {
	_, ok := target.(*ExecutionFailedError)
	return ok
}

// ErrExecutionFailed matches any *ExecutionFailedError via errors.Is.
var ErrExecutionFailed = &ExecutionFailedError{}
