package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPrompt rejects a run with nothing to do.
	ErrEmptyPrompt = errors.New("prompt is required")

	// ErrMaxIterations ends a run whose model keeps calling tools.
	ErrMaxIterations = errors.New("maximum iterations reached")

	// ErrRunNotFound is returned by Status for unknown run ids.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFatal matches every RunFatalError.
	ErrRunFatal = errors.New("run failed")
)

// RunFatalError ends a run. It is raised once at the top of the run
// goroutine and becomes the run's single error message.
type RunFatalError struct {
	RunID string
	Cause error
}

func (e *RunFatalError) Error() string {
	return fmt.Sprintf("agent run failed: %v", e.Cause)
}

// Is allows errors.Is to match against ErrRunFatal.
func (e *RunFatalError) Is(target error) bool {
	return target == ErrRunFatal
}

// Unwrap returns the underlying cause.
func (e *RunFatalError) Unwrap() error {
	return e.Cause
}

func fatal(runID string, err error) *RunFatalError {
	var rf *RunFatalError
	if errors.As(err, &rf) {
		return rf
	}
	return &RunFatalError{RunID: runID, Cause: err}
}
