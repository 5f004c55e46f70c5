package studio

import (
	"fmt"
)

// StudioError is a failed call to a generation endpoint.
type StudioError struct {
	Path    string
	Status  int // 0 when no response was received
	Message string

	// Transient failures (network, 429, 5xx) may succeed when retried.
	Transient bool
}

func (e *StudioError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("studio %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("studio %s: status %d: %s", e.Path, e.Status, e.Message)
}

// Retryable reports whether the call may be retried.
func (e *StudioError) Retryable() bool {
	return e.Transient
}

func isTransientStatus(status int) bool {
	return status == 429 || status >= 500
}
