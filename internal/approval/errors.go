package approval

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown or already consumed approval ids.
	ErrNotFound = errors.New("approval not found")

	// ErrAlreadyDecided is returned when a decision arrives for a request
	// that was decided but not yet consumed.
	ErrAlreadyDecided = errors.New("approval already decided")

	// ErrExpired is returned from Wait when the pending request was swept
	// by Cleanup before any decision arrived.
	ErrExpired = errors.New("approval expired before a decision")
)

// NotFoundError names the missing approval id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("approval not found: %s", e.ID)
}

// Is allows errors.Is to match against ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(id string) error {
	return &NotFoundError{ID: id}
}
