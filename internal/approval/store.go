package approval

import (
	"context"
	"time"
)

// Store persists approval requests. Implementations must make Resolve
// atomic: of two concurrent decisions for one id exactly one succeeds.
type Store interface {
	// Put stores a new request.
	Put(ctx context.Context, req *Request) error

	// Get returns a copy of the request or a NotFoundError.
	Get(ctx context.Context, id string) (*Request, error)

	// Resolve moves a pending request to approved or rejected, merging extra
	// into its arguments. It fails with NotFoundError or ErrAlreadyDecided.
	Resolve(ctx context.Context, id string, approved bool, extra map[string]any, at time.Time) (*Request, error)

	// Delete removes the request. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error

	// ListPending returns pending requests ordered by creation time.
	ListPending(ctx context.Context) ([]*Request, error)

	// Count returns the number of stored requests in any status.
	Count(ctx context.Context) (int, error)

	// RemoveOlderThan deletes requests created strictly before cutoff and
	// returns their ids.
	RemoveOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}
