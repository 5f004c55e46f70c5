// Package credits charges users for gated generation calls.
package credits

import (
	"context"
	"errors"
	"fmt"
)

// OpType names a billable operation.
type OpType string

const (
	OpImage      OpType = "image_generation"
	OpVideo      OpType = "video_generation"
	OpImageBatch OpType = "image_batch"
	OpVideoBatch OpType = "video_batch"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUnknownTransaction  = errors.New("unknown transaction")
)

// CheckResult is the answer to a balance check.
type CheckResult struct {
	HasEnough bool  `json:"hasEnough"`
	Required  int64 `json:"required"`
	Balance   int64 `json:"balance"`
}

// Ledger is the credit accounting contract.
type Ledger interface {
	Check(ctx context.Context, userID string, op OpType, model string) (CheckResult, error)

	// Deduct charges userID and returns a transaction id usable for Refund.
	Deduct(ctx context.Context, userID string, op OpType, model string) (string, error)

	Refund(ctx context.Context, transactionID, reason string) error
}

// InsufficientCreditsError reports the shortfall of a failed check.
type InsufficientCreditsError struct {
	Op       OpType
	Required int64
	Balance  int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits for %s: need %d, have %d", e.Op, e.Required, e.Balance)
}

// Is allows errors.Is to match against ErrInsufficientCredits.
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}
