package cron

import (
	"context"
	"time"

	"reelgate/pkg/logger"
)

// Maintenance job names.
const (
	JobApprovalSweep = "approval-sweep"
	JobRunPrune      = "run-prune"
	JobRunLogPrune   = "run-log-prune"
)

// ApprovalCleaner removes stale pending approvals.
type ApprovalCleaner interface {
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// RunPruner forgets finished runs.
type RunPruner interface {
	Prune(maxAge time.Duration) int
}

// RunLogPruner deletes old run records.
type RunLogPruner interface {
	DeleteRunEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ApprovalSweepJob removes approvals created more than maxAge ago. Runs
// still waiting on them are resumed as expired.
func ApprovalSweepJob(schedule string, cleaner ApprovalCleaner, maxAge time.Duration) Job {
	return Job{
		Name:     JobApprovalSweep,
		Schedule: schedule,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			n, err := cleaner.Cleanup(ctx, maxAge)
			if err != nil {
				return err
			}
			if n > 0 {
				log := logger.Component("cron")
				log.Info().Int("removed", n).Dur("max_age", maxAge).Msg("stale approvals swept")
			}
			return nil
		},
	}
}

// RunPruneJob drops finished run statuses older than maxAge.
func RunPruneJob(schedule string, pruner RunPruner, maxAge time.Duration) Job {
	return Job{
		Name:     JobRunPrune,
		Schedule: schedule,
		Run: func(context.Context) error {
			pruner.Prune(maxAge)
			return nil
		},
	}
}

// RunLogPruneJob deletes persisted run records older than retention.
func RunLogPruneJob(schedule string, pruner RunLogPruner, retention time.Duration) Job {
	return Job{
		Name:     JobRunLogPrune,
		Schedule: schedule,
		Timeout:  5 * time.Minute,
		Run: func(ctx context.Context) error {
			n, err := pruner.DeleteRunEventsBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			if n > 0 {
				log := logger.Component("cron")
				log.Info().Int64("removed", n).Msg("old run records deleted")
			}
			return nil
		},
	}
}
