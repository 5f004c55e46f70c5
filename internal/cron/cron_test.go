package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() SchedulerConfig {
	return SchedulerConfig{Retry: RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}}
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		schedule string
		valid    bool
	}{
		{"0 */15 * * * *", true},
		{"*/5 * * * *", true},
		{"@every 1m", true},
		{"@hourly", true},
		{"", false},
		{"not a schedule", false},
		{"61 * * * * *", false},
	}
	for _, tt := range tests {
		t.Run(tt.schedule, func(t *testing.T) {
			_, err := ParseSchedule(tt.schedule)
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("err = %v, want ErrInvalidSchedule", err)
			}
		})
	}
}

func TestScheduler_AddRemove(t *testing.T) {
	s := NewScheduler(fastRetry())
	job := Job{Name: "a", Schedule: "@every 1h", Run: func(context.Context) error { return nil }}

	if err := s.AddJob(job); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddJob(job); !errors.Is(err, ErrJobExists) {
		t.Errorf("duplicate add = %v, want ErrJobExists", err)
	}
	if err := s.AddJob(Job{Name: "b", Schedule: "bogus", Run: job.Run}); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("bad schedule = %v, want ErrInvalidSchedule", err)
	}
	if got := s.Jobs(); len(got) != 1 || got[0] != "a" {
		t.Errorf("Jobs() = %v", got)
	}

	if err := s.RemoveJob("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.RemoveJob("a"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("second remove = %v, want ErrJobNotFound", err)
	}
}

func TestScheduler_RunNowRetries(t *testing.T) {
	s := NewScheduler(fastRetry())
	var calls atomic.Int32
	_ = s.AddJob(Job{Name: "flaky", Schedule: "@every 1h", Run: func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}})

	exec, err := s.RunNow(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if exec.Attempts != 3 || !exec.Successful {
		t.Errorf("execution = %+v", exec)
	}

	last, ok := s.LastExecution("flaky")
	if !ok || !last.Successful {
		t.Errorf("last execution = %+v, %v", last, ok)
	}

	if _, err := s.RunNow(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("missing job = %v", err)
	}
}

func TestScheduler_PermanentAndPanic(t *testing.T) {
	s := NewScheduler(fastRetry())
	var calls atomic.Int32
	_ = s.AddJob(Job{Name: "permanent", Schedule: "@every 1h", Run: func(context.Context) error {
		calls.Add(1)
		return Permanent(errors.New("bad config"))
	}})
	_ = s.AddJob(Job{Name: "panics", Schedule: "@every 1h", Run: func(context.Context) error {
		panic("boom")
	}})

	_, err := s.RunNow(context.Background(), "permanent")
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("err = %v, want ErrExecutionFailed", err)
	}
	if calls.Load() != 1 {
		t.Errorf("permanent error retried %d times", calls.Load())
	}

	exec, err := s.RunNow(context.Background(), "panics")
	if err == nil || exec.Attempts != 1 {
		t.Errorf("panic execution = %+v, %v", exec, err)
	}
}

func TestScheduler_NoOverlap(t *testing.T) {
	s := NewScheduler(fastRetry())
	release := make(chan struct{})
	started := make(chan struct{})
	_ = s.AddJob(Job{Name: "slow", Schedule: "@every 1h", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), "slow")
		done <- err
	}()
	<-started

	if _, err := s.RunNow(context.Background(), "slow"); !errors.Is(err, ErrJobRunning) {
		t.Errorf("overlapping run = %v, want ErrJobRunning", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first run: %v", err)
	}
}

func TestScheduler_StartRunsScheduledJobs(t *testing.T) {
	s := NewScheduler(fastRetry())
	ticks := make(chan struct{}, 10)
	_ = s.AddJob(Job{Name: "tick", Schedule: "@every 1s", Run: func(context.Context) error {
		ticks <- struct{}{}
		return nil
	}})

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, ok := s.NextRun("tick"); !ok {
		t.Error("NextRun not available after start")
	}

	select {
	case <-ticks:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, ok := s.NextRun("tick"); ok {
		t.Error("NextRun still available after stop")
	}
}

type fakeCleaner struct {
	maxAge time.Duration
	n      int
}

func (f *fakeCleaner) Cleanup(_ context.Context, maxAge time.Duration) (int, error) {
	f.maxAge = maxAge
	return f.n, nil
}

type fakePruner struct{ maxAge time.Duration }

func (f *fakePruner) Prune(maxAge time.Duration) int {
	f.maxAge = maxAge
	return 0
}

type fakeRunLog struct{ cutoff time.Time }

func (f *fakeRunLog) DeleteRunEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 2, nil
}

func TestMaintenanceJobs(t *testing.T) {
	s := NewScheduler(fastRetry())
	cleaner := &fakeCleaner{n: 3}
	pruner := &fakePruner{}
	runLog := &fakeRunLog{}

	for _, job := range []Job{
		ApprovalSweepJob("0 */15 * * * *", cleaner, 24*time.Hour),
		RunPruneJob("@hourly", pruner, 6*time.Hour),
		RunLogPruneJob("@daily", runLog, 72*time.Hour),
	} {
		if err := s.AddJob(job); err != nil {
			t.Fatalf("add %s: %v", job.Name, err)
		}
	}

	for _, name := range []string{JobApprovalSweep, JobRunPrune, JobRunLogPrune} {
		if _, err := s.RunNow(context.Background(), name); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}

	if cleaner.maxAge != 24*time.Hour {
		t.Errorf("cleanup maxAge = %v", cleaner.maxAge)
	}
	if pruner.maxAge != 6*time.Hour {
		t.Errorf("prune maxAge = %v", pruner.maxAge)
	}
	if age := time.Since(runLog.cutoff); age < 72*time.Hour || age > 73*time.Hour {
		t.Errorf("run log cutoff age = %v", age)
	}
}

func TestRetryPolicy_NextDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, w := range want {
		if got := p.NextDelay(i + 1); got != w {
			t.Errorf("NextDelay(%d) = %v, want %v", i+1, got, w)
		}
	}
}
