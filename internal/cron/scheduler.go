package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"reelgate/pkg/logger"
)

const defaultJobTimeout = 10 * time.Minute

// Scheduler runs registered jobs with robfig/cron. Executions of the same
// job never overlap.
type Scheduler struct {
	cron    *cron.Cron
	retry   RetryPolicy
	log     zerolog.Logger
	mu      sync.RWMutex
	jobs    map[string]*Job
	entries map[string]cron.EntryID
	last    map[string]Execution
	running bool

	wg        sync.WaitGroup
	executing sync.Map // job name -> start time
}

// SchedulerConfig configures the scheduler.
type SchedulerConfig struct {
	// Location for time zone handling. Nil uses time.Local.
	Location *time.Location

	Retry RetryPolicy
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultRetryPolicy()
	}

	log := logger.Component("cron")
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(config.Location),
		cron.WithLogger(cron.PrintfLogger(&log)),
	)

	return &Scheduler{
		cron:    c,
		retry:   config.Retry,
		log:     log,
		jobs:    make(map[string]*Job),
		entries: make(map[string]cron.EntryID),
		last:    make(map[string]Execution),
	}
}

// AddJob validates and registers job. It is scheduled immediately when the
// scheduler is running.
func (s *Scheduler) AddJob(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("cron: job needs a name and a run function")
	}
	if _, err := ParseSchedule(job.Schedule); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Name)
	}
	s.jobs[job.Name] = &job
	if s.running {
		if err := s.addEntryLocked(&job); err != nil {
			delete(s.jobs, job.Name)
			return err
		}
	}

	s.log.Info().Str("job", job.Name).Str("schedule", job.Schedule).Msg("job added")
	return nil
}

// RemoveJob unregisters a job. A running execution finishes.
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	delete(s.jobs, name)
	return nil
}

// Start schedules every registered job.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("cron: scheduler already running")
	}
	for _, job := range s.jobs {
		if err := s.addEntryLocked(job); err != nil {
			s.log.Error().Err(err).Str("job", job.Name).Msg("failed to register job")
		}
	}
	s.cron.Start()
	s.running = true
	s.log.Info().Int("jobs", len(s.entries)).Msg("scheduler started")
	return nil
}

// Stop stops scheduling and waits up to ctx for running executions.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cron.Stop()
	s.entries = make(map[string]cron.EntryID)
	s.running = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes a job immediately on the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) (Execution, error) {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return Execution{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return s.execute(ctx, job)
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun returns the next scheduled time of a job.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	if entry.ID == 0 {
		return time.Time{}, false
	}
	return entry.Next, true
}

// LastExecution returns the outcome of the latest run of a job.
func (s *Scheduler) LastExecution(name string) (Execution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.last[name]
	return e, ok
}

// addEntryLocked registers job with cron. Caller must hold s.mu.
func (s *Scheduler) addEntryLocked(job *Job) error {
	id, err := s.cron.AddFunc(normalizeSchedule(job.Schedule), func() {
		if _, err := s.execute(context.Background(), job); err != nil && !errors.Is(err, ErrJobRunning) {
			s.log.Error().Err(err).Str("job", job.Name).Msg("scheduled job failed")
		}
	})
	if err != nil {
		return &InvalidScheduleError{Schedule: job.Schedule, Message: err.Error()}
	}
	s.entries[job.Name] = id
	return nil
}

func (s *Scheduler) execute(ctx context.Context, job *Job) (Execution, error) {
	start := time.Now()
	if prev, loaded := s.executing.LoadOrStore(job.Name, start); loaded {
		s.log.Warn().
			Str("job", job.Name).
			Time("previous_start", prev.(time.Time)).
			Msg("skipping overlapping execution")
		return Execution{}, fmt.Errorf("%w: %s", ErrJobRunning, job.Name)
	}
	defer s.executing.Delete(job.Name)

	s.wg.Add(1)
	defer s.wg.Done()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		err      error
		attempts int
	)
	for {
		attempts++
		err = runGuarded(ctx, job)
		if !s.retry.ShouldRetry(attempts, err) {
			break
		}
		delay := s.retry.NextDelay(attempts)
		s.log.Debug().Err(err).Str("job", job.Name).Dur("delay", delay).Msg("retrying job")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
		}
		if ctx.Err() != nil {
			break
		}
	}

	exec := Execution{
		Name:       job.Name,
		StartedAt:  start,
		Duration:   time.Since(start),
		Attempts:   attempts,
		Successful: err == nil,
	}
	if err != nil {
		err = &ExecutionFailedError{JobName: job.Name, Attempts: attempts, Cause: err}
		exec.Error = err.Error()
	}

	s.mu.Lock()
	s.last[job.Name] = exec
	s.mu.Unlock()

	s.log.Debug().Str("job", job.Name).Dur("duration", exec.Duration).Bool("ok", exec.Successful).Msg("job executed")
	return exec, err
}

func runGuarded(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("panic: %v", r))
		}
	}()
	return job.Run(ctx)
}
