// Package batch runs per-segment generation tasks for an approved batch
// action and aggregates their settled outcomes.
package batch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"reelgate/internal/studio"
	"reelgate/internal/stream"
	"reelgate/pkg/logger"
)

var (
	// ErrMissingCapability is returned before any task starts when the
	// batch has no capability token.
	ErrMissingCapability = errors.New("batch requires a capability token")

	ErrUnknownKind = errors.New("unknown batch kind")
)

// Executor runs segment batches. Image batches fan out concurrently with
// settle-all semantics; video batches run one segment at a time.
type Executor struct {
	source         SegmentSource
	generator      Generator
	maxConcurrency int
	recorder       Recorder
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxConcurrency caps concurrent image tasks. 0 means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(e *Executor) { e.maxConcurrency = n }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// NewExecutor creates an executor.
func NewExecutor(source SegmentSource, generator Generator, opts ...Option) *Executor {
	e := &Executor{source: source, generator: generator}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type task struct {
	segment studio.Segment
	missing bool
}

// Run executes the batch. Individual segment failures never fail the batch;
// an error is returned only when the batch cannot start.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Token == "" {
		return nil, ErrMissingCapability
	}
	if req.Kind != KindImage && req.Kind != KindVideo {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}

	segments, err := e.source.Segments(ctx, req.Token, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}

	tasks := selectTasks(segments, req.RetrySegmentIDs)
	results := make([]SegmentResult, len(tasks))

	if req.Kind == KindImage {
		var g errgroup.Group
		if e.maxConcurrency > 0 {
			g.SetLimit(e.maxConcurrency)
		}
		for i, t := range tasks {
			g.Go(func() error {
				results[i] = e.runTask(ctx, req, t)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, t := range tasks {
			results[i] = e.runTask(ctx, req, t)
		}
	}

	result := aggregate(results, len(req.RetrySegmentIDs) > 0)

	summary := fmt.Sprintf("Batch %s generation finished: %d/%d segments succeeded",
		req.Kind, result.SuccessCount, result.TotalSegments)
	_ = stream.EmitterFrom(ctx).Emit(stream.TypeLog, stream.LogData{Message: summary})

	log := logger.Component("batch")
	log.Info().
		Str("kind", string(req.Kind)).
		Str("project_id", req.ProjectID).
		Int("total", result.TotalSegments).
		Int("success", result.SuccessCount).
		Int("failed", result.FailureCount).
		Bool("retry", result.IsRetry).
		Msg("batch finished")

	return result, nil
}

func selectTasks(segments []studio.Segment, retryIDs []string) []task {
	if len(retryIDs) == 0 {
		tasks := make([]task, len(segments))
		for i, s := range segments {
			tasks[i] = task{segment: s}
		}
		return tasks
	}

	byID := make(map[string]studio.Segment, len(segments))
	for _, s := range segments {
		byID[s.ID] = s
	}

	seen := make(map[string]bool, len(retryIDs))
	tasks := make([]task, 0, len(retryIDs))
	for _, id := range retryIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		s, ok := byID[id]
		if !ok {
			tasks = append(tasks, task{segment: studio.Segment{ID: id}, missing: true})
			continue
		}
		tasks = append(tasks, task{segment: s})
	}
	return tasks
}

// runTask settles one segment. Errors and panics become failed results.
func (e *Executor) runTask(ctx context.Context, req Request, t task) (res SegmentResult) {
	res.SegmentID = t.segment.ID

	defer func() {
		if r := recover(); r != nil {
			res = SegmentResult{SegmentID: t.segment.ID, Status: StatusFailed, Error: fmt.Sprintf("panic: %v", r)}
		}
		if res.Status == StatusFailed {
			log := logger.Component("batch")
			log.Warn().Str("segment_id", res.SegmentID).Str("kind", string(req.Kind)).Str("error", res.Error).Msg("segment failed")
		}
		if e.recorder != nil {
			e.recorder.SegmentFinished(string(req.Kind), string(res.Status))
		}
	}()

	if t.missing {
		res.Status = StatusFailed
		res.Error = "segment not found in project"
		return res
	}

	var (
		payload studio.Payload
		err     error
	)
	switch req.Kind {
	case KindImage:
		payload, err = e.generator.GenerateImage(ctx, req.Token, studio.ImageRequest{
			ProjectID: req.ProjectID,
			SegmentID: t.segment.ID,
			Prompt:    t.segment.Prompt,
			Model:     req.Model,
		})
	case KindVideo:
		payload, err = e.generator.GenerateVideo(ctx, req.Token, studio.VideoRequest{
			ProjectID: req.ProjectID,
			SegmentID: t.segment.ID,
			Prompt:    t.segment.Prompt,
			ImageURL:  t.segment.ImageURL,
			Model:     req.Model,
		})
	}

	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}
	res.Status = StatusSuccess
	res.Payload = payload
	return res
}

func aggregate(results []SegmentResult, isRetry bool) *Result {
	out := &Result{
		TotalSegments: len(results),
		Results:       results,
		IsRetry:       isRetry,
	}
	for _, r := range results {
		if r.Status == StatusSuccess {
			out.SuccessCount++
		} else {
			out.FailureCount++
		}
	}
	out.Success = out.FailureCount == 0
	return out
}
