package batch

import (
	"context"

	"reelgate/internal/studio"
)

// Kind selects the generation endpoint and the scheduling strategy.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Status is the outcome of one segment task.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Request describes one batch.
type Request struct {
	Kind      Kind
	Token     string
	ProjectID string
	Model     string

	// RetrySegmentIDs restricts the batch to these segments. Empty means
	// every segment of the project.
	RetrySegmentIDs []string
}

// SegmentResult is the settled outcome of one segment.
type SegmentResult struct {
	SegmentID string `json:"segmentId"`
	Status    Status `json:"status"`
	Payload   any    `json:"payload,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result aggregates a batch. SuccessCount+FailureCount == TotalSegments.
type Result struct {
	TotalSegments int             `json:"totalSegments"`
	SuccessCount  int             `json:"successCount"`
	FailureCount  int             `json:"failureCount"`
	Results       []SegmentResult `json:"results"`
	IsRetry       bool            `json:"isRetry"`
	Success       bool            `json:"success"`
}

// ShouldRefund reports that the batch produced nothing billable.
func (r Result) ShouldRefund() bool {
	return r.SuccessCount == 0
}

// SegmentSource lists the segments of a project.
type SegmentSource interface {
	Segments(ctx context.Context, token, projectID string) ([]studio.Segment, error)
}

// Generator produces media for one segment.
type Generator interface {
	GenerateImage(ctx context.Context, token string, req studio.ImageRequest) (studio.Payload, error)
	GenerateVideo(ctx context.Context, token string, req studio.VideoRequest) (studio.Payload, error)
}

// Recorder receives batch counters.
type Recorder interface {
	SegmentFinished(kind string, status string)
}
