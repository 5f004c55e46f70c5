// Package v1 provides API v1 data types and handlers.
package v1

import (
	"time"

	"reelgate/internal/agents"
	"reelgate/internal/approval"
	"reelgate/internal/cron"
	"reelgate/internal/engine"
	"reelgate/internal/gateway/handlers"
	"reelgate/internal/storage"
)

// =============================================================================
// Error Codes
// =============================================================================

const (
	ErrCodeInvalidRequest     = handlers.ErrCodeInvalidRequest
	ErrCodeNotFound           = handlers.ErrCodeNotFound
	ErrCodeConflict           = handlers.ErrCodeConflict
	ErrCodeInternalError      = handlers.ErrCodeInternalError
	ErrCodeServiceUnavailable = handlers.ErrCodeServiceUnavailable
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
)

// =============================================================================
// Runs
// =============================================================================

// RunStartRequest is the body of POST /runs and the first frame of the run
// websocket.
type RunStartRequest struct {
	Prompt    string `json:"prompt"`
	ProjectID string `json:"projectId,omitempty"`
	SegmentID string `json:"segmentId,omitempty"`

	// UserID is honoured only when gateway auth is disabled.
	UserID string `json:"userId,omitempty"`
}

// RunsListResponse lists tracked runs.
type RunsListResponse struct {
	Runs []engine.RunStatus `json:"runs"`
}

// RunEventsResponse is the persisted record log of a run.
type RunEventsResponse struct {
	RunID  string             `json:"runId"`
	Events []storage.RunEvent `json:"events"`
}

// RunHistoryResponse lists persisted runs, most recent first.
type RunHistoryResponse struct {
	Runs []storage.RunSummary `json:"runs"`
}

// =============================================================================
// Approvals
// =============================================================================

// DecideRequest is the body of POST /approvals/{id}/decide.
type DecideRequest struct {
	Approved  bool           `json:"approved"`
	ExtraArgs map[string]any `json:"extraArgs,omitempty"`
}

// DecideResponse acknowledges a decision.
type DecideResponse struct {
	Status  approval.Status `json:"status"`
	Message string          `json:"message"`
}

// ApprovalsListResponse lists pending approvals.
type ApprovalsListResponse struct {
	Approvals []*approval.Request `json:"approvals"`
	Count     int                 `json:"count"`
}

// CleanupResponse reports how many stale approvals were removed.
type CleanupResponse struct {
	Removed int `json:"removed"`
}

// AuditResponse lists approval audit records.
type AuditResponse struct {
	Entries []storage.AuditEntry `json:"entries"`
}

// =============================================================================
// Agents
// =============================================================================

// AgentsListResponse lists specialist definitions.
type AgentsListResponse struct {
	Default agents.AgentID      `json:"default"`
	Agents  []agents.Definition `json:"agents"`
}

// SelectAgentRequest asks which specialist would handle a task.
type SelectAgentRequest struct {
	Prompt    string `json:"prompt"`
	ProjectID string `json:"projectId,omitempty"`
	SegmentID string `json:"segmentId,omitempty"`
}

// SelectAgentResponse names the chosen specialist.
type SelectAgentResponse struct {
	Agent agents.AgentID `json:"agent"`
	Tools []string       `json:"tools"`
}

// =============================================================================
// Jobs
// =============================================================================

// Job describes a maintenance job.
type Job struct {
	Name    string          `json:"name"`
	NextRun *time.Time      `json:"nextRun,omitempty"`
	LastRun *cron.Execution `json:"lastRun,omitempty"`
}

// JobsListResponse lists maintenance jobs.
type JobsListResponse struct {
	Jobs []Job `json:"jobs"`
}
