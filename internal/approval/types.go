// Package approval stores gated tool calls awaiting a human decision and
// resumes the suspended run exactly once when the decision arrives.
package approval

import (
	"time"
)

// Status is the lifecycle state of a Request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// AuthContext identifies who a gated call acts for. Credentials are never
// stored here.
type AuthContext struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId,omitempty"`
	SegmentID string `json:"segmentId,omitempty"`
}

// Request is a gated tool call awaiting or holding a decision.
type Request struct {
	ID          string         `json:"id"`
	RunID       string         `json:"runId"`
	AgentName   string         `json:"agentName"`
	ToolName    string         `json:"toolName"`
	Arguments   map[string]any `json:"arguments"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	DecidedAt   *time.Time     `json:"decidedAt,omitempty"`
	AuthContext AuthContext    `json:"authContext"`
}

// Clone returns a copy whose argument map can be mutated independently.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	c.Arguments = make(map[string]any, len(r.Arguments))
	for k, v := range r.Arguments {
		c.Arguments[k] = v
	}
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}

// mergeArgs overlays extra onto the stored arguments.
func mergeArgs(base, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// Outcome is what a suspended run receives when Wait returns.
type Outcome struct {
	Request  *Request
	Approved bool

	// TimedOut is set when the configured wait timeout elapsed. The run
	// treats it as a rejection.
	TimedOut bool
}
