package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"reelgate/internal/agents"
	"reelgate/internal/provider"
	"reelgate/internal/stream"
	"reelgate/internal/tools"
)

// RunRequest starts a run.
type RunRequest struct {
	Prompt    string `json:"prompt"`
	UserID    string `json:"userId,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
	SegmentID string `json:"segmentId,omitempty"`
}

// Handle is returned by Start. The caller subscribes to Channel.
type Handle struct {
	RunID   string
	Agent   agents.AgentID
	Channel *stream.Channel
}

// RunContext is the state one run goroutine owns. The definition and tool
// set are snapshots taken at start.
type RunContext struct {
	RunID     string
	UserID    string
	ProjectID string
	SegmentID string
	Prompt    string
	Agent     agents.Definition
	Tools     *tools.Registry
	Channel   *stream.Channel
	StartedAt time.Time

	log           zerolog.Logger
	messages      []provider.Message
	iterations    int
	interruptions int
}

// attach puts the run's identity and emitter on ctx for tools.
func (rc *RunContext) attach(ctx context.Context) context.Context {
	ctx = tools.WithRunID(ctx, rc.RunID)
	ctx = tools.WithAgentName(ctx, string(rc.Agent.Name))
	if rc.UserID != "" {
		ctx = tools.WithUserID(ctx, rc.UserID)
	}
	if rc.ProjectID != "" {
		ctx = tools.WithProjectID(ctx, rc.ProjectID)
	}
	return stream.WithEmitter(ctx, rc.Channel)
}

func (rc *RunContext) systemPrompt() string {
	var b strings.Builder
	b.WriteString(rc.Agent.Instructions)
	if rc.ProjectID != "" || rc.SegmentID != "" {
		b.WriteString("\n\nContext:\n")
		if rc.ProjectID != "" {
			fmt.Fprintf(&b, "- project: %s\n", rc.ProjectID)
		}
		if rc.SegmentID != "" {
			fmt.Fprintf(&b, "- segment: %s\n", rc.SegmentID)
		}
	}
	return b.String()
}
