// Package tools defines the Tool interface, typed parameter binding and the
// registry the run engine offers to the reasoning model.
package tools

import (
	"context"
)

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	userIDKey    contextKey = "user_id"
	agentNameKey contextKey = "agent_name"
	projectIDKey contextKey = "project_id"
)

// WithRunID returns a new context carrying the run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext retrieves the run id, if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok
}

// WithUserID returns a new context carrying the requesting user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the user id, if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// WithAgentName returns a new context carrying the acting specialist name.
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentNameKey, name)
}

// AgentNameFromContext retrieves the specialist name, if present.
func AgentNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(agentNameKey).(string)
	return name, ok
}

// WithProjectID returns a new context carrying the project a run works on.
func WithProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, projectIDKey, projectID)
}

// ProjectIDFromContext retrieves the project id, if present.
func ProjectIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(projectIDKey).(string)
	return id, ok && id != ""
}

// Tool is a capability a specialist can invoke.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description for the model.
	Description() string

	// Parameters returns the JSON Schema of the tool's arguments.
	Parameters() map[string]any

	// NeedsApproval reports whether a call must be approved by a human
	// before it executes.
	NeedsApproval() bool

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	// Content is the text fed back to the model.
	Content string `json:"content"`

	// Data is the structured payload streamed to the client.
	Data any `json:"data,omitempty"`

	IsError bool `json:"isError,omitempty"`
}

// NewSuccessResult creates a successful text result.
func NewSuccessResult(content string) ToolResult {
	return ToolResult{Content: content}
}

// NewDataResult creates a successful result with a structured payload.
func NewDataResult(content string, data any) ToolResult {
	return ToolResult{Content: content, Data: data}
}

// NewErrorResult creates an error result.
func NewErrorResult(errMsg string) ToolResult {
	return ToolResult{Content: errMsg, IsError: true}
}

// String returns a string representation of the result.
func (r ToolResult) String() string {
	if r.IsError {
		return "[error] " + r.Content
	}
	return r.Content
}

// BaseTool provides the descriptive half of a Tool.
type BaseTool struct {
	ToolName        string
	ToolDescription string
	ToolParameters  map[string]any
	Gated           bool
}

// Name returns the tool name.
func (t *BaseTool) Name() string {
	return t.ToolName
}

// Description returns the tool description.
func (t *BaseTool) Description() string {
	return t.ToolDescription
}

// NeedsApproval reports whether the tool is gated.
func (t *BaseTool) NeedsApproval() bool {
	return t.Gated
}

// Parameters returns the tool parameters schema.
func (t *BaseTool) Parameters() map[string]any {
	if t.ToolParameters == nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return t.ToolParameters
}
