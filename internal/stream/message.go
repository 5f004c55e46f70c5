// Package stream carries the ordered, per-run event sequence from the run
// engine to the single client subscribed to that run.
package stream

import (
	"time"
)

// MessageType identifies a stream message.
type MessageType string

const (
	TypeLog              MessageType = "log"
	TypeApprovalRequired MessageType = "approval_required"
	TypeResult           MessageType = "result"
	TypeError            MessageType = "error"
	TypeCompleted        MessageType = "completed"
)

// Terminal reports whether t ends a run's sequence.
func (t MessageType) Terminal() bool {
	return t == TypeCompleted || t == TypeError
}

// Message is one frame of a run's stream.
type Message struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// LogData is the payload of a log message.
type LogData struct {
	Message string `json:"message"`
}

// ApprovalRequiredData announces a gated tool call awaiting a decision.
type ApprovalRequiredData struct {
	ApprovalID string         `json:"approvalId"`
	ToolName   string         `json:"toolName"`
	AgentName  string         `json:"agentName"`
	Arguments  map[string]any `json:"arguments"`
}

// ResultData carries the output of an approved tool call.
type ResultData struct {
	ApprovalID string `json:"approvalId"`
	ToolName   string `json:"toolName"`
	Output     any    `json:"output"`
}

// ErrorData is the payload of the terminal error message.
type ErrorData struct {
	Message string `json:"message"`
}

// CompletedData is the payload of the terminal completed message.
type CompletedData struct {
	FinalOutput string `json:"finalOutput"`
}
