// Package websocket implements the notification hub: approval lifecycle
// broadcasts out, approval decisions in.
package websocket

// WSMessage is one frame on the notification socket.
type WSMessage struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// approval_response fields
	RequestID string         `json:"request_id,omitempty"`
	Approved  bool           `json:"approved,omitempty"`
	ExtraArgs map[string]any `json:"extra_args,omitempty"`
}

// Message types.
const (
	TypePing  = "ping"
	TypePong  = "pong"
	TypeError = "error"

	TypeApprovalRequest  = "approval_request"
	TypeApprovalResponse = "approval_response"
	TypeApprovalResolved = "approval_resolved"
	TypeApprovalAck      = "approval_ack"

	TypeAgentsReloaded = "agents_reloaded"
)

// Error codes sent in error frames.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeApprovalError  = "APPROVAL_ERROR"
)
