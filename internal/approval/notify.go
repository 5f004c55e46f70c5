package approval

import (
	"fmt"
	"time"
)

// Broadcast message types sent to notification clients.
const (
	MessageTypeRequest  = "approval_request"
	MessageTypeResolved = "approval_resolved"
)

// Broadcaster sends a typed message to every connected client.
type Broadcaster interface {
	BroadcastAll(messageType string, data any) error
}

// ResolvedPayload is broadcast when a request leaves the pending state.
type ResolvedPayload struct {
	ID        string    `json:"id"`
	RunID     string    `json:"runId,omitempty"`
	ToolName  string    `json:"toolName,omitempty"`
	Status    Status    `json:"status"`
	Reason    string    `json:"reason"`
	DecidedAt time.Time `json:"decidedAt"`
}

// BroadcastNotifier implements Notifier on top of a Broadcaster.
type BroadcastNotifier struct {
	broadcaster Broadcaster
}

// NewBroadcastNotifier creates a notifier for b.
func NewBroadcastNotifier(b Broadcaster) *BroadcastNotifier {
	return &BroadcastNotifier{broadcaster: b}
}

// NotifyRequest broadcasts a new pending request.
func (n *BroadcastNotifier) NotifyRequest(req *Request) error {
	if n.broadcaster == nil {
		return nil
	}
	if err := n.broadcaster.BroadcastAll(MessageTypeRequest, req); err != nil {
		return fmt.Errorf("broadcast approval request: %w", err)
	}
	return nil
}

// NotifyResolved broadcasts a decision, timeout or expiry.
func (n *BroadcastNotifier) NotifyResolved(req *Request, reason string) error {
	if n.broadcaster == nil {
		return nil
	}
	payload := ResolvedPayload{
		ID:        req.ID,
		RunID:     req.RunID,
		ToolName:  req.ToolName,
		Status:    req.Status,
		Reason:    reason,
		DecidedAt: time.Now().UTC(),
	}
	if req.DecidedAt != nil {
		payload.DecidedAt = *req.DecidedAt
	}
	if err := n.broadcaster.BroadcastAll(MessageTypeResolved, payload); err != nil {
		return fmt.Errorf("broadcast approval resolution: %w", err)
	}
	return nil
}
