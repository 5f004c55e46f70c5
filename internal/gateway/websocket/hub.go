package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"reelgate/pkg/logger"
)

// ErrHubStopped is returned by BroadcastAll after Stop.
var ErrHubStopped = errors.New("websocket hub stopped")

// ApprovalHandler applies a decision received from a client.
type ApprovalHandler func(ctx context.Context, id string, approved bool, extraArgs map[string]any) error

// Hub maintains the set of active clients and broadcasts messages to all
// of them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	stopOnce   sync.Once

	mu              sync.RWMutex
	approvalHandler ApprovalHandler
}

// NewHub creates a new Hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// SetApprovalHandler sets the callback for approval_response frames.
func (h *Hub) SetApprovalHandler(handler ApprovalHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.approvalHandler = handler
}

// HandleApprovalResponse applies a client decision.
func (h *Hub) HandleApprovalResponse(ctx context.Context, id string, approved bool, extraArgs map[string]any) error {
	h.mu.RLock()
	handler := h.approvalHandler
	h.mu.RUnlock()

	if handler == nil {
		return errors.New("approval decisions are not accepted on this socket")
	}
	return handler(ctx, id, approved, extraArgs)
}

// Run is the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	log := logger.Component("hub")
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Info().Str("client_id", client.id).Msg("WebSocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Info().Str("client_id", client.id).Msg("WebSocket client disconnected")

		case data := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					log.Warn().Str("client_id", client.id).Msg("client buffer full, dropping frame")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop ends Run and closes every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastAll sends a typed message to every connected client. It
// implements approval.Broadcaster.
func (h *Hub) BroadcastAll(messageType string, payload any) error {
	data, err := json.Marshal(WSMessage{Type: messageType, Data: payload})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
