package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"reelgate/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	// Upper bound on one approval_response round trip.
	decisionTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Upgrade upgrades an HTTP request to a websocket connection with the
// gateway's settings.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// Client is one notification socket.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	id          string
	connectedAt time.Time
}

// NewClient creates a new client.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		id:          uuid.NewString(),
		connectedAt: time.Now(),
	}
}

// readPump pumps messages from the WebSocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log := logger.Component("hub")
				log.Error().Err(err).Str("client_id", c.id).Msg("WebSocket read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

// handleMessage processes one inbound frame.
func (c *Client) handleMessage(message []byte) {
	log := logger.Component("hub")

	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Str("client_id", c.id).Msg("Failed to parse WebSocket message")
		c.sendError(CodeInvalidMessage, "failed to parse message")
		return
	}

	switch msg.Type {
	case TypePing:
		c.enqueue(WSMessage{Type: TypePong})

	case TypeApprovalResponse:
		if msg.RequestID == "" {
			c.sendError(CodeInvalidRequest, "approval response requires request_id")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), decisionTimeout)
		defer cancel()

		if err := c.hub.HandleApprovalResponse(ctx, msg.RequestID, msg.Approved, msg.ExtraArgs); err != nil {
			log.Warn().
				Err(err).
				Str("client_id", c.id).
				Str("approval_id", msg.RequestID).
				Msg("Failed to handle approval response")
			c.sendError(CodeApprovalError, err.Error())
			return
		}
		c.enqueue(WSMessage{Type: TypeApprovalAck, RequestID: msg.RequestID, Approved: msg.Approved})

	default:
		log.Debug().Str("client_id", c.id).Str("type", msg.Type).Msg("Unknown message type")
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue marshals msg and queues it without blocking. send is owned by the
// hub loop, so a frame racing a disconnect is dropped rather than sent on a
// closed channel.
func (c *Client) enqueue(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	c.enqueue(WSMessage{Type: TypeError, Code: code, Message: message})
}

// ServeWs handles WebSocket requests from clients.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrade(w, r)
	if err != nil {
		log := logger.Component("hub")
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(hub, conn)
	hub.Register(client)

	go client.writePump()
	go client.readPump()
}
