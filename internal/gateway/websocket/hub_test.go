package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, hub *Hub, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == want }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	hub, url := startHub(t)
	a := dial(t, hub, url, 1)
	b := dial(t, hub, url, 2)

	require.NoError(t, hub.BroadcastAll(TypeApprovalRequest, map[string]string{"id": "ap-1"}))

	for _, conn := range []*websocket.Conn{a, b} {
		frame := readFrame(t, conn)
		assert.Equal(t, TypeApprovalRequest, frame["type"])
		assert.Equal(t, map[string]any{"id": "ap-1"}, frame["data"])
	}
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url, 1)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_StopRejectsBroadcast(t *testing.T) {
	hub := NewHub()
	hub.Stop()

	// fill the buffer so the send cannot succeed
	for i := 0; i < cap(hub.broadcast); i++ {
		hub.broadcast <- nil
	}
	assert.ErrorIs(t, hub.BroadcastAll(TypeApprovalResolved, nil), ErrHubStopped)
}

func TestHub_ApprovalResponse(t *testing.T) {
	hub, url := startHub(t)

	type decision struct {
		id       string
		approved bool
		extra    map[string]any
	}
	got := make(chan decision, 1)
	hub.SetApprovalHandler(func(_ context.Context, id string, approved bool, extra map[string]any) error {
		got <- decision{id, approved, extra}
		return nil
	})

	conn := dial(t, hub, url, 1)
	require.NoError(t, conn.WriteJSON(WSMessage{
		Type:      TypeApprovalResponse,
		RequestID: "ap-7",
		Approved:  true,
		ExtraArgs: map[string]any{"style": "noir"},
	}))

	select {
	case d := <-got:
		assert.Equal(t, "ap-7", d.id)
		assert.True(t, d.approved)
		assert.Equal(t, map[string]any{"style": "noir"}, d.extra)
	case <-time.After(2 * time.Second):
		t.Fatal("approval handler not called")
	}

	frame := readFrame(t, conn)
	assert.Equal(t, TypeApprovalAck, frame["type"])
	assert.Equal(t, "ap-7", frame["request_id"])
}
