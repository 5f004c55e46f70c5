package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	gws "github.com/gorilla/websocket"

	"reelgate/internal/engine"
	"reelgate/internal/gateway/handlers"
	"reelgate/internal/gateway/websocket"
	"reelgate/internal/storage"
	"reelgate/internal/stream"
	"reelgate/pkg/logger"
)

const (
	socketReadLimit   = 64 * 1024
	socketHelloWait   = 30 * time.Second
	socketWriteWait   = 10 * time.Second
	defaultRunHistory = 20
)

// HandleStartRun starts a run and streams its messages as server-sent
// events, one data frame per message. The response ends right after the
// terminal frame. A client that goes away detaches; the run keeps going.
func (r *Router) HandleStartRun(w http.ResponseWriter, req *http.Request) {
	if r.engine == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Run engine not available")
		return
	}

	var body RunStartRequest
	if err := handlers.DecodeJSON(req, &body); err != nil {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, "Streaming not supported")
		return
	}

	h, err := r.start(req, body)
	if err != nil {
		sendStartError(w, err)
		return
	}
	out, err := h.Channel.Subscribe()
	if err != nil {
		h.Channel.Detach()
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Run-Id", h.RunID)
	w.Header().Set("X-Agent", string(h.Agent))
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := logger.Component("api")
	for {
		select {
		case msg, ok := <-out:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Str("run_id", h.RunID).Str("type", string(msg.Type)).Msg("marshal stream message")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				log.Warn().Err(err).Str("run_id", h.RunID).Msg("SSE write failed, detaching")
				h.Channel.Detach()
				return
			}
			flusher.Flush()

		case <-req.Context().Done():
			log.Info().Str("run_id", h.RunID).Msg("client disconnected, run continues")
			h.Channel.Detach()
			return
		}
	}
}

// HandleRunSocket is the websocket form of HandleStartRun. The client sends
// one RunStartRequest frame and receives one JSON frame per message.
func (r *Router) HandleRunSocket(w http.ResponseWriter, req *http.Request) {
	if r.engine == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Run engine not available")
		return
	}

	conn, err := websocket.Upgrade(w, req)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(socketReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(socketHelloWait))

	var body RunStartRequest
	if err := conn.ReadJSON(&body); err != nil {
		closeSocket(conn, gws.CloseUnsupportedData, "expected a run request frame")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	h, err := r.start(req, body)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
		_ = conn.WriteJSON(stream.Message{
			Type:      stream.TypeError,
			Data:      stream.ErrorData{Message: err.Error()},
			Timestamp: time.Now().UTC(),
		})
		closeSocket(conn, gws.ClosePolicyViolation, "run not started")
		return
	}
	out, err := h.Channel.Subscribe()
	if err != nil {
		h.Channel.Detach()
		closeSocket(conn, gws.CloseInternalServerErr, err.Error())
		return
	}

	// The reader only watches for the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log := logger.Component("api")
	for {
		select {
		case msg, ok := <-out:
			if !ok {
				closeSocket(conn, gws.CloseNormalClosure, "run finished")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn().Err(err).Str("run_id", h.RunID).Msg("websocket write failed, detaching")
				h.Channel.Detach()
				return
			}

		case <-gone:
			log.Info().Str("run_id", h.RunID).Msg("client disconnected, run continues")
			h.Channel.Detach()
			return
		}
	}
}

func (r *Router) start(req *http.Request, body RunStartRequest) (*engine.Handle, error) {
	return r.engine.Start(req.Context(), engine.RunRequest{
		Prompt:    body.Prompt,
		UserID:    userID(req, body.UserID),
		ProjectID: body.ProjectID,
		SegmentID: body.SegmentID,
	})
}

func sendStartError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrEmptyPrompt) {
		handlers.SendError(w, http.StatusBadRequest, ErrCodeValidationFailed, "Prompt is required")
		return
	}
	handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
}

func closeSocket(conn *gws.Conn, code int, text string) {
	msg := gws.FormatCloseMessage(code, text)
	_ = conn.WriteControl(gws.CloseMessage, msg, time.Now().Add(socketWriteWait))
}

// HandleListRuns returns every run this process tracks.
func (r *Router) HandleListRuns(w http.ResponseWriter, req *http.Request) {
	if r.engine == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Run engine not available")
		return
	}
	runs := r.engine.Runs()
	if runs == nil {
		runs = []engine.RunStatus{}
	}
	handlers.SendJSON(w, http.StatusOK, RunsListResponse{Runs: runs})
}

// HandleGetRun returns the status of one run.
func (r *Router) HandleGetRun(w http.ResponseWriter, req *http.Request) {
	if r.engine == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Run engine not available")
		return
	}
	status, err := r.engine.Status(mux.Vars(req)["id"])
	if err != nil {
		handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Run not found")
		return
	}
	handlers.SendJSON(w, http.StatusOK, status)
}

// HandleRunHistory lists runs from the persisted record log.
func (r *Router) HandleRunHistory(w http.ResponseWriter, req *http.Request) {
	if r.runLog == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Run log not available")
		return
	}

	limit := defaultRunHistory
	if s := req.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			handlers.SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := r.runLog.RecentRuns(req.Context(), limit)
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if runs == nil {
		runs = []storage.RunSummary{}
	}
	handlers.SendJSON(w, http.StatusOK, RunHistoryResponse{Runs: runs})
}

// HandleRunEvents returns the persisted messages of a run.
func (r *Router) HandleRunEvents(w http.ResponseWriter, req *http.Request) {
	if r.runLog == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Run log not available")
		return
	}

	runID := mux.Vars(req)["id"]
	events, err := r.runLog.ListRunEvents(req.Context(), runID)
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if len(events) == 0 && !r.knowsRun(runID) {
		handlers.SendError(w, http.StatusNotFound, ErrCodeNotFound, "Run not found")
		return
	}
	if events == nil {
		events = []storage.RunEvent{}
	}
	handlers.SendJSON(w, http.StatusOK, RunEventsResponse{RunID: runID, Events: events})
}

// HandleRunApprovals returns the approval audit of a run.
func (r *Router) HandleRunApprovals(w http.ResponseWriter, req *http.Request) {
	if r.runLog == nil {
		handlers.SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Run log not available")
		return
	}
	entries, err := r.runLog.RunApprovals(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	sendAudit(w, entries)
}

func (r *Router) knowsRun(runID string) bool {
	if r.engine == nil {
		return false
	}
	_, err := r.engine.Status(runID)
	return err == nil
}

func sendAudit(w http.ResponseWriter, entries []storage.AuditEntry) {
	if entries == nil {
		entries = []storage.AuditEntry{}
	}
	handlers.SendJSON(w, http.StatusOK, AuditResponse{Entries: entries})
}
