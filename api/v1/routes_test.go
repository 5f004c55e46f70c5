package v1

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelgate/internal/agents"
	"reelgate/internal/approval"
	"reelgate/internal/capability"
	"reelgate/internal/engine"
	"reelgate/internal/provider"
	"reelgate/internal/storage"
	"reelgate/internal/stream"
	"reelgate/internal/tools"
)

type imageParams struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style,omitempty"`
}

// imageThenDone asks for one gated image and finishes once it has seen a
// tool result.
func imageThenDone() provider.Provider {
	return provider.Func(func(_ context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
		for _, m := range req.Messages {
			if m.Role == provider.RoleTool {
				return &provider.ChatResponse{Content: "ad ready", FinishReason: provider.FinishReasonStop}, nil
			}
		}
		return &provider.ChatResponse{
			ToolCalls:    []provider.ToolCall{{ID: "call-1", Name: "generate_image", Arguments: `{"prompt":"a bottle"}`}},
			FinishReason: provider.FinishReasonToolCalls,
		}, nil
	})
}

type memRunLog struct {
	mu     sync.Mutex
	events map[string][]storage.RunEvent
	audit  []storage.AuditEntry
}

func (l *memRunLog) ListRunEvents(_ context.Context, runID string) ([]storage.RunEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[runID], nil
}

func (l *memRunLog) RecentRuns(_ context.Context, limit int) ([]storage.RunSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []storage.RunSummary
	for id, evs := range l.events {
		out = append(out, storage.RunSummary{RunID: id, Events: len(evs)})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *memRunLog) RunApprovals(_ context.Context, runID string) ([]storage.AuditEntry, error) {
	var out []storage.AuditEntry
	for _, e := range l.audit {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memRunLog) ApprovalHistory(_ context.Context, approvalID string) ([]storage.AuditEntry, error) {
	var out []storage.AuditEntry
	for _, e := range l.audit {
		if e.ApprovalID == approvalID {
			out = append(out, e)
		}
	}
	return out, nil
}

type harness struct {
	router    *mux.Router
	approvals *approval.Manager
	engine    *engine.Engine
	runLog    *memRunLog
	images    chan imageParams
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		approvals: approval.NewManager(approval.ManagerConfig{}),
		runLog:    &memRunLog{events: map[string][]storage.RunEvent{}},
		images:    make(chan imageParams, 4),
	}
	t.Cleanup(h.approvals.Close)

	issuer, err := capability.NewIssuer("test-secret", "reelgate", time.Hour)
	require.NoError(t, err)

	catalog := agents.NewCatalog(&agents.File{
		Version: "1",
		Default: agents.Producer,
		Agents: []agents.Definition{{
			Name:     agents.Producer,
			Tools:    []string{"generate_image"},
			Keywords: []string{"ad"},
		}},
	})

	factory := func(string) *tools.Registry {
		reg := tools.NewRegistry()
		reg.MustRegister(tools.NewTypedTool("generate_image", "Generate an image", true,
			func(_ context.Context, p imageParams) (tools.ToolResult, error) {
				h.images <- p
				return tools.NewDataResult("image ready", map[string]any{"url": "https://cdn.test/1.png"}), nil
			}))
		return reg
	}

	h.engine, err = engine.New(engine.Deps{
		Provider:  imageThenDone(),
		Catalog:   catalog,
		Approvals: h.approvals,
		Issuer:    issuer,
		Tools:     factory,
	}, engine.DefaultConfig())
	require.NoError(t, err)

	h.router = mux.NewRouter()
	NewRouter(&RouterDeps{
		Engine:         h.engine,
		Approvals:      h.approvals,
		Catalog:        catalog,
		RunLog:         h.runLog,
		ApprovalMaxAge: time.Hour,
		Version:        "test",
	}).RegisterRoutes(h.router)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestRouter_RegisterRoutes(t *testing.T) {
	m := mux.NewRouter()
	NewRouter(nil).RegisterRoutes(m)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/health"},
		{"POST", "/api/v1/runs"},
		{"GET", "/api/v1/runs"},
		{"GET", "/api/v1/runs/ws"},
		{"GET", "/api/v1/runs/history"},
		{"GET", "/api/v1/runs/abc"},
		{"GET", "/api/v1/runs/abc/events"},
		{"GET", "/api/v1/runs/abc/approvals"},
		{"GET", "/api/v1/approvals"},
		{"POST", "/api/v1/approvals/cleanup"},
		{"GET", "/api/v1/approvals/abc"},
		{"POST", "/api/v1/approvals/abc/decide"},
		{"GET", "/api/v1/approvals/abc/history"},
		{"GET", "/api/v1/agents"},
		{"POST", "/api/v1/agents/select"},
		{"GET", "/api/v1/jobs"},
		{"POST", "/api/v1/jobs/approval-sweep/run"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			match := &mux.RouteMatch{}
			assert.True(t, m.Match(req, match), "route %s %s not registered", route.method, route.path)
		})
	}
}

func TestRouter_NoDepsIsUnavailable(t *testing.T) {
	m := mux.NewRouter()
	NewRouter(nil).RegisterRoutes(m)

	for _, path := range []string{"/api/v1/approvals", "/api/v1/runs", "/api/v1/runs/history"} {
		w := httptest.NewRecorder()
		m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}

	w := httptest.NewRecorder()
	m.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func readFrames(t *testing.T, body *bufio.Reader, onFrame func(stream.MessageType, map[string]any)) []stream.MessageType {
	t.Helper()
	var types []stream.MessageType
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			return types
		}
		payload, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		var frame struct {
			Type stream.MessageType `json:"type"`
			Data map[string]any     `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(payload), &frame))
		types = append(types, frame.Type)
		if onFrame != nil {
			onFrame(frame.Type, frame.Data)
		}
	}
}

func TestStartRun_StreamsAndResumesOnDecision(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/runs", "application/json",
		strings.NewReader(`{"prompt":"Create a face wash ad","projectId":"p-1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	runID := resp.Header.Get("X-Run-Id")
	require.NotEmpty(t, runID)

	types := readFrames(t, bufio.NewReader(resp.Body), func(typ stream.MessageType, data map[string]any) {
		if typ != stream.TypeApprovalRequired {
			return
		}
		assert.Equal(t, "generate_image", data["toolName"])
		id, _ := data["approvalId"].(string)
		decide, err := http.Post(srv.URL+"/api/v1/approvals/"+id+"/decide", "application/json",
			strings.NewReader(`{"approved":true,"extraArgs":{"style":"studio"}}`))
		require.NoError(t, err)
		defer decide.Body.Close()

		var out DecideResponse
		require.NoError(t, json.NewDecoder(decide.Body).Decode(&out))
		assert.Equal(t, http.StatusOK, decide.StatusCode)
		assert.Equal(t, approval.StatusApproved, out.Status)
		assert.NotEmpty(t, out.Message)
	})

	assert.Equal(t, []stream.MessageType{
		stream.TypeLog, stream.TypeLog, stream.TypeApprovalRequired, stream.TypeResult, stream.TypeCompleted,
	}, types)

	select {
	case p := <-h.images:
		assert.Equal(t, imageParams{Prompt: "a bottle", Style: "studio"}, p)
	default:
		t.Fatal("image tool did not run")
	}

	status := h.do(t, http.MethodGet, "/api/v1/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, status.Code)
	var rs engine.RunStatus
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &rs))
	assert.Equal(t, "producer", rs.Agent)
	assert.Equal(t, DefaultUserID, rs.UserID)
	assert.Equal(t, 1, rs.Interruptions)
}

func TestStartRun_EmptyPrompt(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/runs", RunStartRequest{Prompt: "   "})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), ErrCodeValidationFailed)
}

func TestStartRun_InvalidJSON(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader("{nope"))
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartRun_UsesAuthenticatedSubject(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(`{"prompt":"make an ad","userId":"spoofed"}`))
	req = req.WithContext(capability.WithSubject(req.Context(), "user-42"))
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.router.ServeHTTP(rec, req)
	}()

	var pending []*approval.Request
	require.Eventually(t, func() bool {
		pending, _ = h.approvals.ListPending(context.Background())
		return len(pending) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "user-42", pending[0].AuthContext.UserID)

	_, err := h.approvals.Decide(context.Background(), pending[0].ID, false, nil)
	require.NoError(t, err)
	<-done
	assert.Contains(t, rec.Body.String(), `"type":"completed"`)
}

func TestGetRun_NotFound(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, http.MethodGet, "/api/v1/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDecide_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req, err := h.approvals.Open(ctx, approval.OpenRequest{RunID: "r-1", ToolName: "generate_image"})
	require.NoError(t, err)

	t.Run("unknown id is not found and leaves the store unchanged", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/api/v1/approvals/unknown-id/decide", DecideRequest{Approved: true})
		assert.Equal(t, http.StatusNotFound, w.Code)

		n, err := h.approvals.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		got, err := h.approvals.Get(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, approval.StatusPending, got.Status)
	})

	t.Run("second decision is a conflict", func(t *testing.T) {
		first := h.do(t, http.MethodPost, "/api/v1/approvals/"+req.ID+"/decide", DecideRequest{Approved: false})
		require.Equal(t, http.StatusOK, first.Code)
		assert.Contains(t, first.Body.String(), `"status":"rejected"`)

		second := h.do(t, http.MethodPost, "/api/v1/approvals/"+req.ID+"/decide", DecideRequest{Approved: true})
		assert.Equal(t, http.StatusConflict, second.Code)
	})

	t.Run("consumed id is not found", func(t *testing.T) {
		require.NoError(t, h.approvals.Consume(ctx, req.ID))
		w := h.do(t, http.MethodPost, "/api/v1/approvals/"+req.ID+"/decide", DecideRequest{Approved: true})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestApprovals_ListAndGet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	empty := h.do(t, http.MethodGet, "/api/v1/approvals", nil)
	require.Equal(t, http.StatusOK, empty.Code)
	assert.JSONEq(t, `{"approvals":[],"count":0}`, empty.Body.String())

	req, err := h.approvals.Open(ctx, approval.OpenRequest{
		RunID:     "r-1",
		AgentName: "producer",
		ToolName:  "generate_video",
		Arguments: map[string]any{"prompt": "waves"},
		Auth:      approval.AuthContext{UserID: "u-1", ProjectID: "p-1"},
	})
	require.NoError(t, err)

	list := h.do(t, http.MethodGet, "/api/v1/approvals", nil)
	var out ApprovalsListResponse
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &out))
	require.Equal(t, 1, out.Count)
	assert.Equal(t, req.ID, out.Approvals[0].ID)

	got := h.do(t, http.MethodGet, "/api/v1/approvals/"+req.ID, nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Contains(t, got.Body.String(), `"toolName":"generate_video"`)

	missing := h.do(t, http.MethodGet, "/api/v1/approvals/nope", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCleanupApprovals(t *testing.T) {
	h := newHarness(t)
	_, err := h.approvals.Open(context.Background(), approval.OpenRequest{RunID: "r-1", ToolName: "generate_image"})
	require.NoError(t, err)

	tests := []struct {
		name        string
		query       string
		wantStatus  int
		wantRemoved int
	}{
		{"negative age rejected", "?maxAgeHours=-1", http.StatusBadRequest, 0},
		{"garbage rejected", "?maxAgeHours=soon", http.StatusBadRequest, 0},
		{"fresh entries kept", "?maxAgeHours=2", http.StatusOK, 0},
		{"default age keeps fresh entries", "", http.StatusOK, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(t, http.MethodPost, "/api/v1/approvals/cleanup"+tt.query, nil)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var out CleanupResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
			assert.Equal(t, tt.wantRemoved, out.Removed)
		})
	}

	n, err := h.approvals.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunEvents(t *testing.T) {
	h := newHarness(t)
	h.runLog.events["r-1"] = []storage.RunEvent{
		{ID: 1, RunID: "r-1", Type: stream.TypeLog, Data: json.RawMessage(`{"message":"Starting agent run..."}`)},
		{ID: 2, RunID: "r-1", Type: stream.TypeCompleted, Data: json.RawMessage(`{"finalOutput":"ok"}`)},
	}

	w := h.do(t, http.MethodGet, "/api/v1/runs/r-1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		RunID  string `json:"runId"`
		Events []struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "r-1", out.RunID)
	require.Len(t, out.Events, 2)
	assert.Equal(t, "completed", out.Events[1].Type)
	assert.Equal(t, "ok", out.Events[1].Data["finalOutput"])

	missing := h.do(t, http.MethodGet, "/api/v1/runs/ghost/events", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)

	history := h.do(t, http.MethodGet, "/api/v1/runs/history?limit=5", nil)
	require.Equal(t, http.StatusOK, history.Code)
	assert.Contains(t, history.Body.String(), `"runId":"r-1"`)

	bad := h.do(t, http.MethodGet, "/api/v1/runs/history?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestRunApprovalsAudit(t *testing.T) {
	h := newHarness(t)
	h.runLog.audit = []storage.AuditEntry{
		{ApprovalID: "a-1", RunID: "r-1", Event: storage.AuditRequested, Status: approval.StatusPending},
		{ApprovalID: "a-1", RunID: "r-1", Event: storage.AuditDecided, Status: approval.StatusApproved, Reason: approval.ReasonUser},
	}

	w := h.do(t, http.MethodGet, "/api/v1/runs/r-1/approvals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out AuditResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Len(t, out.Entries, 2)

	hist := h.do(t, http.MethodGet, "/api/v1/approvals/none/history", nil)
	require.Equal(t, http.StatusOK, hist.Code)
	assert.JSONEq(t, `{"entries":[]}`, hist.Body.String())
}

func TestAgents(t *testing.T) {
	m := mux.NewRouter()
	NewRouter(&RouterDeps{}).RegisterRoutes(m)

	list := httptest.NewRecorder()
	m.ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil))
	require.Equal(t, http.StatusOK, list.Code)
	var agentsOut AgentsListResponse
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &agentsOut))
	assert.Equal(t, agents.Producer, agentsOut.Default)
	assert.Len(t, agentsOut.Agents, 5)

	tests := []struct {
		prompt string
		want   agents.AgentID
		status int
	}{
		{"Create a face wash ad", agents.Producer, http.StatusOK},
		{"research competitor pricing", agents.Researcher, http.StatusOK},
		{"", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			body := strings.NewReader(`{"prompt":` + strconv.Quote(tt.prompt) + `}`)
			w := httptest.NewRecorder()
			m.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/agents/select", body))
			require.Equal(t, tt.status, w.Code)
			if tt.status != http.StatusOK {
				return
			}
			var out SelectAgentResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
			assert.Equal(t, tt.want, out.Agent)
			assert.NotEmpty(t, out.Tools)
		})
	}
}
