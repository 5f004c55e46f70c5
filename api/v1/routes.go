package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"reelgate/internal/agents"
	"reelgate/internal/approval"
	"reelgate/internal/capability"
	"reelgate/internal/cron"
	"reelgate/internal/engine"
	"reelgate/internal/gateway/handlers"
	"reelgate/internal/storage"
)

// DefaultUserID is the acting user when auth is disabled and the caller
// names none.
const DefaultUserID = "local"

// RunLog reads the persisted record log and approval audit.
type RunLog interface {
	ListRunEvents(ctx context.Context, runID string) ([]storage.RunEvent, error)
	RecentRuns(ctx context.Context, limit int) ([]storage.RunSummary, error)
	RunApprovals(ctx context.Context, runID string) ([]storage.AuditEntry, error)
	ApprovalHistory(ctx context.Context, approvalID string) ([]storage.AuditEntry, error)
}

// RouterDeps holds dependencies for the v1 API router. Engine and
// Approvals are required; the rest switch their routes to 503 when nil.
type RouterDeps struct {
	Engine    *engine.Engine
	Approvals *approval.Manager
	Catalog   *agents.Catalog
	RunLog    RunLog
	Scheduler *cron.Scheduler

	// ApprovalMaxAge is the cleanup threshold when maxAgeHours is omitted.
	ApprovalMaxAge time.Duration

	Version string
	Health  map[string]handlers.Check
}

// Router wraps v1 API dependencies.
type Router struct {
	engine    *engine.Engine
	approvals *approval.Manager
	catalog   *agents.Catalog
	runLog    RunLog
	scheduler *cron.Scheduler
	maxAge    time.Duration
	health    http.HandlerFunc
}

// NewRouter creates a new v1 API router.
func NewRouter(deps *RouterDeps) *Router {
	if deps == nil {
		deps = &RouterDeps{}
	}
	maxAge := deps.ApprovalMaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = agents.DefaultCatalog()
	}
	return &Router{
		engine:    deps.Engine,
		approvals: deps.Approvals,
		catalog:   catalog,
		runLog:    deps.RunLog,
		scheduler: deps.Scheduler,
		maxAge:    maxAge,
		health:    handlers.HealthHandler(deps.Version, deps.Health),
	}
}

// RegisterRoutes registers all v1 API routes.
func (r *Router) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Health
	v1.HandleFunc("/health", r.health).Methods(http.MethodGet)

	// Runs (specific paths before {id})
	v1.HandleFunc("/runs", r.HandleStartRun).Methods(http.MethodPost)
	v1.HandleFunc("/runs", r.HandleListRuns).Methods(http.MethodGet)
	v1.HandleFunc("/runs/ws", r.HandleRunSocket).Methods(http.MethodGet)
	v1.HandleFunc("/runs/history", r.HandleRunHistory).Methods(http.MethodGet)
	v1.HandleFunc("/runs/{id}", r.HandleGetRun).Methods(http.MethodGet)
	v1.HandleFunc("/runs/{id}/events", r.HandleRunEvents).Methods(http.MethodGet)
	v1.HandleFunc("/runs/{id}/approvals", r.HandleRunApprovals).Methods(http.MethodGet)

	// Approvals
	v1.HandleFunc("/approvals", r.HandleListApprovals).Methods(http.MethodGet)
	v1.HandleFunc("/approvals/cleanup", r.HandleCleanupApprovals).Methods(http.MethodPost)
	v1.HandleFunc("/approvals/{id}", r.HandleGetApproval).Methods(http.MethodGet)
	v1.HandleFunc("/approvals/{id}/decide", r.HandleDecide).Methods(http.MethodPost)
	v1.HandleFunc("/approvals/{id}/history", r.HandleApprovalHistory).Methods(http.MethodGet)

	// Agents
	v1.HandleFunc("/agents", r.HandleListAgents).Methods(http.MethodGet)
	v1.HandleFunc("/agents/select", r.HandleSelectAgent).Methods(http.MethodPost)

	// Maintenance jobs
	v1.HandleFunc("/jobs", r.HandleListJobs).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{name}/run", r.HandleRunJob).Methods(http.MethodPost)
}

// userID resolves the acting user: the verified token subject when auth is
// on, else the caller's claim, else DefaultUserID.
func userID(req *http.Request, claimed string) string {
	if sub, ok := capability.SubjectFromContext(req.Context()); ok {
		return sub
	}
	if claimed != "" {
		return claimed
	}
	return DefaultUserID
}
