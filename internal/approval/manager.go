package approval

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"reelgate/pkg/logger"
)

// Notifier pushes approval lifecycle events to connected clients.
type Notifier interface {
	NotifyRequest(req *Request) error
	NotifyResolved(req *Request, reason string) error
}

// Auditor records approval lifecycle events durably.
type Auditor interface {
	LogRequest(ctx context.Context, req *Request) error
	LogDecision(ctx context.Context, req *Request, reason string) error
}

// Recorder receives approval counters.
type Recorder interface {
	ApprovalOpened(tool string)
	ApprovalDecided(tool string, status Status)
	ApprovalsSwept(n int)
}

// Decision reasons passed to Notifier and Auditor.
const (
	ReasonUser    = "user"
	ReasonTimeout = "timeout"
	ReasonExpired = "expired"
)

// OpenRequest describes a gated tool call to suspend on.
type OpenRequest struct {
	RunID     string
	AgentName string
	ToolName  string
	Arguments map[string]any
	Auth      AuthContext
}

// ManagerConfig configures a Manager. Only Store is required.
type ManagerConfig struct {
	Store    Store
	Notifier Notifier
	Auditor  Auditor
	Recorder Recorder

	// WaitTimeout bounds Wait. Zero waits until a decision, cancellation
	// or expiry.
	WaitTimeout time.Duration
}

type waitResult struct {
	req     *Request
	expired bool
}

// Manager coordinates pending approvals with the runs suspended on them.
// Each id has a one-shot waiter; a decision is delivered at most once.
type Manager struct {
	store    Store
	notifier Notifier
	auditor  Auditor
	recorder Recorder
	timeout  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	waiters map[string]chan waitResult
}

// NewManager creates a Manager. A nil Store defaults to a MemoryStore.
func NewManager(cfg ManagerConfig) *Manager {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{
		store:    store,
		notifier: cfg.Notifier,
		auditor:  cfg.Auditor,
		recorder: cfg.Recorder,
		timeout:  cfg.WaitTimeout,
		now:      time.Now,
		waiters:  make(map[string]chan waitResult),
	}
}

// SetNotifier sets the notifier. Used when the hub is built after the manager.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

func (m *Manager) getNotifier() Notifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifier
}

// Open stores a pending request and registers its waiter.
func (m *Manager) Open(ctx context.Context, in OpenRequest) (*Request, error) {
	req := &Request{
		ID:          uuid.NewString(),
		RunID:       in.RunID,
		AgentName:   in.AgentName,
		ToolName:    in.ToolName,
		Arguments:   mergeArgs(in.Arguments, nil),
		Status:      StatusPending,
		CreatedAt:   m.now().UTC(),
		AuthContext: in.Auth,
	}

	m.mu.Lock()
	m.waiters[req.ID] = make(chan waitResult, 1)
	m.mu.Unlock()

	if err := m.store.Put(ctx, req); err != nil {
		m.dropWaiter(req.ID)
		return nil, err
	}

	log := logger.Component("approval")
	log.Info().
		Str("approval_id", req.ID).
		Str("run_id", req.RunID).
		Str("tool", req.ToolName).
		Str("agent", req.AgentName).
		Msg("approval request created")

	if m.auditor != nil {
		if err := m.auditor.LogRequest(ctx, req); err != nil {
			log.Warn().Err(err).Str("approval_id", req.ID).Msg("audit approval request")
		}
	}
	if n := m.getNotifier(); n != nil {
		if err := n.NotifyRequest(req); err != nil {
			log.Warn().Err(err).Str("approval_id", req.ID).Msg("notify approval request")
		}
	}
	if m.recorder != nil {
		m.recorder.ApprovalOpened(req.ToolName)
	}

	return req.Clone(), nil
}

// Wait blocks until the request is decided. It returns ErrExpired when the
// request was swept first and ctx.Err() when ctx ends. With a wait timeout
// configured, an undecided request is rejected and Outcome.TimedOut is set.
func (m *Manager) Wait(ctx context.Context, id string) (Outcome, error) {
	m.mu.Lock()
	ch, ok := m.waiters[id]
	m.mu.Unlock()
	if !ok {
		return Outcome{}, notFound(id)
	}
	defer m.dropWaiter(id)

	var timeout <-chan time.Time
	if m.timeout > 0 {
		timer := time.NewTimer(m.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-ch:
		return outcomeOf(res)
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-timeout:
		return m.expireWait(ctx, id, ch)
	}
}

func (m *Manager) expireWait(ctx context.Context, id string, ch chan waitResult) (Outcome, error) {
	req, err := m.store.Resolve(ctx, id, false, nil, m.now().UTC())
	switch {
	case err == nil:
		m.afterDecision(ctx, req, ReasonTimeout)
		return Outcome{Request: req, TimedOut: true}, nil
	case errors.Is(err, ErrAlreadyDecided):
		// a decision won the race and is being delivered
		select {
		case res := <-ch:
			return outcomeOf(res)
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	case errors.Is(err, ErrNotFound):
		return Outcome{}, ErrExpired
	default:
		return Outcome{}, err
	}
}

func outcomeOf(res waitResult) (Outcome, error) {
	if res.expired {
		return Outcome{}, ErrExpired
	}
	return Outcome{Request: res.req, Approved: res.req.Status == StatusApproved}, nil
}

// Decide records a decision and resumes the waiting run. Unknown or
// consumed ids yield NotFoundError and leave the store unchanged.
func (m *Manager) Decide(ctx context.Context, id string, approved bool, extraArgs map[string]any) (*Request, error) {
	req, err := m.store.Resolve(ctx, id, approved, extraArgs, m.now().UTC())
	if err != nil {
		return nil, err
	}

	m.afterDecision(ctx, req, ReasonUser)
	m.deliver(id, waitResult{req: req})
	return req.Clone(), nil
}

func (m *Manager) afterDecision(ctx context.Context, req *Request, reason string) {
	log := logger.Component("approval")
	log.Info().
		Str("approval_id", req.ID).
		Str("run_id", req.RunID).
		Str("status", string(req.Status)).
		Str("reason", reason).
		Msg("approval decided")

	if m.auditor != nil {
		if err := m.auditor.LogDecision(ctx, req, reason); err != nil {
			log.Warn().Err(err).Str("approval_id", req.ID).Msg("audit approval decision")
		}
	}
	if n := m.getNotifier(); n != nil {
		if err := n.NotifyResolved(req, reason); err != nil {
			log.Warn().Err(err).Str("approval_id", req.ID).Msg("notify approval decision")
		}
	}
	if m.recorder != nil {
		m.recorder.ApprovalDecided(req.ToolName, req.Status)
	}
}

// deliver hands res to the waiter without blocking. The store guarantees a
// single successful decision per id, so the buffer is never contended by
// two decisions.
func (m *Manager) deliver(id string, res waitResult) {
	m.mu.Lock()
	ch, ok := m.waiters[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- res:
	default:
	}
}

func (m *Manager) dropWaiter(id string) {
	m.mu.Lock()
	delete(m.waiters, id)
	m.mu.Unlock()
}

// Consume discards a request once its run has acted on the decision.
// Subsequent decisions for the id yield NotFoundError.
func (m *Manager) Consume(ctx context.Context, id string) error {
	m.dropWaiter(id)
	return m.store.Delete(ctx, id)
}

// Get returns a request by id.
func (m *Manager) Get(ctx context.Context, id string) (*Request, error) {
	return m.store.Get(ctx, id)
}

// ListPending returns undecided requests, oldest first.
func (m *Manager) ListPending(ctx context.Context) ([]*Request, error) {
	return m.store.ListPending(ctx)
}

// Count returns the number of stored requests.
func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

// Cleanup removes requests created strictly before now-maxAge and returns
// how many were removed. A run still waiting on a removed request is
// resumed with ErrExpired.
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := m.now().UTC().Add(-maxAge)
	ids, err := m.store.RemoveOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		m.deliver(id, waitResult{expired: true})
		if n := m.getNotifier(); n != nil {
			_ = n.NotifyResolved(&Request{ID: id, Status: StatusRejected}, ReasonExpired)
		}
	}
	if m.recorder != nil && len(ids) > 0 {
		m.recorder.ApprovalsSwept(len(ids))
	}

	if len(ids) > 0 {
		log := logger.Component("approval")
		log.Info().Int("removed", len(ids)).Time("cutoff", cutoff).Msg("stale approvals removed")
	}
	return len(ids), nil
}

// Close resumes every waiting run with ErrExpired.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ch := range m.waiters {
		select {
		case ch <- waitResult{expired: true}:
		default:
		}
		delete(m.waiters, id)
	}
}
