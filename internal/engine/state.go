package engine

import (
	"sync"
	"time"
)

// State is the lifecycle state of a run.
type State string

const (
	StateRunning          State = "RUNNING"
	StateAwaitingApproval State = "AWAITING_APPROVAL"
	StateFinished         State = "FINISHED"
	StateFailed           State = "FAILED"
)

// Done reports whether s is terminal.
func (s State) Done() bool {
	return s == StateFinished || s == StateFailed
}

// RunStatus is a point-in-time view of a run.
type RunStatus struct {
	ID                string     `json:"id"`
	Agent             string     `json:"agent"`
	State             State      `json:"state"`
	UserID            string     `json:"userId,omitempty"`
	ProjectID         string     `json:"projectId,omitempty"`
	SegmentID         string     `json:"segmentId,omitempty"`
	Iterations        int        `json:"iterations"`
	Interruptions     int        `json:"interruptions"`
	PendingApprovalID string     `json:"pendingApprovalId,omitempty"`
	Error             string     `json:"error,omitempty"`
	StartedAt         time.Time  `json:"startedAt"`
	FinishedAt        *time.Time `json:"finishedAt,omitempty"`
}

// tracker keeps the status of every run started by this process.
type tracker struct {
	mu   sync.RWMutex
	runs map[string]*RunStatus
}

func newTracker() *tracker {
	return &tracker{runs: make(map[string]*RunStatus)}
}

func (t *tracker) add(s *RunStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[s.ID] = s
}

func (t *tracker) update(id string, fn func(s *RunStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.runs[id]; ok {
		fn(s)
	}
}

func (t *tracker) get(id string) (RunStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.runs[id]
	if !ok {
		return RunStatus{}, false
	}
	return *s, true
}

func (t *tracker) list() []RunStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]RunStatus, 0, len(t.runs))
	for _, s := range t.runs {
		out = append(out, *s)
	}
	return out
}

// prune drops finished runs that ended before cutoff.
func (t *tracker) prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, s := range t.runs {
		if s.FinishedAt != nil && s.FinishedAt.Before(cutoff) {
			delete(t.runs, id)
			n++
		}
	}
	return n
}
