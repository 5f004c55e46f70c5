package approval

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the process-local Store. Contents are lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*Request
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*Request)}
}

func (s *MemoryStore) Put(_ context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, notFound(id)
	}
	return req.Clone(), nil
}

func (s *MemoryStore) Resolve(_ context.Context, id string, approved bool, extra map[string]any, at time.Time) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, notFound(id)
	}
	if req.Status != StatusPending {
		return nil, ErrAlreadyDecided
	}

	req.Status = StatusRejected
	if approved {
		req.Status = StatusApproved
	}
	req.Arguments = mergeArgs(req.Arguments, extra)
	decided := at
	req.DecidedAt = &decided
	return req.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, id)
	return nil
}

func (s *MemoryStore) ListPending(_ context.Context) ([]*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Request, 0, len(s.requests))
	for _, req := range s.requests {
		if req.Status == StatusPending {
			out = append(out, req.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests), nil
}

func (s *MemoryStore) RemoveOlderThan(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for id, req := range s.requests {
		if req.CreatedAt.Before(cutoff) {
			delete(s.requests, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed, nil
}
