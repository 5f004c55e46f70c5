package stream

import (
	"errors"
	"sync"
)

// ErrDuplicateRun is returned when a channel for the run id already exists.
var ErrDuplicateRun = errors.New("stream already open for run")

// Registry maps run ids to their channels.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

// Open creates and registers the channel for runID.
func (r *Registry) Open(runID string) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[runID]; ok {
		return nil, ErrDuplicateRun
	}
	ch := NewChannel(runID)
	r.channels[runID] = ch
	return ch, nil
}

// Get returns the channel for runID.
func (r *Registry) Get(runID string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[runID]
	return ch, ok
}

// Remove unregisters runID.
func (r *Registry) Remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, runID)
}

// Len returns the number of open channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
