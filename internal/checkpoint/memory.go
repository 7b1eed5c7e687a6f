package checkpoint

import (
	"context"
	"fmt"
	"sync"
)

// InMemory is the default Store: a process-local map. Snapshots do not
// survive restarts.
type InMemory struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{snapshots: make(map[string][]byte)}
}

// Get implements Store.
func (s *InMemory) Get(ctx context.Context, threadID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[threadID]
	if !ok {
		return nil, fmt.Errorf("%w: thread %q", ErrNotFound, threadID)
	}
	out := make([]byte, len(snapshot))
	copy(out, snapshot)
	return out, nil
}

// Put implements Store.
func (s *InMemory) Put(ctx context.Context, threadID string, snapshot []byte) error {
	stored := make([]byte, len(snapshot))
	copy(stored, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[threadID] = stored
	return nil
}

// Len returns the number of stored threads.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}
