package seen

import (
	"context"
	"sync"
)

// InMemoryStore is a thread-safe marker store for tests and single-process
// deployments. Markers never expire.
type InMemoryStore struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{seen: make(map[string]struct{})}
}

// Seen reports whether the message id has been marked.
func (s *InMemoryStore) Seen(_ context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[messageID]
	return ok, nil
}

// Mark records the message id.
func (s *InMemoryStore) Mark(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[messageID] = struct{}{}
	return nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }
