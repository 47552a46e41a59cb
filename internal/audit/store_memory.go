package audit

import (
	"context"
	"sync"

	"duffel/pkg/model"
)

// InMemoryStore keeps journal entries in memory. Used in tests and in
// single-process deployments that do not need a durable journal.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[model.ListID][]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[model.ListID][]Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.entries[entry.ListID] {
		if have.ID == entry.ID {
			return nil
		}
	}
	s.entries[entry.ListID] = append(s.entries[entry.ListID], entry)
	return nil
}

func (s *InMemoryStore) ListByList(_ context.Context, listID model.ListID, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.entries[listID]
	out := make([]Entry, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// Clear drops all entries.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[model.ListID][]Entry)
}
