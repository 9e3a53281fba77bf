package appstate

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps the schedule in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore(initial ...Entry) *MemoryStore {
	return &MemoryStore{entries: slices.Clone(initial)}
}

func (s *MemoryStore) Schedule(context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries), nil
}

func (s *MemoryStore) SaveSchedule(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	s.entries = slices.Clone(entries)
	s.mu.Unlock()
	return nil
}
