package permission

import (
	"context"
	"sort"
	"sync"
)

// MemoryRoleStore keeps role assignments in a map.
type MemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]map[string]struct{}
	known map[string]struct{}
}

// NewMemoryRoleStore creates a store. When knownRoles is non-empty, GrantRole
// rejects other role names with [ErrUnknownRole].
func NewMemoryRoleStore(knownRoles ...string) *MemoryRoleStore {
	s := &MemoryRoleStore{roles: make(map[string]map[string]struct{})}
	if len(knownRoles) > 0 {
		s.known = make(map[string]struct{}, len(knownRoles))
		for _, r := range knownRoles {
			s.known[r] = struct{}{}
		}
	}
	return s
}

func (s *MemoryRoleStore) ListRolesForPrincipal(_ context.Context, principalID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	held := s.roles[principalID]
	out := make([]string, 0, len(held))
	for r := range held {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryRoleStore) GrantRole(_ context.Context, principalID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.known != nil {
		if _, ok := s.known[role]; !ok {
			return ErrUnknownRole
		}
	}
	held, ok := s.roles[principalID]
	if !ok {
		held = make(map[string]struct{})
		s.roles[principalID] = held
	}
	held[role] = struct{}{}
	return nil
}

func (s *MemoryRoleStore) RevokeRole(_ context.Context, principalID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held, ok := s.roles[principalID]; ok {
		delete(held, role)
		if len(held) == 0 {
			delete(s.roles, principalID)
		}
	}
	return nil
}
