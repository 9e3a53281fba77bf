package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes [BreakerRoleStore].
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
	MaxRequests      uint32
	OnStateChange    func(name string, from, to gobreaker.State)
}

// BreakerRoleStore fails fast with [ErrStoreUnavailable] while the wrapped
// store keeps failing. Writes pass through when the wrapped store supports
// them.
type BreakerRoleStore struct {
	next RoleStore
	cb   *gobreaker.CircuitBreaker[[]string]
}

func NewBreakerRoleStore(next RoleStore, cfg BreakerConfig) *BreakerRoleStore {
	if cfg.Name == "" {
		cfg.Name = "role-store"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: cfg.OnStateChange,
	}
	return &BreakerRoleStore{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[[]string](settings),
	}
}

func (s *BreakerRoleStore) ListRolesForPrincipal(ctx context.Context, principalID string) ([]string, error) {
	roles, err := s.cb.Execute(func() ([]string, error) {
		return s.next.ListRolesForPrincipal(ctx, principalID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return roles, err
}

func (s *BreakerRoleStore) GrantRole(ctx context.Context, principalID, role string) error {
	w, ok := s.next.(RoleWriter)
	if !ok {
		return ErrReadOnlyStore
	}
	return w.GrantRole(ctx, principalID, role)
}

func (s *BreakerRoleStore) RevokeRole(ctx context.Context, principalID, role string) error {
	w, ok := s.next.(RoleWriter)
	if !ok {
		return ErrReadOnlyStore
	}
	return w.RevokeRole(ctx, principalID, role)
}

// State reports the breaker state name.
func (s *BreakerRoleStore) State() string {
	return s.cb.State().String()
}
