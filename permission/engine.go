package permission

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goGate/internal/cache"
)

const (
	// RolePublic marks a route that skips authentication and authorization.
	RolePublic = "public"
	// RoleAuthenticated grants every authenticated principal without a role
	// lookup.
	RoleAuthenticated = "authenticated"
)

// RoleStore lists the roles held by a principal.
type RoleStore interface {
	ListRolesForPrincipal(ctx context.Context, principalID string) ([]string, error)
}

// RoleWriter is implemented by stores that can change role assignments.
type RoleWriter interface {
	GrantRole(ctx context.Context, principalID, role string) error
	RevokeRole(ctx context.Context, principalID, role string) error
}

// RequirementSource yields the roles required for a use case.
type RequirementSource interface {
	RequiredRoles(useCase string) ([]string, bool)
}

// Decision is the outcome of one authorization check.
type Decision struct {
	PrincipalID  string   `json:"principalId"`
	UseCase      string   `json:"useCase"`
	UseCaseRoles []string `json:"useCaseRoles"`
	UserRoles    []string `json:"userRoles"`
	Authorized   bool     `json:"authorized"`
}

// Config tunes the role cache.
type Config struct {
	CacheTTL  time.Duration
	CacheSize int
	// Now overrides the cache clock.
	Now func() time.Time
}

// Hooks receive cache events. Nil fields are skipped.
type Hooks struct {
	CacheHit  func()
	CacheMiss func()
}

// Engine resolves role requirements against principal roles.
//
// Roles are cached per principal. Concurrent misses for the same principal
// may each reach the store. A fetch that overlaps an invalidation is returned
// to its caller but never cached, so a revoke is not undone by a slow read.
type Engine struct {
	store        RoleStore
	requirements RequirementSource
	cache        *cache.LRU[string, []string]
	hooks        Hooks

	// fillMu orders cache fills against invalidations. epoch counts
	// invalidations.
	fillMu sync.Mutex
	epoch  uint64
}

// NewEngine builds an [Engine]. A non-positive CacheTTL or CacheSize disables
// caching.
func NewEngine(store RoleStore, requirements RequirementSource, cfg Config, hooks Hooks) *Engine {
	e := &Engine{
		store:        store,
		requirements: requirements,
		hooks:        hooks,
	}
	if cfg.CacheTTL > 0 && cfg.CacheSize > 0 {
		e.cache = cache.NewLRU[string, []string](cfg.CacheSize, cfg.CacheTTL, cfg.Now)
	}
	return e
}

// Roles returns the roles of principalID, reading through the cache.
func (e *Engine) Roles(ctx context.Context, principalID string) ([]string, error) {
	if e.cache != nil {
		if roles, ok := e.cache.Get(principalID); ok {
			if e.hooks.CacheHit != nil {
				e.hooks.CacheHit()
			}
			return cloneRoles(roles), nil
		}
	}
	if e.hooks.CacheMiss != nil {
		e.hooks.CacheMiss()
	}
	epoch := e.currentEpoch()

	roles, err := e.store.ListRolesForPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []string{}
	}
	e.fill(principalID, roles, epoch)
	return cloneRoles(roles), nil
}

func (e *Engine) currentEpoch() uint64 {
	e.fillMu.Lock()
	defer e.fillMu.Unlock()
	return e.epoch
}

// fill caches roles unless an invalidation happened since epoch was read.
func (e *Engine) fill(principalID string, roles []string, epoch uint64) {
	if e.cache == nil {
		return
	}
	e.fillMu.Lock()
	defer e.fillMu.Unlock()
	if e.epoch != epoch {
		return
	}
	e.cache.Add(principalID, cloneRoles(roles))
}

// Authorize checks principalID against the requirement of useCase.
//
// The returned Decision is populated as far as the check got, including on
// error. A requirement containing [RoleAuthenticated] grants without reading
// the principal's roles.
func (e *Engine) Authorize(ctx context.Context, useCase, principalID string) (Decision, error) {
	d := Decision{PrincipalID: principalID, UseCase: useCase}

	required, ok := e.requirements.RequiredRoles(useCase)
	if !ok {
		return d, ErrUseCaseNotConfigured
	}
	d.UseCaseRoles = cloneRoles(required)

	for _, r := range required {
		if r == RoleAuthenticated {
			d.Authorized = true
			return d, nil
		}
	}

	roles, err := e.Roles(ctx, principalID)
	if err != nil {
		return d, err
	}
	d.UserRoles = roles
	d.Authorized = intersects(required, roles)
	return d, nil
}

// Grant assigns role to principalID and drops the cached roles.
func (e *Engine) Grant(ctx context.Context, principalID, role string) error {
	w, ok := e.store.(RoleWriter)
	if !ok {
		return ErrReadOnlyStore
	}
	if err := w.GrantRole(ctx, principalID, role); err != nil {
		return err
	}
	e.Invalidate(principalID)
	return nil
}

// Revoke removes role from principalID and drops the cached roles.
func (e *Engine) Revoke(ctx context.Context, principalID, role string) error {
	w, ok := e.store.(RoleWriter)
	if !ok {
		return ErrReadOnlyStore
	}
	if err := w.RevokeRole(ctx, principalID, role); err != nil {
		return err
	}
	e.Invalidate(principalID)
	return nil
}

// Invalidate drops the cached roles of principalID and discards any fetch
// still in flight.
func (e *Engine) Invalidate(principalID string) {
	if e.cache == nil {
		return
	}
	e.fillMu.Lock()
	e.epoch++
	e.cache.Remove(principalID)
	e.fillMu.Unlock()
}

// CacheLen reports the number of cached principals.
func (e *Engine) CacheLen() int {
	if e.cache == nil {
		return 0
	}
	return e.cache.Len()
}

func intersects(required, held []string) bool {
	if len(required) == 0 || len(held) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(held))
	for _, r := range held {
		set[r] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func cloneRoles(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
