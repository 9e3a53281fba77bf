package permission

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

type staticRequirements map[string][]string

func (s staticRequirements) RequiredRoles(useCase string) ([]string, bool) {
	roles, ok := s[useCase]
	return roles, ok
}

type countingStore struct {
	*MemoryRoleStore
	fetches atomic.Int32
	// gate, when set, holds each fetch until it is closed. The roles are
	// read before waiting.
	gate    chan struct{}
	reading chan struct{}
}

func (c *countingStore) ListRolesForPrincipal(ctx context.Context, id string) ([]string, error) {
	c.fetches.Add(1)
	roles, err := c.MemoryRoleStore.ListRolesForPrincipal(ctx, id)
	if c.gate != nil {
		c.reading <- struct{}{}
		<-c.gate
	}
	return roles, err
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestEngine(t *testing.T, reqs staticRequirements, clock *fakeClock) (*Engine, *countingStore, *MemoryRoleStore) {
	t.Helper()
	mem := NewMemoryRoleStore()
	store := &countingStore{MemoryRoleStore: mem}
	cfg := Config{CacheTTL: time.Minute, CacheSize: 16}
	if clock != nil {
		cfg.Now = clock.Now
	}
	return NewEngine(store, reqs, cfg, Hooks{}), store, mem
}

func TestAuthorizeRoleMismatchReturnsFullDecision(t *testing.T) {
	e, _, mem := newTestEngine(t, staticRequirements{"/orders/approve": {"Admin", "Authority"}}, nil)
	ctx := context.Background()
	if err := mem.GrantRole(ctx, "p1", "Technician"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	d, err := e.Authorize(ctx, "/orders/approve", "p1")
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	want := Decision{
		PrincipalID:  "p1",
		UseCase:      "/orders/approve",
		UseCaseRoles: []string{"Admin", "Authority"},
		UserRoles:    []string{"Technician"},
		Authorized:   false,
	}
	if !reflect.DeepEqual(d, want) {
		t.Fatalf("unexpected decision\n got: %+v\nwant: %+v", d, want)
	}
}

func TestAuthorizeIntersectionGrants(t *testing.T) {
	e, _, mem := newTestEngine(t, staticRequirements{"/orders/approve": {"Admin", "Authority"}}, nil)
	ctx := context.Background()
	_ = mem.GrantRole(ctx, "p2", "Authority")

	d, err := e.Authorize(ctx, "/orders/approve", "p2")
	if err != nil || !d.Authorized {
		t.Fatalf("expected grant, got %+v err=%v", d, err)
	}
}

func TestAuthorizeAuthenticatedSentinelSkipsRoleFetch(t *testing.T) {
	e, store, _ := newTestEngine(t, staticRequirements{"/me": {"authenticated", "Admin"}}, nil)

	for _, principal := range []string{"p1", "nobody", ""} {
		d, err := e.Authorize(context.Background(), "/me", principal)
		if err != nil {
			t.Fatalf("authorize %q: %v", principal, err)
		}
		if !d.Authorized {
			t.Fatalf("principal %q must be authorized by the authenticated sentinel", principal)
		}
	}
	if n := store.fetches.Load(); n != 0 {
		t.Fatalf("expected no role fetch, got %d", n)
	}
}

func TestAuthorizeUnconfiguredUseCase(t *testing.T) {
	e, _, _ := newTestEngine(t, staticRequirements{}, nil)

	d, err := e.Authorize(context.Background(), "/missing", "p1")
	if !errors.Is(err, ErrUseCaseNotConfigured) {
		t.Fatalf("expected ErrUseCaseNotConfigured, got %v", err)
	}
	if d.UseCase != "/missing" || d.PrincipalID != "p1" || d.Authorized {
		t.Fatalf("decision must still be returned, got %+v", d)
	}
}

func TestRolesCacheFetchesOncePerWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_800_000_000, 0)}
	e, store, mem := newTestEngine(t, staticRequirements{}, clock)
	ctx := context.Background()
	_ = mem.GrantRole(ctx, "p1", "Admin")

	for i := 0; i < 2; i++ {
		if _, err := e.Roles(ctx, "p1"); err != nil {
			t.Fatalf("roles: %v", err)
		}
	}
	if n := store.fetches.Load(); n != 1 {
		t.Fatalf("expected one fetch within TTL, got %d", n)
	}

	e.Invalidate("p1")
	_, _ = e.Roles(ctx, "p1")
	if n := store.fetches.Load(); n != 2 {
		t.Fatalf("expected exactly one fetch after invalidation, got %d", n)
	}

	clock.now = clock.now.Add(time.Minute)
	_, _ = e.Roles(ctx, "p1")
	if n := store.fetches.Load(); n != 3 {
		t.Fatalf("expected exactly one fetch after TTL expiry, got %d", n)
	}
	_, _ = e.Roles(ctx, "p1")
	if n := store.fetches.Load(); n != 3 {
		t.Fatalf("expected refreshed entry to be cached, got %d fetches", n)
	}
}

func TestGrantAndRevokeInvalidate(t *testing.T) {
	e, _, _ := newTestEngine(t, staticRequirements{"/admin": {"Admin"}}, nil)
	ctx := context.Background()

	d, _ := e.Authorize(ctx, "/admin", "p1")
	if d.Authorized {
		t.Fatal("expected denial before grant")
	}
	if err := e.Grant(ctx, "p1", "Admin"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if d, _ = e.Authorize(ctx, "/admin", "p1"); !d.Authorized {
		t.Fatal("grant must be visible immediately")
	}
	if err := e.Revoke(ctx, "p1", "Admin"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if d, _ = e.Authorize(ctx, "/admin", "p1"); d.Authorized {
		t.Fatal("revoke must be visible immediately")
	}
}

func TestRevokeDuringFetchIsNotCachedOver(t *testing.T) {
	e, store, mem := newTestEngine(t, staticRequirements{"/admin": {"Admin"}}, nil)
	ctx := context.Background()
	_ = mem.GrantRole(ctx, "p1", "Admin")

	store.gate = make(chan struct{})
	store.reading = make(chan struct{}, 1)
	type result struct {
		d   Decision
		err error
	}
	done := make(chan result, 1)
	go func() {
		d, err := e.Authorize(ctx, "/admin", "p1")
		done <- result{d, err}
	}()

	// the fetch has read {Admin} and is parked
	<-store.reading
	if err := e.Revoke(ctx, "p1", "Admin"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	close(store.gate)

	res := <-done
	if res.err != nil {
		t.Fatalf("authorize: %v", res.err)
	}
	if !res.d.Authorized {
		t.Fatal("the in-flight check saw the roles it read")
	}
	if e.CacheLen() != 0 {
		t.Fatal("stale roles were cached after the revoke")
	}
	d, err := e.Authorize(ctx, "/admin", "p1")
	if err != nil {
		t.Fatalf("authorize after revoke: %v", err)
	}
	if d.Authorized {
		t.Fatal("revoked role still grants access")
	}
}

type readOnlyStore struct{}

func (readOnlyStore) ListRolesForPrincipal(context.Context, string) ([]string, error) {
	return nil, nil
}

func TestGrantOnReadOnlyStore(t *testing.T) {
	e := NewEngine(readOnlyStore{}, staticRequirements{}, Config{}, Hooks{})
	if err := e.Grant(context.Background(), "p1", "Admin"); !errors.Is(err, ErrReadOnlyStore) {
		t.Fatalf("expected ErrReadOnlyStore, got %v", err)
	}
	roles, err := e.Roles(context.Background(), "p1")
	if err != nil || roles == nil || len(roles) != 0 {
		t.Fatalf("expected empty non-nil roles, got %v err=%v", roles, err)
	}
}

func TestHooksCountHitsAndMisses(t *testing.T) {
	var hits, misses int
	mem := NewMemoryRoleStore()
	e := NewEngine(mem, staticRequirements{}, Config{CacheTTL: time.Minute, CacheSize: 4}, Hooks{
		CacheHit:  func() { hits++ },
		CacheMiss: func() { misses++ },
	})
	ctx := context.Background()
	_, _ = e.Roles(ctx, "p1")
	_, _ = e.Roles(ctx, "p1")
	_, _ = e.Roles(ctx, "p2")
	if hits != 1 || misses != 2 {
		t.Fatalf("expected 1 hit and 2 misses, got %d/%d", hits, misses)
	}
}

func TestReturnedRolesAreCopies(t *testing.T) {
	e, _, mem := newTestEngine(t, staticRequirements{}, nil)
	ctx := context.Background()
	_ = mem.GrantRole(ctx, "p1", "Admin")

	roles, _ := e.Roles(ctx, "p1")
	roles[0] = "Root"
	again, _ := e.Roles(ctx, "p1")
	if again[0] != "Admin" {
		t.Fatal("cache must not alias caller slices")
	}
}

func TestMemoryRoleStoreKnownRoles(t *testing.T) {
	s := NewMemoryRoleStore("Admin")
	if err := s.GrantRole(context.Background(), "p1", "Ghost"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}
