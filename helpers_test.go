package goGate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGate/appstate"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/permission"
	"github.com/MrEthical07/goGate/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Environment = "test"
	cfg.JWT.PrivateKey = "0123456789abcdef0123456789abcdef"
	cfg.JWT.Issuer = "gogate-test"
	cfg.Refresh.CookieHashKey = "fedcba9876543210fedcba9876543210"
	cfg.Refresh.CookieSecure = false
	cfg.Refresh.CookieSameSite = "lax"
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	return cfg
}

type memoryCredentials struct {
	mu     sync.Mutex
	hashes map[string]string
}

func (m *memoryCredentials) PasswordHash(_ context.Context, principalID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[principalID]
	if !ok {
		return "", ErrCredentialNotFound
	}
	return h, nil
}

func (m *memoryCredentials) UpdatePasswordHash(_ context.Context, principalID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hashes[principalID] = hash
	return nil
}

type testEnv struct {
	engine *Engine
	clock  *testClock
	roles  *permission.MemoryRoleStore
	states *appstate.MemoryStore
	creds  *memoryCredentials
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

type envOption func(env *testEnv, b *Builder, cfg *Config)

// withActiveState schedules ACTIVE one minute before the test clock.
func withActiveState() envOption {
	return func(env *testEnv, _ *Builder, _ *Config) {
		_ = env.states.SaveSchedule(context.Background(), []appstate.Entry{{
			State:         appstate.StateActive,
			EffectiveFrom: env.clock.Now().Add(-time.Minute),
		}})
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := &testEnv{
		clock:  newTestClock(),
		roles:  permission.NewMemoryRoleStore(),
		states: appstate.NewMemoryStore(),
		creds:  &memoryCredentials{hashes: map[string]string{}},
		mr:     mr,
		rdb:    rdb,
	}

	cfg := testConfig()
	b := New().
		WithRefreshStore(session.NewRedisStore(rdb, "test")).
		WithRoleStore(env.roles).
		WithAppStateStore(env.states).
		WithCredentialStore(env.creds).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(env, b, &cfg)
	}

	engine, err := b.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) accessToken(t *testing.T, id string) string {
	t.Helper()
	token, err := env.engine.IssueAccessToken(Principal{ID: id}, 0)
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}
	return token
}

func (env *testEnv) do(t *testing.T, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func okHandler(result any) HandlerFunc {
	return func(*RequestContext) (any, error) { return result, nil }
}
