package goGate

import (
	"context"
	"time"

	"github.com/MrEthical07/goGate/appstate"
	"github.com/MrEthical07/goGate/internal"
	"github.com/MrEthical07/goGate/internal/flows"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/logging"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/permission"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Builder collects configuration, stores, routes and pipeline descriptors and
// produces an immutable [Engine]. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	refreshStore RefreshTokenStore
	roleStore    RoleStore
	stateStore   AppStateStore
	credentials  CredentialStore
	validator    Validator
	auditSink    AuditSink
	now          func() time.Time

	routes      []defaultRoute
	descriptors []Descriptor

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by the refresh and reset throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRefreshStore sets the refresh-token store. It is required.
func (b *Builder) WithRefreshStore(store RefreshTokenStore) *Builder {
	b.refreshStore = store
	return b
}

// WithRoleStore sets the role store. It is required.
func (b *Builder) WithRoleStore(store RoleStore) *Builder {
	b.roleStore = store
	return b
}

// WithAppStateStore sets the schedule store. Without one an in-memory store
// starting from an empty schedule is used.
func (b *Builder) WithAppStateStore(store AppStateStore) *Builder {
	b.stateStore = store
	return b
}

// WithCredentialStore enables the password change and reset routes.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

func (b *Builder) WithValidator(v Validator) *Builder {
	b.validator = v
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the clock used for tokens, caches and the app-state
// gate.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRoute registers an application route. Routes on a library path replace
// the library route.
func (b *Builder) WithRoute(path string, cfg RouteConfig) *Builder {
	b.routes = append(b.routes, defaultRoute{path: path, cfg: cfg})
	return b
}

// WithDescriptor adds a pipeline step. A descriptor named like a library step
// replaces it.
func (b *Builder) WithDescriptor(d Descriptor) *Builder {
	b.descriptors = append(b.descriptors, d)
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, wires every collaborator, registers the
// library routes followed by the application routes, freezes the registry and
// assembles the pipeline. Every failure is a ConfigurationError.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, configError("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.refreshStore == nil {
		return nil, configError("refresh token store is required")
	}
	if b.roleStore == nil {
		return nil, configError("role store is required")
	}
	if cfg.Refresh.ThrottleEnabled && b.redis == nil {
		return nil, configError("refresh throttle requires a redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		ResetTTL:      cfg.JWT.ResetTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    []byte(cfg.JWT.PrivateKey),
		PublicKey:     []byte(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    verifyKeyBytes(cfg.JWT.VerifyKeys),
		Now:           now,
	})
	if err != nil {
		return nil, configError("jwt: %v", err)
	}

	hasher, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, configError("password: %v", err)
	}

	e := &Engine{
		config:      cfg,
		jwt:         jwtManager,
		cookies:     newCookieCodec(cfg.Refresh, cfg.JWT.RefreshTTL),
		refresh:     b.refreshStore,
		credentials: b.credentials,
		hasher:      hasher,
		validator:   b.validator,
		metrics:     NewMetrics(cfg.Metrics),
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		log:         logging.WithComponent("gogate"),
		now:         now,
		routes:      NewRouteRegistry(),
	}

	roleStore := b.roleStore
	if cfg.Authorization.BreakerEnabled {
		roleStore = permission.NewBreakerRoleStore(roleStore, permission.BreakerConfig{
			FailureThreshold: cfg.Authorization.BreakerMaxFailures,
			Timeout:          cfg.Authorization.BreakerTimeout,
			OnStateChange: func(name string, from, to gobreaker.State) {
				e.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("goGate: role store breaker state changed")
			},
		})
	}
	e.perms = permission.NewEngine(roleStore, e.routes, permission.Config{
		CacheTTL:  cfg.Authorization.RoleCacheTTL,
		CacheSize: cfg.Authorization.RoleCacheSize,
		Now:       now,
	}, permission.Hooks{
		CacheHit:  func() { e.metricInc(MetricRoleCacheHit) },
		CacheMiss: func() { e.metricInc(MetricRoleCacheMiss) },
	})

	stateStore := b.stateStore
	if stateStore == nil {
		stateStore = appstate.NewMemoryStore()
	}
	e.gate = appstate.NewGate(stateStore, appstate.Config{
		Bypass:   cfg.AppState.Bypass,
		CacheTTL: cfg.AppState.CacheTTL,
		Now:      now,
	})

	if b.redis != nil {
		throttle := rate.Config{Reset: rate.Window{
			MaxAttempts: cfg.Refresh.ResetMaxAttempts,
			Cooldown:    cfg.Refresh.ResetCooldown,
		}}
		if cfg.Refresh.ThrottleEnabled {
			throttle.Refresh = rate.Window{MaxAttempts: cfg.Refresh.MaxAttempts, Cooldown: cfg.Refresh.Cooldown}
		}
		e.limiter = rate.New(b.redis, throttle)
	}

	e.flows = b.flowDeps(e)

	for _, r := range append(e.defaultRoutes(), b.routes...) {
		if err := e.routes.Register(r.path, r.cfg); err != nil {
			return nil, err
		}
	}
	e.routes.Freeze()

	descs, err := mergeDescriptors(e.defaultDescriptors(), b.descriptors)
	if err != nil {
		return nil, err
	}
	pipeline, err := Assemble(descs...)
	if err != nil {
		return nil, err
	}
	pipeline.opts = pipelineOptions{
		request: requestOptions{
			maxBodyBytes: cfg.Request.MaxBodyBytes,
			maxMemory:    cfg.Request.MaxMemory,
			validator:    b.validator,
			now:          now,
		},
		withTrace: cfg.Environment != EnvironmentProduction,
		render:    e.renderError,
		observe:   e.observeRequest,
	}
	e.pipeline = pipeline

	b.built = true
	return e, nil
}

func (b *Builder) flowDeps(e *Engine) flows.Deps {
	newTokenID := func() (string, error) {
		id, err := internal.NewTokenID()
		if err != nil {
			return "", err
		}
		return id.String(), nil
	}

	deps := flows.Deps{
		Login: flows.LoginDeps{
			Tokens:     e.jwt,
			Cookies:    e.cookies,
			Store:      e.refresh,
			NewTokenID: newTokenID,
			NewCSRF:    internal.NewCSRFToken,
		},
		Refresh: flows.RefreshDeps{
			Tokens:  e.jwt,
			Cookies: e.cookies,
			Store:   e.refresh,
			NewCSRF: internal.NewCSRFToken,
			Warn:    e.warn,
		},
		Logout: flows.LogoutDeps{
			Tokens:  e.jwt,
			Cookies: e.cookies,
			Store:   e.refresh,
		},
		Password: flows.PasswordDeps{
			Credentials:     e.credentials,
			Hasher:          e.hasher,
			Store:           e.refresh,
			ParseResetToken: e.parseResetToken,
			IsRateLimited:   isResetRateLimited,
			SpendReset:      rate.NewMemorySpent(e.now).Spend,
		},
	}
	if e.limiter != nil {
		deps.Refresh.Throttle = e.limiter
		limiter := e.limiter
		deps.Password.CheckReset = func(ctx context.Context, identity string) error {
			return limiter.CheckReset(ctx, identity)
		}
		// shared across instances
		deps.Password.SpendReset = limiter.Spend
	}
	return deps
}

// mergeDescriptors keeps library descriptors in place unless an override
// with the same name replaces them. Two application descriptors may not share
// a name.
func verifyKeyBytes(keys map[string]string) map[string][]byte {
	if len(keys) == 0 {
		return nil
	}
	out := make(map[string][]byte, len(keys))
	for kid, key := range keys {
		out[kid] = []byte(key)
	}
	return out
}

func mergeDescriptors(defaults, overrides []Descriptor) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(defaults)+len(overrides))
	index := make(map[string]int, len(defaults))
	for _, d := range defaults {
		index[d.Name] = len(out)
		out = append(out, d)
	}
	seen := make(map[string]struct{}, len(overrides))
	for _, d := range overrides {
		if _, dup := seen[d.Name]; dup {
			return nil, configError("pipeline descriptor %q: name is already used", d.Name)
		}
		seen[d.Name] = struct{}{}
		if i, ok := index[d.Name]; ok {
			out[i] = d
			continue
		}
		index[d.Name] = len(out)
		out = append(out, d)
	}
	return out, nil
}
