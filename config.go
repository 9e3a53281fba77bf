package goGate

import (
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/password"
)

// EnvironmentProduction hides error traces from responses.
const EnvironmentProduction = "production"

// Config is the full Engine configuration. Every field carries a koanf tag so
// it can be loaded from YAML files and environment variables.
type Config struct {
	Environment   string              `koanf:"environment"`
	JWT           JWTConfig           `koanf:"jwt"`
	Refresh       RefreshConfig       `koanf:"refresh"`
	Authorization AuthorizationConfig `koanf:"authorization"`
	AppState      AppStateConfig      `koanf:"app_state"`
	Request       RequestConfig       `koanf:"request"`
	Password      password.Config     `koanf:"password"`
	Audit         AuditConfig         `koanf:"audit"`
	Metrics       MetricsConfig       `koanf:"metrics"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig selects token lifetimes and signing keys. For hs256 PrivateKey is
// the shared secret; for ed25519 both keys are PEM.
//
// KeyID is written into the kid header of every token. When VerifyKeys is set
// tokens are verified by kid against it, so a retired key can stay listed
// until its tokens expire. KeyID must be one of its entries.
type JWTConfig struct {
	AccessTTL     time.Duration     `koanf:"access_ttl"`
	RefreshTTL    time.Duration     `koanf:"refresh_ttl"`
	ResetTTL      time.Duration     `koanf:"reset_ttl"`
	SigningMethod string            `koanf:"signing_method"`
	PrivateKey    string            `koanf:"private_key"`
	PublicKey     string            `koanf:"public_key"`
	Issuer        string            `koanf:"issuer"`
	Leeway        time.Duration     `koanf:"leeway"`
	KeyID         string            `koanf:"key_id"`
	VerifyKeys    map[string]string `koanf:"verify_keys"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls the refresh cookie, the CSRF header and the
// per-token refresh throttle.
type RefreshConfig struct {
	CookieName     string `koanf:"cookie_name"`
	CookieHashKey  string `koanf:"cookie_hash_key"`
	CookieBlockKey string `koanf:"cookie_block_key"`
	CookiePath     string `koanf:"cookie_path"`
	CookieDomain   string `koanf:"cookie_domain"`
	CookieSecure   bool   `koanf:"cookie_secure"`
	// CookieSameSite is one of lax, strict or none.
	CookieSameSite string `koanf:"cookie_same_site"`
	CSRFHeader     string `koanf:"csrf_header"`

	ThrottleEnabled bool          `koanf:"throttle_enabled"`
	MaxAttempts     int           `koanf:"max_attempts"`
	Cooldown        time.Duration `koanf:"cooldown"`

	ResetMaxAttempts int           `koanf:"reset_max_attempts"`
	ResetCooldown    time.Duration `koanf:"reset_cooldown"`
}

/*
====================================
AUTHORIZATION CONFIG
====================================
*/

type AuthorizationConfig struct {
	RoleCacheTTL       time.Duration `koanf:"role_cache_ttl"`
	RoleCacheSize      int           `koanf:"role_cache_size"`
	BreakerEnabled     bool          `koanf:"breaker_enabled"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

/*
====================================
APP STATE CONFIG
====================================
*/

type AppStateConfig struct {
	// Bypass disables the app-state gate for every route.
	Bypass     bool          `koanf:"bypass"`
	CacheTTL   time.Duration `koanf:"cache_ttl"`
	AdminRoles []string      `koanf:"admin_roles"`
}

/*
====================================
REQUEST CONFIG
====================================
*/

type RequestConfig struct {
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
	// MaxMemory bounds multipart parsing held in memory.
	MaxMemory int64 `koanf:"max_memory"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig sizes the audit queue. With DropIfFull set, events that find
// the queue full are discarded, except for RetainTypes which wait for space.
type AuditConfig struct {
	Enabled     bool     `koanf:"enabled"`
	BufferSize  int      `koanf:"buffer_size"`
	DropIfFull  bool     `koanf:"drop_if_full"`
	RetainTypes []string `koanf:"retain_types"`
}

type MetricsConfig struct {
	Enabled                 bool `koanf:"enabled"`
	EnableLatencyHistograms bool `koanf:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns development defaults. Keys are empty and must be
// supplied before Build.
func DefaultConfig() Config {
	return Config{
		Environment: "development",
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			ResetTTL:      30 * time.Minute,
			SigningMethod: string(jwt.MethodHS256),
		},
		Refresh: RefreshConfig{
			CookieName:       "refresh_token",
			CookiePath:       "/auth",
			CookieSecure:     true,
			CookieSameSite:   "strict",
			CSRFHeader:       "X-CSRF-Token",
			ThrottleEnabled:  false,
			MaxAttempts:      20,
			Cooldown:         time.Minute,
			ResetMaxAttempts: 5,
			ResetCooldown:    15 * time.Minute,
		},
		Authorization: AuthorizationConfig{
			RoleCacheTTL:       5 * time.Minute,
			RoleCacheSize:      10000,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		AppState: AppStateConfig{
			CacheTTL:   30 * time.Second,
			AdminRoles: []string{"Admin"},
		},
		Request: RequestConfig{
			MaxBodyBytes: 1 << 20,
			MaxMemory:    8 << 20,
		},
		Password: password.DefaultConfig(),
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
			RetainTypes: []string{
				AuditPasswordChanged,
				AuditPasswordReset,
				AuditLogoutAll,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.AppState.AdminRoles = append([]string(nil), cfg.AppState.AdminRoles...)
	out.Audit.RetainTypes = append([]string(nil), cfg.Audit.RetainTypes...)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string]string, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = key
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate returns a ConfigurationError describing the first invalid field.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return configError("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return configError("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return configError("JWT RefreshTTL must exceed AccessTTL")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodHS256:
		if len(c.JWT.PrivateKey) < 32 {
			return configError("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case jwt.MethodEd25519:
		if c.JWT.PrivateKey == "" || (c.JWT.PublicKey == "" && len(c.JWT.VerifyKeys) == 0) {
			return configError("ed25519 requires PrivateKey and PublicKey or VerifyKeys")
		}
	default:
		return configError("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}
	if len(c.JWT.VerifyKeys) > 0 {
		if _, ok := c.JWT.VerifyKeys[c.JWT.KeyID]; !ok {
			return configError("JWT KeyID %q is not in VerifyKeys", c.JWT.KeyID)
		}
	}

	// Refresh
	if strings.TrimSpace(c.Refresh.CookieName) == "" {
		return configError("Refresh CookieName must be set")
	}
	if n := len(c.Refresh.CookieHashKey); n < 32 {
		return configError("Refresh CookieHashKey must be at least 32 bytes")
	}
	switch len(c.Refresh.CookieBlockKey) {
	case 0, 16, 24, 32:
	default:
		return configError("Refresh CookieBlockKey must be 16, 24 or 32 bytes")
	}
	if _, ok := parseSameSite(c.Refresh.CookieSameSite); !ok {
		return configError("Refresh CookieSameSite must be lax, strict or none")
	}
	if strings.EqualFold(c.Refresh.CookieSameSite, "none") && !c.Refresh.CookieSecure {
		return configError("Refresh CookieSameSite none requires CookieSecure")
	}
	if strings.TrimSpace(c.Refresh.CSRFHeader) == "" {
		return configError("Refresh CSRFHeader must be set")
	}
	if c.Refresh.ThrottleEnabled && (c.Refresh.MaxAttempts <= 0 || c.Refresh.Cooldown <= 0) {
		return configError("Refresh throttle requires MaxAttempts and Cooldown > 0")
	}

	// Authorization
	if c.Authorization.RoleCacheTTL < 0 || c.Authorization.RoleCacheSize < 0 {
		return configError("Authorization role cache settings must be >= 0")
	}
	if c.Authorization.BreakerEnabled && c.Authorization.BreakerMaxFailures == 0 {
		return configError("Authorization BreakerMaxFailures must be > 0 when the breaker is enabled")
	}

	// AppState
	if c.AppState.CacheTTL < 0 {
		return configError("AppState CacheTTL must be >= 0")
	}
	if len(c.AppState.AdminRoles) == 0 {
		return configError("AppState AdminRoles must not be empty")
	}

	// Request
	if c.Request.MaxBodyBytes <= 0 {
		return configError("Request MaxBodyBytes must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configError("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func parseSameSite(v string) (http.SameSite, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "lax":
		return http.SameSiteLaxMode, true
	case "strict":
		return http.SameSiteStrictMode, true
	case "none":
		return http.SameSiteNoneMode, true
	default:
		return http.SameSiteDefaultMode, false
	}
}
