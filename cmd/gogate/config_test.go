package main

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const testYAML = `
gate:
  environment: test
  jwt:
    private_key: 0123456789abcdef0123456789abcdef
    issuer: gogate-cli-test
  refresh:
    cookie_hash_key: fedcba9876543210fedcba9876543210
server:
  addr: 127.0.0.1:0
  write_timeout: 3s
  log_requests: false
stores:
  seed_roles:
    - u1:Admin
logging:
  level: warn
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gogate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigLayersFileOverDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Gate.Environment != "test" || cfg.Gate.JWT.Issuer != "gogate-cli-test" {
		t.Fatalf("file values not applied: %+v", cfg.Gate)
	}
	if cfg.Server.WriteTimeout != 3*time.Second {
		t.Fatalf("expected 3s write timeout, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Server.LogRequests {
		t.Fatal("expected log_requests=false from file")
	}
	// untouched keys keep their defaults
	if cfg.Gate.JWT.AccessTTL != 15*time.Minute {
		t.Fatalf("expected default access ttl, got %v", cfg.Gate.JWT.AccessTTL)
	}
	if cfg.Server.ReadHeaderTimeout != 5*time.Second || cfg.Stores.Refresh != "memory" {
		t.Fatalf("defaults lost: %+v %+v", cfg.Server, cfg.Stores)
	}
	if !slices.Equal(cfg.Stores.SeedRoles, []string{"u1:Admin"}) {
		t.Fatalf("unexpected seed roles %v", cfg.Stores.SeedRoles)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("unexpected logging level %q", cfg.Logging.Level)
	}
}

func TestLoadConfigReadsVerifyKeys(t *testing.T) {
	body := strings.Replace(testYAML, "    issuer: gogate-cli-test\n", `    issuer: gogate-cli-test
    key_id: k2
    verify_keys:
      k1: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
      k2: 0123456789abcdef0123456789abcdef
`, 1)
	cfg, err := loadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gate.JWT.KeyID != "k2" {
		t.Fatalf("unexpected key id %q", cfg.Gate.JWT.KeyID)
	}
	if len(cfg.Gate.JWT.VerifyKeys) != 2 || cfg.Gate.JWT.VerifyKeys["k1"] != strings.Repeat("a", 32) {
		t.Fatalf("unexpected verify keys %v", cfg.Gate.JWT.VerifyKeys)
	}

	bad := strings.Replace(body, "key_id: k2", "key_id: k9", 1)
	if _, err := loadConfig(writeConfig(t, bad)); err == nil {
		t.Fatal("key id outside the verify set must fail validation")
	}
}

func TestLoadConfigEnvironmentWins(t *testing.T) {
	path := writeConfig(t, testYAML)
	t.Setenv("GOGATE_SERVER__ADDR", ":9191")
	t.Setenv("GOGATE_GATE__APP_STATE__ADMIN_ROLES", "Ops, Admin")
	t.Setenv("GOGATE_SERVER__THROTTLE_PER_SECOND", "2.5")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9191" {
		t.Fatalf("expected env addr, got %q", cfg.Server.Addr)
	}
	if !slices.Equal(cfg.Gate.AppState.AdminRoles, []string{"Ops", "Admin"}) {
		t.Fatalf("unexpected admin roles %v", cfg.Gate.AppState.AdminRoles)
	}
	if cfg.Server.ThrottlePerSecond != 2.5 {
		t.Fatalf("unexpected throttle rate %v", cfg.Server.ThrottlePerSecond)
	}
}

func TestLoadConfigFromEnvironmentOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GOGATE_GATE__JWT__PRIVATE_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("GOGATE_GATE__REFRESH__COOKIE_HASH_KEY", "fedcba9876543210fedcba9876543210")

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gate.JWT.PrivateKey != "0123456789abcdef0123456789abcdef" {
		t.Fatal("private key not read from environment")
	}
}

func TestLoadConfigRequiresKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := loadConfig(""); err == nil {
		t.Fatal("expected missing keys to fail validation")
	}
}

func TestLoadConfigRejectsBadBackends(t *testing.T) {
	cases := map[string]string{
		"unknown refresh store": "  refresh: mongo\n",
		"badger roles":          "  roles: badger\n",
		"postgres without dsn":  "  refresh: postgres\n",
	}
	for name, extra := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, strings.Replace(testYAML, "stores:\n", "stores:\n"+extra, 1)))
			if err == nil {
				t.Fatal("expected config error")
			}
			if name != "postgres without dsn" && !errors.Is(err, errUnknownBackend) {
				t.Fatalf("expected errUnknownBackend, got %v", err)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
}

func TestUsesRedis(t *testing.T) {
	cfg := defaultAppConfig()
	if cfg.usesRedis() {
		t.Fatal("memory defaults must not need redis")
	}
	cfg.Gate.Refresh.ThrottleEnabled = true
	if !cfg.usesRedis() {
		t.Fatal("refresh throttle needs redis")
	}
}
