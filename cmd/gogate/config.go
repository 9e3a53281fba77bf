package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/logging"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix marks variables read by the loader. Nested keys are separated by
// a double underscore: GOGATE_GATE__JWT__PRIVATE_KEY sets gate.jwt.private_key.
const envPrefix = "GOGATE_"

// defaultConfigPaths are tried in order when --config is not given.
var defaultConfigPaths = []string{
	"gogate.yaml",
	"gogate.yml",
	"/etc/gogate/config.yaml",
}

type appConfig struct {
	Gate    goGate.Config  `koanf:"gate"`
	Server  serverConfig   `koanf:"server"`
	Stores  storeConfig    `koanf:"stores"`
	Logging logging.Config `koanf:"logging"`
}

type serverConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	MetricsPath       string        `koanf:"metrics_path"`

	// ThrottlePerSecond of 0 disables the per-client throttle.
	ThrottlePerSecond float64 `koanf:"throttle_per_second"`
	ThrottleBurst     int     `koanf:"throttle_burst"`
	LogRequests       bool    `koanf:"log_requests"`
}

type storeConfig struct {
	// Refresh is memory, redis or postgres.
	Refresh string `koanf:"refresh"`
	// Roles is memory or postgres.
	Roles string `koanf:"roles"`
	// AppState is memory, redis or badger.
	AppState string `koanf:"app_state"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`

	PostgresDSN     string `koanf:"postgres_dsn"`
	PostgresMigrate bool   `koanf:"postgres_migrate"`
	// PurgeInterval of 0 disables the expired refresh-token sweep.
	PurgeInterval time.Duration `koanf:"purge_interval"`

	// BadgerPath of "" opens an in-memory database.
	BadgerPath string `koanf:"badger_path"`

	// Roles seeded into the memory role store, as principal:role pairs.
	SeedRoles []string `koanf:"seed_roles"`
}

func defaultAppConfig() *appConfig {
	return &appConfig{
		Gate: goGate.DefaultConfig(),
		Server: serverConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MetricsPath:       "/metrics",
			ThrottleBurst:     20,
			LogRequests:       true,
		},
		Stores: storeConfig{
			Refresh:       "memory",
			Roles:         "memory",
			AppState:      "memory",
			RedisAddr:     "127.0.0.1:6379",
			RedisPrefix:   "gogate",
			PurgeInterval: time.Hour,
		},
		Logging: logging.DefaultConfig(),
	}
}

// sliceKeys are list values that env variables supply comma separated.
var sliceKeys = []string{
	"gate.app_state.admin_roles",
	"stores.seed_roles",
}

// loadConfig layers defaults, then the YAML file, then GOGATE_ variables.
func loadConfig(path string) (*appConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultAppConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitSliceKeys(k); err != nil {
		return nil, err
	}

	cfg := &appConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func envKey(key string) string {
	key = strings.TrimPrefix(key, envPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func splitSliceKeys(k *koanf.Koanf) error {
	for _, key := range sliceKeys {
		raw, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

var errUnknownBackend = errors.New("unknown store backend")

func (c *appConfig) validate() error {
	if err := c.Gate.Validate(); err != nil {
		return err
	}
	check := func(name, value string, allowed ...string) error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return fmt.Errorf("%w: stores.%s=%q (want one of %s)", errUnknownBackend, name, value, strings.Join(allowed, ", "))
	}
	if err := check("refresh", c.Stores.Refresh, "memory", "redis", "postgres"); err != nil {
		return err
	}
	if err := check("roles", c.Stores.Roles, "memory", "postgres"); err != nil {
		return err
	}
	if err := check("app_state", c.Stores.AppState, "memory", "redis", "badger"); err != nil {
		return err
	}
	if (c.Stores.Refresh == "postgres" || c.Stores.Roles == "postgres") && c.Stores.PostgresDSN == "" {
		return errors.New("stores.postgres_dsn is required for postgres backends")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	return nil
}

// usesRedis reports whether any component needs the redis client.
func (c *appConfig) usesRedis() bool {
	return c.Stores.Refresh == "redis" || c.Stores.AppState == "redis" || c.Gate.Refresh.ThrottleEnabled
}
