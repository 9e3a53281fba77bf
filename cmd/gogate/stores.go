package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/appstate"
	"github.com/MrEthical07/goGate/logging"
	"github.com/MrEthical07/goGate/permission"
	"github.com/MrEthical07/goGate/session"
	"github.com/dgraph-io/badger/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

// backends holds the opened stores and the connections behind them.
type backends struct {
	refresh  goGate.RefreshTokenStore
	roles    goGate.RoleStore
	appState goGate.AppStateStore

	redis  *redis.Client
	db     *sql.DB
	badger *badger.DB

	// purger is set when refresh tokens live in postgres.
	purger *session.PostgresStore
}

// openBackends connects every store named in cfg. On error the connections
// opened so far are closed.
func openBackends(ctx context.Context, cfg storeConfig, needRedis bool) (*backends, error) {
	b := &backends{}
	opened := false
	defer func() {
		if !opened {
			b.Close()
		}
	}()

	var err error

	if needRedis {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
	}

	if cfg.Refresh == "postgres" || cfg.Roles == "postgres" {
		if b.db, err = openPostgres(ctx, cfg); err != nil {
			return nil, err
		}
	}

	switch cfg.Refresh {
	case "redis":
		b.refresh = session.NewRedisStore(b.redis, cfg.RedisPrefix+":rt")
	case "postgres":
		b.purger = session.NewPostgresStore(b.db)
		b.refresh = b.purger
	default:
		b.refresh = session.NewMemoryStore()
	}

	switch cfg.Roles {
	case "postgres":
		b.roles = permission.NewPostgresRoleStore(b.db)
	default:
		b.roles = permission.NewMemoryRoleStore()
	}
	if err := seedRoles(ctx, b.roles, cfg.SeedRoles); err != nil {
		return nil, err
	}

	switch cfg.AppState {
	case "redis":
		b.appState = appstate.NewRedisStore(b.redis, cfg.RedisPrefix+":appstate")
	case "badger":
		opts := badger.DefaultOptions(cfg.BadgerPath).WithLogger(nil)
		if cfg.BadgerPath == "" {
			opts = opts.WithInMemory(true)
		}
		if b.badger, err = badger.Open(opts); err != nil {
			return nil, fmt.Errorf("open badger %q: %w", cfg.BadgerPath, err)
		}
		b.appState = appstate.NewBadgerStore(b.badger)
	default:
		b.appState = appstate.NewMemoryStore()
	}

	opened = true
	return b, nil
}

// pingers lists the opened stores that report backend latency.
func (b *backends) pingers() map[string]storePinger {
	out := make(map[string]storePinger)
	if p, ok := b.refresh.(storePinger); ok {
		out["refresh"] = p
	}
	return out
}

func openPostgres(ctx context.Context, cfg storeConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if cfg.PostgresMigrate {
		for _, schema := range []string{session.PostgresSchema, permission.PostgresSchema} {
			if _, err := db.ExecContext(ctx, schema); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
	}
	return db, nil
}

// seedRoles grants principal:role pairs. Postgres role names are created
// first so the foreign key holds.
func seedRoles(ctx context.Context, store goGate.RoleStore, pairs []string) error {
	if len(pairs) == 0 {
		return nil
	}
	writer, ok := store.(interface {
		GrantRole(ctx context.Context, principalID, role string) error
	})
	if !ok {
		return errors.New("role store does not accept grants")
	}

	type grant struct{ principal, role string }
	grants := make([]grant, 0, len(pairs))
	names := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		principal, role, found := strings.Cut(pair, ":")
		principal, role = strings.TrimSpace(principal), strings.TrimSpace(role)
		if !found || principal == "" || role == "" {
			return fmt.Errorf("seed role %q: want principal:role", pair)
		}
		grants = append(grants, grant{principal, role})
		names = append(names, role)
	}

	if pg, ok := store.(*permission.PostgresRoleStore); ok {
		if err := pg.EnsureRoles(ctx, names...); err != nil {
			return fmt.Errorf("seed roles: %w", err)
		}
	}
	for _, g := range grants {
		if err := writer.GrantRole(ctx, g.principal, g.role); err != nil {
			return fmt.Errorf("seed role %s for %s: %w", g.role, g.principal, err)
		}
	}
	return nil
}

// Close releases every connection. It is safe on a partially opened set.
func (b *backends) Close() {
	if b == nil {
		return
	}
	if b.badger != nil {
		if err := b.badger.Close(); err != nil {
			logging.Warn().Err(err).Msg("gogate: close badger")
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			logging.Warn().Err(err).Msg("gogate: close postgres")
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logging.Warn().Err(err).Msg("gogate: close redis")
		}
	}
}
