//go:build integration
// +build integration

package test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/credentials"
	"github.com/MrEthical07/authgate/internal/database"
	"github.com/MrEthical07/authgate/permission"
	"github.com/MrEthical07/authgate/refresh"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// fakeClock is a settable clock shared by the engine and its stores.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// redisMode describes which Redis backend a suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes returns miniredis plus real Redis when REDIS_ADDR or
// REDIS_CLUSTER_ADDRS is set.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{{
		name: "miniredis",
		setup: func(t *testing.T) redis.UniversalClient {
			t.Helper()
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return rdb
		},
	}}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				pingOrSkip(t, rdb)
				rdb.FlushDB(context.Background())
				t.Cleanup(func() { rdb.FlushDB(context.Background()); _ = rdb.Close() })
				return rdb
			},
		})
	}

	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name: "cluster",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				pingOrSkip(t, rdb)
				t.Cleanup(func() { _ = rdb.Close() })
				return rdb
			},
		})
	}
	return modes
}

func pingOrSkip(t *testing.T, rdb redis.UniversalClient) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("cannot connect to Redis: %v", err)
	}
}

func splitAddrs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// openPostgres returns a migrated, empty database, or skips without DATABASE_URL.
func openPostgres(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := database.Open(ctx, dsn, database.Options{})
	if err != nil {
		t.Skipf("cannot connect to Postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE users, refresh_tokens RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}

func testConfig() authgate.Config {
	cfg := authgate.DefaultConfig()
	cfg.Password.Algorithm = "bcrypt"
	cfg.Password.BcryptCost = 4
	return cfg
}

func newRedisEngine(t *testing.T, rdb redis.UniversalClient, clock *fakeClock) *authgate.Engine {
	t.Helper()
	engine, err := authgate.New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithCredentialStore(credentials.NewMemoryStore()).
		WithClock(clock.Now).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newPostgresEngine(t *testing.T, db *sql.DB, clock *fakeClock) *authgate.Engine {
	t.Helper()
	cfg := testConfig()
	engine, err := authgate.New().
		WithConfig(cfg).
		WithLedger(refresh.NewPostgresStore(db, refresh.StoreConfig{TTL: cfg.Refresh.TTL, Now: clock.Now})).
		WithCredentialStore(credentials.NewPostgresStore(db)).
		WithClock(clock.Now).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func register(t *testing.T, engine *authgate.Engine, login string, role permission.Role) authgate.User {
	t.Helper()
	u, err := engine.Register(context.Background(), authgate.RegisterRequest{
		Login:                login,
		Email:                login + "@example.com",
		Password:             "integration1",
		PasswordConfirmation: "integration1",
		Role:                 role,
	})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", login, err)
	}
	return u
}

func login(t *testing.T, engine *authgate.Engine, name string) authgate.TokenPair {
	t.Helper()
	pair, err := engine.Login(context.Background(), name, "integration1")
	if err != nil {
		t.Fatalf("Login(%s) failed: %v", name, err)
	}
	return pair
}
