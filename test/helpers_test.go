//go:build integration
// +build integration

package test

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	goVerify "github.com/MrEthical07/goVerify"
	"github.com/MrEthical07/goVerify/credstore"
	"github.com/MrEthical07/goVerify/notify"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

var integrationKey = bytes.Repeat([]byte("i"), 32)

// redisMode describes which Redis backend the compatibility suite is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// redisModes returns the set of Redis backends to test.
// miniredis is always available.
// Real Redis standalone is used when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	// Cluster mode: when REDIS_CLUSTER_ADDRS is set (comma-separated).
	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, redisMode{
			name: "cluster",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: splitAddrs(addrs)})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis cluster: %v", err)
				}
				return rdb, func() { _ = rdb.Close() }
			},
		})
	}

	return modes
}

func splitAddrs(s string) []string {
	var addrs []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

// newPostgresPool connects to DATABASE_URL or skips the test.
func newPostgresPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.Connect(ctx, url)
	if err != nil {
		t.Skipf("cannot connect to postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// codebook keeps the latest secret delivered to each destination.
type codebook struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
}

func newCodebook() *codebook {
	return &codebook{codes: make(map[string]string)}
}

func (c *codebook) Send(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[msg.Destination] = msg.Secret
	c.sent++
	return nil
}

func (c *codebook) code(t *testing.T, dest string) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	code, ok := c.codes[dest]
	if !ok {
		t.Fatalf("no secret delivered to %s", dest)
	}
	return code
}

func integrationConfig() goVerify.Config {
	cfg := goVerify.DefaultConfig()
	cfg.Secret.Key = integrationKey
	cfg.Backend.RetryDelay = 5 * time.Millisecond
	cfg.Metrics.Enabled = true
	return cfg
}

// newRedisEngine builds an engine whose records, rate limits and lockout
// history all live in rdb.
func newRedisEngine(t *testing.T, rdb redis.UniversalClient, box notify.Notifier, mutate func(*goVerify.Config)) *goVerify.Engine {
	t.Helper()

	cfg := integrationConfig()
	cfg.Store.RedisPrefix = "gvi"
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := goVerify.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithNotifier(box).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// newPostgresEngine builds an engine over a PostgresStore with the
// redis-backed protections switched off.
func newPostgresEngine(t *testing.T, store *credstore.PostgresStore, box notify.Notifier, opts ...func(*goVerify.Builder)) *goVerify.Engine {
	t.Helper()

	cfg := integrationConfig()
	cfg.RateLimit.Enabled = false
	cfg.Lockout.HistoryEnabled = false

	b := goVerify.New().
		WithConfig(cfg).
		WithStore(store).
		WithNotifier(box)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func uniqueEmail(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8] + "@example.com"
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
