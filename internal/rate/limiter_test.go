package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestAllowFixedWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb, "")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d, err := l.Allow(ctx, "+14045550100", "issue:subject", 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !d.Allowed || d.Count != int64(i) {
			t.Fatalf("hit %d unexpectedly denied: %+v", i, d)
		}
	}

	d, err := l.Allow(ctx, "+14045550100", "issue:subject", 3, time.Minute)
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected fourth hit to be denied")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("unexpected RetryAfter %s", d.RetryAfter)
	}

	mr.FastForward(time.Minute)
	d, err = l.Allow(ctx, "+14045550100", "issue:subject", 3, time.Minute)
	if err != nil || !d.Allowed {
		t.Fatalf("expected window reset, got %+v err=%v", d, err)
	}
}

func TestAllowKeysAreIndependent(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := New(rdb, "t")
	ctx := context.Background()

	if d, _ := l.Allow(ctx, "a", "verify:subject", 1, time.Minute); !d.Allowed {
		t.Fatal("first hit should pass")
	}
	if d, _ := l.Allow(ctx, "a", "verify:subject", 1, time.Minute); d.Allowed {
		t.Fatal("second hit should be denied")
	}
	if d, _ := l.Allow(ctx, "b", "verify:subject", 1, time.Minute); !d.Allowed {
		t.Fatal("other key must have its own window")
	}
	if d, _ := l.Allow(ctx, "a", "verify:caller", 1, time.Minute); !d.Allowed {
		t.Fatal("other action must have its own window")
	}
}

func TestAllowRepairsMissingExpiry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb, "gvr")
	if err := mr.Set("gvr:issue:subject:x", "10"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	d, err := l.Allow(context.Background(), "x", "issue:subject", 3, time.Minute)
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if d.Allowed || d.RetryAfter != time.Minute {
		t.Fatalf("unexpected decision %+v", d)
	}
	if ttl := mr.TTL("gvr:issue:subject:x"); ttl <= 0 {
		t.Fatalf("expected expiry to be restored, got %s", ttl)
	}
}

func TestAllowDisabledLimit(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := New(rdb, "")
	d, err := l.Allow(context.Background(), "x", "a", 0, time.Minute)
	if err != nil || !d.Allowed {
		t.Fatalf("zero limit should disable the ceiling: %+v err=%v", d, err)
	}
}

func TestCountAndReset(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := New(rdb, "")
	ctx := context.Background()

	_, _ = l.Allow(ctx, "k", "a", 5, time.Minute)
	_, _ = l.Allow(ctx, "k", "a", 5, time.Minute)
	if n, err := l.Count(ctx, "k", "a"); err != nil || n != 2 {
		t.Fatalf("Count = %d err=%v", n, err)
	}
	if err := l.Reset(ctx, "k", "a"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if n, _ := l.Count(ctx, "k", "a"); n != 0 {
		t.Fatalf("expected zero after reset, got %d", n)
	}
}

func TestAllowRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb, "")
	mr.Close()

	if _, err := l.Allow(context.Background(), "k", "a", 1, time.Minute); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
