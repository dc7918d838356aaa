package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces rate window keys.
const DefaultPrefix = "gvr"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// Count is the number of hits in the current window, including this one.
	Count int64
	// RetryAfter is the time until the window resets. Only set when denied.
	RetryAfter time.Duration
}

// Limiter enforces fixed-window ceilings with Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Allow counts one hit against (action, key) and reports whether the hit
// falls within limit for the current window. Denied hits are still counted.
func (l *Limiter) Allow(ctx context.Context, key, action string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 || window <= 0 {
		return Decision{Allowed: true}, nil
	}

	windowKey := l.key(action, key)
	count, err := l.incrementWithTTL(ctx, windowKey, window)
	if err != nil {
		return Decision{}, err
	}
	if count <= int64(limit) {
		return Decision{Allowed: true, Count: count}, nil
	}

	ttl, err := l.redis.PTTL(ctx, windowKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl <= 0 {
		// The window key lost its expiry; restore it so the subject is not
		// throttled forever.
		if err := l.redis.PExpire(ctx, windowKey, window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		ttl = window
	}
	return Decision{Allowed: false, Count: count, RetryAfter: ttl}, nil
}

// Count returns the hits recorded in the current window without adding one.
func (l *Limiter) Count(ctx context.Context, key, action string) (int64, error) {
	count, err := l.redis.Get(ctx, l.key(action, key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

// Reset clears the window for (action, key).
func (l *Limiter) Reset(ctx context.Context, key, action string) error {
	if err := l.redis.Del(ctx, l.key(action, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(action, key string) string {
	return l.prefix + ":" + action + ":" + key
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.PExpire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
