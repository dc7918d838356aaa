package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig holds configuration for the lockout history tracker.
type LockoutConfig struct {
	Enabled bool
	Window  time.Duration
}

var (
	// ErrLockoutUnavailable indicates the lockout backend is unreachable.
	ErrLockoutUnavailable = errors.New("lockout history backend unavailable")
)

// LockoutTracker counts how often a (subject, purpose) pair has reached the
// Locked state within a rolling window. The advisor reads the count to decide
// whether to offer an alternate channel.
type LockoutTracker struct {
	redis  redis.UniversalClient
	config LockoutConfig
}

// NewLockoutTracker creates a new lockout history tracker.
func NewLockoutTracker(redisClient redis.UniversalClient, cfg LockoutConfig) *LockoutTracker {
	return &LockoutTracker{redis: redisClient, config: cfg}
}

func (l *LockoutTracker) key(subject, purpose string) string {
	return "gvlh:" + purpose + ":" + subject
}

// Record notes one lockout and returns the number of lockouts in the window.
func (l *LockoutTracker) Record(ctx context.Context, subject, purpose string) (int, error) {
	if l == nil || !l.config.Enabled || subject == "" {
		return 0, nil
	}

	key := l.key(subject, purpose)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	if count == 1 && l.config.Window > 0 {
		// The first lockout opens the window; later ones fall inside it.
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
	}

	return int(count), nil
}

// Count returns the lockouts recorded in the current window.
func (l *LockoutTracker) Count(ctx context.Context, subject, purpose string) (int, error) {
	if l == nil || !l.config.Enabled || subject == "" {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, l.key(subject, purpose)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return int(count), nil
}

// Reset clears the lockout history, e.g. after a successful verification.
func (l *LockoutTracker) Reset(ctx context.Context, subject, purpose string) error {
	if l == nil || !l.config.Enabled || subject == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.key(subject, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}
