package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goVerify/internal/rate"
)

var (
	ErrRequestRateLimited        = errors.New("verification request rate limited")
	ErrRequestLimiterUnavailable = errors.New("verification request limiter unavailable")
)

// RequestPolicy is the ceiling pair for one action. A zero limit disables
// that ceiling.
type RequestPolicy struct {
	SubjectLimit int
	CallerLimit  int
	Window       time.Duration
}

// RequestLimiter applies a per-subject and an independent per-caller ceiling
// to each action. Both must pass.
type RequestLimiter struct {
	limiter  *rate.Limiter
	policies map[string]RequestPolicy
}

// NewRequestLimiter creates a limiter for the given action policies.
func NewRequestLimiter(limiter *rate.Limiter, policies map[string]RequestPolicy) *RequestLimiter {
	cp := make(map[string]RequestPolicy, len(policies))
	for action, p := range policies {
		cp[action] = p
	}
	return &RequestLimiter{limiter: limiter, policies: cp}
}

// Check counts one request for action. subjectKey should already include the
// purpose; callerKey may be empty, in which case only the subject ceiling is
// enforced. On denial it returns the time until the tripped window resets.
func (l *RequestLimiter) Check(ctx context.Context, action, subjectKey, callerKey string) (time.Duration, error) {
	if l == nil || l.limiter == nil {
		return 0, nil
	}
	policy, ok := l.policies[action]
	if !ok {
		return 0, nil
	}

	if policy.SubjectLimit > 0 {
		if retry, err := l.enforce(ctx, action+":subject", subjectKey, policy.SubjectLimit, policy.Window); err != nil {
			return retry, err
		}
	}
	if policy.CallerLimit > 0 && callerKey != "" {
		if retry, err := l.enforce(ctx, action+":caller", callerKey, policy.CallerLimit, policy.Window); err != nil {
			return retry, err
		}
	}
	return 0, nil
}

func (l *RequestLimiter) enforce(ctx context.Context, scope, key string, limit int, window time.Duration) (time.Duration, error) {
	decision, err := l.limiter.Allow(ctx, key, scope, limit, window)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRequestLimiterUnavailable, err)
	}
	if !decision.Allowed {
		return decision.RetryAfter, ErrRequestRateLimited
	}
	return 0, nil
}
