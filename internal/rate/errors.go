package rate

import "errors"

var (
	// ErrRateLimited is returned by limiters layered on [Limiter] when a ceiling is exceeded.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
