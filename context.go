package goVerify

import "context"

type clientIPContextKey struct{}
type callerIDContextKey struct{}

// WithClientIP attaches the requesting IP address to ctx. The Engine uses it
// for per-caller rate limiting when no caller id is present, and records it
// on every audit event.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithCallerID attaches an authenticated caller identity (service account,
// session id) to ctx. It takes precedence over the client IP as the
// per-caller rate limit key.
func WithCallerID(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, callerIDContextKey{}, callerID)
}

// ClientIPFromContext returns the IP set by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// CallerIDFromContext returns the id set by WithCallerID, or "".
func CallerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(callerIDContextKey{}).(string)
	return id
}

// callerKey picks the per-caller limiter key: the caller id when present,
// otherwise the client IP. Prefixes keep the two namespaces apart.
func callerKey(ctx context.Context) string {
	if id := CallerIDFromContext(ctx); id != "" {
		return "id:" + id
	}
	if ip := ClientIPFromContext(ctx); ip != "" {
		return "ip:" + ip
	}
	return ""
}
