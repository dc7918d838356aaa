// Package middleware adapts HTTP requests into the request context the
// goVerify engine reads.
//
//   - [ClientIP] records the requesting address for per-caller limits and audit.
//   - [RequireCaller] verifies a bearer caller token and records its subject
//     as the caller id, which takes precedence over the IP as the limiter key.
//
// # What this package must NOT do
//
//   - Call the Engine. Handlers do that.
//   - Make rate-limit decisions.
package middleware
