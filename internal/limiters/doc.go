// Package limiters provides the verification-specific limiters built on top
// of the internal/rate primitive.
//
// # Limiters
//
//   - [RequestLimiter]: per-subject and per-caller ceilings for each action
//     (send, verify). Issue and Resend share the send budget.
//   - [LockoutTracker]: rolling count of lockouts per (subject, purpose),
//     read by the alternate channel advisor.
//
// Both are nil-safe: methods on a nil receiver allow everything and record
// nothing.
//
// # What this package must NOT do
//
//   - Import goVerify or any sibling internal package except internal/rate.
//   - Decide consequences. The engine maps limiter errors to rejections.
package limiters
