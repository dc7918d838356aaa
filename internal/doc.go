// Package internal holds the private building blocks of goVerify.
//
// # Sub-packages
//
//   - backoff: stepped resend cooldown schedule
//   - flows: pure record state transitions for issue, resend and verify
//   - limiters: per-subject/per-caller request ceilings and lockout history
//   - rate: Redis fixed-window counter primitive
//   - secret: secret generation, shape checks and keyed hashing
//
// # What this package must NOT do
//
//   - Export types that appear in the public goVerify API.
//   - Be imported by any package outside the goVerify module.
package internal
