// Package goVerify manages the lifecycle of short-lived verification secrets:
// phone and email one-time codes, password reset tokens and anti-forgery
// tokens.
//
// An [Engine] issues a secret for a (subject, purpose) pair, hands the
// plaintext to a notifier (or to the caller for the direct channel), and
// keeps only an HMAC digest in a [credstore.Store]. Verify redeems a secret
// at most once, counts wrong attempts against a per-purpose ceiling and
// locks the record when the ceiling is reached. Resend replaces the secret on
// a stepped cooldown schedule until the resend budget is spent.
//
// Engine methods are safe to call from multiple goroutines and from multiple
// processes sharing one store: every state change is a compare-and-swap on
// the stored record version.
//
// # Architecture boundaries
//
// goVerify is the public surface. It exposes [Engine], [Builder], [Config]
// and the result types. Subject normalization lives in identifier/, storage
// in credstore/, delivery in notify/ and audit sinks in audit/. Pure state
// transitions, secret hashing, backoff and Redis limiters live under
// internal/.
//
// # What this package must NOT do
//
//   - Log, return or audit a plaintext secret or its digest.
//   - Hold per-subject state in process memory.
//   - Retry a backend call more than once per operation step.
package goVerify
