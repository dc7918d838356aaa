// Package rate provides the Redis fixed-window counter primitive used by the
// verification limiters.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional PEXPIRE on first hit. Keys are
// "<prefix>:<action>:<key>" where action is one of the engine's rate actions
// (send, verify) qualified by scope (subject or caller).
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the goVerify module.
package rate
