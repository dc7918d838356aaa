// Package flows holds the pure state transitions behind every Engine
// operation.
//
// Functions here take a record snapshot and the current time and return the
// record that should be written next, if any. They never touch a store,
// limiter or clock; the Engine owns I/O, retries and compare-and-swap.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goVerify (to avoid import cycles).
//   - See plaintext secrets. Comparison is delegated to a caller callback.
package flows
