// Package audit implements async event dispatching for verification
// lifecycle transitions.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, logrus,
//     Postgres, no-op, fan-out).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, subject, purpose,
//     caller, IP and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the Engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goVerify or any internal package.
//   - Accept secrets or secret hashes in metadata.
package audit
