// Package credstore persists verification records behind a compare-and-swap
// interface.
//
// # Implementations
//
//   - [MemoryStore]: mutex-guarded map, single process only.
//   - [RedisStore]: versioned binary records; SET NX for inserts, WATCH/MULTI
//     for compare-and-swap.
//   - [PostgresStore]: row_version optimistic locking with full history and
//     a retention purge.
//
// # Concurrency
//
// Every mutation is conditional on the Version the caller read. A losing
// writer receives [ErrConflict] and is expected to re-read and re-decide;
// the store itself never merges writes.
//
// # What this package must NOT do
//
//   - Decide lifecycle transitions (that is the engine's job).
//   - Log records with their secret hash.
package credstore
