// Package store provides SQLite-backed storage for presentation feedback
// observations.
//
// The store is an append-only log with two tables:
//   - sessions: one row per observation run (scenario execution)
//   - feedback_records: the terminal state of each feedback in a session
//
// # Ordering
//
// Sessions are ordered by created_seq, a logical counter assigned on
// insert, never by wall-clock time. Records are ordered by their ordinal
// within the session, then by name.
//
// # Idempotency
//
// Records carry a content digest (canon.DomainRecord). Writing the same
// record twice is a no-op; writing a different record under an existing
// (session, name) is an error.
//
// # Unsigned columns
//
// SQLite integers are signed 64-bit. The presentation sequence counter and
// seconds are stored bit-cast to int64 and converted back on read, so the
// full uint64 range round-trips even though SQL comparisons on huge values
// see negative numbers.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
