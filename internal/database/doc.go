// Package database provides the SurrealDB access layer for Canvas.
//
// The Database interface abstracts SurrealDB operations so repositories can be
// exercised against a fake in tests.
//
//   - Query: returns the per-statement result envelopes
//   - QueryOne: returns the first record of the first statement
//   - Execute: runs a mutation and discards the result
//
// # Atomic writes
//
// Multi-statement writes that must succeed together go through AtomicBatch,
// which wraps the statements in BEGIN TRANSACTION / COMMIT TRANSACTION and
// sends them in a single request. See transaction.go.
//
// # Error Handling
//
//   - ErrNotFound: record does not exist
//   - ErrDuplicate: unique index violation
//   - ErrConnection: connection or authentication failure
//   - ErrQuery: statement failed
//
//	if errors.Is(err, database.ErrNotFound) {
//	    // Handle missing record
//	}
package database
