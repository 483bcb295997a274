// Package store is the database collaborator: SQLite access plus the
// commit-notification hub the tracker subscribes to.
//
// The store owns nothing about queries or records - it executes what it is
// given. Its one piece of added machinery is the hub: every write that goes
// through Write or Exec notifies subscribers after a successful commit with
// the set of touched tables. Rollbacks never notify. Callbacks run
// synchronously after Commit returns, outside the transaction, in
// subscription order; subscribers that must not block the writer hand the
// event off to their own queue (the tracker does exactly that).
//
// Touched-table sets are best effort: Write takes them from the caller,
// Exec derives them from the statement text via sqlscan. A nil set means
// "unknown - treat as touching everything". False positives cause a
// harmless extra re-fetch downstream; false negatives would lose changes,
// so unknown always errs wide.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//   - single connection: SQLite supports one writer at a time
package store
