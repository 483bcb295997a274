// Package tracker implements the reactive result-set tracker.
//
// A Tracker holds the last-known result of a query as an immutable Snapshot,
// subscribes to the store's commit-notification feed, and on every relevant
// commit re-executes the query, diffs the old and new result sets with
// internal/diff, and - only if a difference exists - notifies registered
// observers.
//
// ARCHITECTURE:
//
// Single-writer notification loop:
// All re-fetching, comparison, snapshot swapping, and observer notification
// happen in one goroutine per Tracker. Commit notifications are enqueued to
// a FIFO queue and processed one at a time. This ensures:
//   - Notifications for successive commits are delivered in commit order
//   - willChange/didChange pairs of one cycle never interleave with another
//   - Only one fetch is in flight per Tracker
//
// Processing flow:
//  1. A committed write transaction notifies the feed with its touched tables
//  2. The relevance filter drops commits that cannot affect the request
//     (a performance optimization - false positives are harmless, the
//     comparator's no-op detection keeps them from reaching observers)
//  3. The loop re-fetches outside the writer's critical section
//  4. The comparator classifies the old and new result sets
//  5. On a difference: willChange(old) -> snapshot swap -> didChange(new)
//  6. On a fetch failure: the snapshot is left unchanged and exactly one
//     error notification is delivered to the error observers
//
// Request substitution is processed through the same queue as a synthetic
// commit, so a pure request change still produces a before/after cycle when
// the result differs. Each cycle captures the request generation at fetch
// start and discards stale results (last-request-wins).
package tracker
