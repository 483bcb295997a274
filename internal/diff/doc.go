// Package diff implements ordered result-set differencing.
//
// The package is built around a single load-bearing primitive: Merge, a
// two-pointer merge over two key-sorted sequences that classifies each
// element as left-only, right-only, or matched. Every higher-level diff in
// the system is built on it.
//
// On top of Merge, Comparator provides two views of "what changed" between
// an old and a new ordered record list:
//
//   - Changed: a coarse flag, true iff the lists differ at all (membership,
//     record content, or display order).
//   - EditScript: a minimal ordered sequence of insert/delete/move/update
//     operations transforming the old list into the new one, suitable for
//     incremental list consumers.
//
// CRITICAL: Both inputs to Merge must be ascending-sorted by their key
// functions with keys unique within each side. Comparator key-sorts its
// inputs internally and fails fast with DuplicateKeyError on a duplicate
// identity - it never silently produces a wrong diff.
//
// All functions are pure: no state, no I/O, records are never mutated.
package diff
