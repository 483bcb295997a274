package tracker

import "github.com/leo-lp/rowwatch/internal/diff"

// ChangeObserver is the observer callback set of one registration.
//
// For every notified cycle, WillChange runs with the snapshot being
// replaced and DidChange runs with its replacement; the swap happens
// between the two. On an initial notification (the first snapshot, or a
// registration made after data already changed) the before-snapshot is nil.
//
// DidChangeScript, when set, additionally receives the edit script
// transforming the before records into the after records. Computing the
// script costs more than the coarse comparison, so it is skipped for
// registrations that leave it nil.
//
// All fields are optional; nil callbacks are skipped.
type ChangeObserver[R any] struct {
	WillChange      func(before *Snapshot[R])
	DidChange       func(after *Snapshot[R])
	DidChangeScript func(before, after *Snapshot[R], script []diff.Op[R])
}

// ErrorObserver receives re-fetch failures: the last good snapshot (nil if
// none) and the error, typically a *FetchError.
type ErrorObserver[R any] func(last *Snapshot[R], err error)

// wantsScript reports whether the registration needs an edit script.
func (o ChangeObserver[R]) wantsScript() bool {
	return o.DidChangeScript != nil
}

// empty reports whether no callback is set.
func (o ChangeObserver[R]) empty() bool {
	return o.WillChange == nil && o.DidChange == nil && o.DidChangeScript == nil
}
