// Package testutil provides deterministic test doubles for tracker tests:
// recording observers that capture notification cycles and block until they
// arrive, so tests can assert on asynchronous delivery without sleeps.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/leo-lp/rowwatch/internal/diff"
	"github.com/leo-lp/rowwatch/internal/tracker"
)

// Cycle is one recorded notification cycle.
type Cycle[R any] struct {
	// WillBefore is the snapshot passed to WillChange.
	WillBefore *tracker.Snapshot[R]
	// Before and After are the snapshots passed to DidChangeScript.
	Before *tracker.Snapshot[R]
	After  *tracker.Snapshot[R]
	// Script is the edit script of the cycle.
	Script []diff.Op[R]
}

// RecordingObserver captures every notification cycle delivered to it.
//
// Thread-safety: all methods are safe for concurrent use; cycles arrive on
// the tracker's loop goroutine while tests read from their own.
type RecordingObserver[R any] struct {
	mu         sync.Mutex
	willBefore *tracker.Snapshot[R]
	cycles     []Cycle[R]
	ch         chan Cycle[R]
}

// NewRecordingObserver creates an observer with room for 32 buffered
// cycles - more than any test scenario produces.
func NewRecordingObserver[R any]() *RecordingObserver[R] {
	return &RecordingObserver[R]{
		ch: make(chan Cycle[R], 32),
	}
}

// Observer returns the callback set to register with TrackChanges.
// It uses all three callbacks, so edit scripts are computed.
func (o *RecordingObserver[R]) Observer() tracker.ChangeObserver[R] {
	return tracker.ChangeObserver[R]{
		WillChange: func(before *tracker.Snapshot[R]) {
			o.mu.Lock()
			o.willBefore = before
			o.mu.Unlock()
		},
		DidChangeScript: func(before, after *tracker.Snapshot[R], script []diff.Op[R]) {
			o.mu.Lock()
			c := Cycle[R]{
				WillBefore: o.willBefore,
				Before:     before,
				After:      after,
				Script:     script,
			}
			o.cycles = append(o.cycles, c)
			o.mu.Unlock()
			o.ch <- c
		},
	}
}

// Wait blocks until the next cycle arrives or the timeout fails the test.
func (o *RecordingObserver[R]) Wait(t *testing.T) Cycle[R] {
	t.Helper()
	select {
	case c := <-o.ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a notification cycle")
		return Cycle[R]{}
	}
}

// ExpectNone fails the test if a cycle arrives within the grace window.
// Used to assert that no-op writes stay silent.
func (o *RecordingObserver[R]) ExpectNone(t *testing.T) {
	t.Helper()
	select {
	case c := <-o.ch:
		t.Fatalf("unexpected notification cycle: before=%d after=%d ops=%d",
			c.Before.Len(), c.After.Len(), len(c.Script))
	case <-time.After(100 * time.Millisecond):
	}
}

// Cycles returns a copy of all recorded cycles.
func (o *RecordingObserver[R]) Cycles() []Cycle[R] {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Cycle[R], len(o.cycles))
	copy(out, o.cycles)
	return out
}

// RecordedError is one captured error notification.
type RecordedError[R any] struct {
	Last *tracker.Snapshot[R]
	Err  error
}

// RecordingErrors captures error-observer deliveries.
type RecordingErrors[R any] struct {
	ch chan RecordedError[R]
}

// NewRecordingErrors creates an error recorder.
func NewRecordingErrors[R any]() *RecordingErrors[R] {
	return &RecordingErrors[R]{
		ch: make(chan RecordedError[R], 32),
	}
}

// Handler returns the callback to register with TrackErrors.
func (e *RecordingErrors[R]) Handler() tracker.ErrorObserver[R] {
	return func(last *tracker.Snapshot[R], err error) {
		e.ch <- RecordedError[R]{Last: last, Err: err}
	}
}

// Wait blocks until the next error arrives or the timeout fails the test.
func (e *RecordingErrors[R]) Wait(t *testing.T) RecordedError[R] {
	t.Helper()
	select {
	case rec := <-e.ch:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an error notification")
		return RecordedError[R]{}
	}
}
