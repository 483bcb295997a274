package tracker

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leo-lp/rowwatch/internal/diff"
)

// State is the tracker lifecycle state.
type State int

const (
	// StateIdle means no fetch has been performed; the snapshot is absent.
	StateIdle State = iota + 1
	// StateTracking means a snapshot is present and the tracker is
	// subscribed to commit notifications.
	StateTracking
	// StateStopped is terminal: the tracker deregistered from the feed.
	StateStopped
)

// String returns a short name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// config holds construction options.
type config struct {
	notify func(func())
}

// Option configures a Tracker at construction.
type Option func(*config)

// WithNotifier designates the execution context for observer callbacks.
// The default runs callbacks inline on the tracker's loop goroutine. An
// application can hand delivery off to its own context (e.g., a main-loop
// dispatcher); the executor must preserve submission order, or cycle
// callbacks may interleave.
func WithNotifier(notify func(func())) Option {
	return func(c *config) {
		c.notify = notify
	}
}

// Tracker owns the current Snapshot of one request, re-fetches on relevant
// commits, and notifies observers of differences. See the package
// documentation for the processing model.
//
// Thread-safety model:
//   - Start: call once, from any goroutine
//   - SetRequest, TrackChanges, Track, TrackErrors, CurrentSnapshot,
//     State, Stop: safe from any goroutine
//   - snapshot swaps and observer callbacks happen only in the loop
//     goroutine
//
// Key and Equal are properties of the record type, not of the request:
// swapping the request changes what gets fetched, while equality is always
// evaluated against the records the current request produces.
type Tracker[R any, K cmp.Ordered] struct {
	db         Querier
	feed       CommitFeed
	comparator diff.Comparator[R, K]

	clock  *Clock
	queue  *commitQueue
	notify func(func())

	mu       sync.Mutex
	state    State
	req      *Request[R]
	reqGen   int64
	snapshot *Snapshot[R]
	observer ChangeObserver[R]
	onError  ErrorObserver[R]
	handle   string

	done chan struct{}
}

// New creates a Tracker bound to one database handle, one commit feed, and
// one initial request. The tracker is Idle until Start.
func New[R any, K cmp.Ordered](
	db Querier,
	feed CommitFeed,
	req *Request[R],
	comparator diff.Comparator[R, K],
	opts ...Option,
) *Tracker[R, K] {
	cfg := config{
		notify: func(f func()) { f() },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Tracker[R, K]{
		db:         db,
		feed:       feed,
		comparator: comparator,
		clock:      NewClock(),
		queue:      newCommitQueue(),
		notify:     cfg.notify,
		state:      StateIdle,
		req:        req,
		done:       make(chan struct{}),
	}
}

// Start performs the first fetch synchronously, subscribes to the commit
// feed, and launches the notification loop. Idle -> Tracking.
//
// The first fetch propagates a *FetchError to the caller - no observers
// have anything to be notified about yet. If observers were registered
// before Start, the first snapshot is reported as an initial didChange with
// a nil before-snapshot.
//
// The loop runs until ctx is cancelled or Stop is called.
func (t *Tracker[R, K]) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateIdle {
		state := t.state
		t.mu.Unlock()
		return fmt.Errorf("cannot start tracker in state %s", state)
	}
	req := t.req
	t.mu.Unlock()

	if req == nil || req.SQL == "" {
		return fmt.Errorf("tracker has no request")
	}

	recs, side, err := req.fetch(ctx, t.db)
	if err != nil {
		return &FetchError{Query: req.SQL, Err: err}
	}
	if err := t.comparator.Validate(recs, "new"); err != nil {
		return err
	}

	snap := newSnapshot(recs, side, req, t.clock.Next())

	t.mu.Lock()
	t.snapshot = snap
	t.state = StateTracking
	obs := t.observer
	t.mu.Unlock()

	// The initial notification goes through the queue ahead of any commit
	// event, so its callbacks run on the loop goroutine, serialized with
	// commit cycles.
	if !obs.empty() {
		t.queue.Enqueue(commitEvent{kind: eventObserverSync})
	}

	handle := t.feed.Subscribe(func(tables map[string]struct{}) {
		t.queue.Enqueue(commitEvent{kind: eventCommit, tables: tables})
	})
	t.mu.Lock()
	t.handle = handle
	t.mu.Unlock()

	go t.run(ctx)

	slog.Debug("tracker started",
		"query", req.SQL,
		"records", len(recs),
		"tables", req.Tables,
	)
	return nil
}

// run is the single-writer notification loop. All re-fetching, comparison,
// snapshot swapping, and observer notification happen here.
func (t *Tracker[R, K]) run(ctx context.Context) {
	defer close(t.done)

	for {
		ev, ok := t.queue.TryDequeue()
		if ok {
			t.processEvent(ctx, ev)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Debug("tracker loop stopping: context cancelled")
			t.queue.Close()
			return

		case <-t.queue.Wait():
			// Signal received, or the signal channel closed on queue
			// close. Drain whatever is left, then exit once empty.
			if t.queue.Closed() && t.queue.Len() == 0 {
				slog.Debug("tracker loop stopping: queue closed")
				return
			}
		}
	}
}

// processEvent handles one queued event: a commit, a request swap, or an
// observer sync. Called only from the loop goroutine.
func (t *Tracker[R, K]) processEvent(ctx context.Context, ev commitEvent) {
	t.mu.Lock()
	if t.state != StateTracking {
		t.mu.Unlock()
		return
	}
	req := t.req
	gen := t.reqGen
	old := t.snapshot
	obs := t.observer
	t.mu.Unlock()

	if ev.kind == eventObserverSync {
		// One-shot synthetic notification: before = no prior observation,
		// after = current state, even though no new write occurred.
		if old != nil && !obs.empty() {
			t.deliverInitial(obs, old)
		}
		return
	}

	// Relevance filter: a commit is relevant only if its touched tables
	// overlap the request's dependency set. Purely an optimization - a
	// spurious re-fetch is caught by the comparator's no-op detection.
	if ev.kind == eventCommit && !req.dependsOn(ev.tables) {
		slog.Debug("commit not relevant, skipping re-fetch", "query", req.SQL)
		return
	}

	recs, side, err := req.fetch(ctx, t.db)
	if err != nil {
		// The snapshot stays at its last good value; exactly one error
		// notification per failed cycle, and tracking continues.
		t.deliverError(old, &FetchError{Query: req.SQL, Err: err})
		return
	}

	t.mu.Lock()
	if t.reqGen != gen {
		// A newer SetRequest landed while this fetch was in flight. Its
		// own queued cycle supersedes this result: last-request-wins.
		t.mu.Unlock()
		slog.Debug("stale fetch discarded", "query", req.SQL)
		return
	}
	old = t.snapshot
	t.mu.Unlock()

	changed, err := t.comparator.Changed(old.records, recs)
	if err != nil {
		t.deliverError(old, err)
		return
	}

	if !changed {
		// Fresh data, same content: swap silently, keep the cycle number.
		t.swapSnapshot(gen, newSnapshot(recs, side, req, old.seq))
		slog.Debug("re-fetch produced no difference", "query", req.SQL)
		return
	}

	var script []diff.Op[R]
	if obs.wantsScript() {
		script, err = t.comparator.EditScript(old.records, recs)
		if err != nil {
			t.deliverError(old, err)
			return
		}
	}

	newSnap := newSnapshot(recs, side, req, t.clock.Next())

	// Observers see the OLD snapshot during willChange and the NEW one
	// during didChange; the swap happens between the two.
	if obs.WillChange != nil {
		t.notify(func() { obs.WillChange(old) })
	}
	t.swapSnapshot(gen, newSnap)
	if obs.DidChange != nil || obs.DidChangeScript != nil {
		t.notify(func() {
			if obs.DidChange != nil {
				obs.DidChange(newSnap)
			}
			if obs.DidChangeScript != nil {
				obs.DidChangeScript(old, newSnap, script)
			}
		})
	}

	slog.Debug("change notified",
		"seq", newSnap.seq,
		"before", old.Len(),
		"after", newSnap.Len(),
		"ops", len(script),
	)
}

// swapSnapshot installs a new snapshot unless the request generation moved.
func (t *Tracker[R, K]) swapSnapshot(gen int64, snap *Snapshot[R]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reqGen == gen && t.state == StateTracking {
		t.snapshot = snap
	}
}

// deliverInitial notifies an observer that has never seen a snapshot:
// before = nil, after = snap, script = insert-everything.
func (t *Tracker[R, K]) deliverInitial(obs ChangeObserver[R], snap *Snapshot[R]) {
	var script []diff.Op[R]
	if obs.wantsScript() {
		var err error
		script, err = t.comparator.EditScript(nil, snap.records)
		if err != nil {
			t.deliverError(snap, err)
			return
		}
	}

	if obs.WillChange != nil {
		t.notify(func() { obs.WillChange(nil) })
	}
	if obs.DidChange != nil || obs.DidChangeScript != nil {
		t.notify(func() {
			if obs.DidChange != nil {
				obs.DidChange(snap)
			}
			if obs.DidChangeScript != nil {
				obs.DidChangeScript(nil, snap, script)
			}
		})
	}
}

// deliverError routes a cycle failure to the error observer. Failures never
// propagate into the writer's call stack.
func (t *Tracker[R, K]) deliverError(last *Snapshot[R], err error) {
	t.mu.Lock()
	handler := t.onError
	t.mu.Unlock()

	if handler == nil {
		slog.Warn("re-fetch failed with no error observer registered", "error", err)
		return
	}
	t.notify(func() { handler(last, err) })
}

// SetRequest atomically swaps the active request and, when tracking,
// triggers a re-fetch-and-compare cycle against the current snapshot - a
// pure request change still produces a before/after notification cycle if
// the result differs.
//
// A re-fetch failure caused by the new request surfaces via the error
// observer, not as an error from this call.
func (t *Tracker[R, K]) SetRequest(req *Request[R]) {
	t.mu.Lock()
	t.req = req
	t.reqGen++
	tracking := t.state == StateTracking
	t.mu.Unlock()

	if tracking {
		t.queue.Enqueue(commitEvent{kind: eventRequestSwap})
	}
}

// TrackChanges registers the observer callback set, replacing any previous
// registration - registrations do not accumulate.
//
// If data was already fetched, the new observer receives a synthetic
// one-shot notification reflecting the delta between "no prior observation"
// and the current state: before = nil, after = current snapshot.
func (t *Tracker[R, K]) TrackChanges(obs ChangeObserver[R]) {
	t.mu.Lock()
	replaced := !t.observer.empty()
	t.observer = obs
	syncNeeded := t.state == StateTracking && t.snapshot != nil && !obs.empty()
	t.mu.Unlock()

	if replaced {
		slog.Debug("observer registration replaced")
	}
	if syncNeeded {
		t.queue.Enqueue(commitEvent{kind: eventObserverSync})
	}
}

// Track is sugar over the two-callback contract for consumers that only
// care about the after-state.
func (t *Tracker[R, K]) Track(didChange func(after *Snapshot[R])) {
	t.TrackChanges(ChangeObserver[R]{DidChange: didChange})
}

// TrackErrors registers the error observer, replacing any previous one.
// Re-fetch failures are delivered as (lastGoodSnapshotOrNil, error).
func (t *Tracker[R, K]) TrackErrors(handler ErrorObserver[R]) {
	t.mu.Lock()
	t.onError = handler
	t.mu.Unlock()
}

// CurrentSnapshot returns the last good snapshot, or nil before the first
// fetch.
func (t *Tracker[R, K]) CurrentSnapshot() *Snapshot[R] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot
}

// State returns the lifecycle state.
func (t *Tracker[R, K]) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Stop deregisters from the commit feed and terminates the loop. Terminal;
// pending queued events are drained without processing (the state check in
// processEvent drops them). Blocks until the loop exits.
func (t *Tracker[R, K]) Stop() {
	t.mu.Lock()
	if t.state == StateStopped {
		t.mu.Unlock()
		return
	}
	wasTracking := t.state == StateTracking
	t.state = StateStopped
	handle := t.handle
	t.mu.Unlock()

	if handle != "" {
		t.feed.Unsubscribe(handle)
	}
	t.queue.Close()
	if wasTracking {
		<-t.done
	}
	slog.Debug("tracker stopped")
}
