package tracker

import "sync"

// eventKind distinguishes the events the notification loop processes.
type eventKind int

const (
	// eventCommit is a committed write transaction from the feed.
	eventCommit eventKind = iota + 1
	// eventRequestSwap is a synthetic commit enqueued by SetRequest.
	eventRequestSwap
	// eventObserverSync is a one-shot initial notification for observers
	// registered after data already changed.
	eventObserverSync
)

// commitEvent is one unit of work for the notification loop.
type commitEvent struct {
	kind eventKind

	// tables is the touched-table set of a commit. nil means unknown
	// (e.g., a raw statement without table hints) and is treated as
	// touching everything. Only meaningful for eventCommit.
	tables map[string]struct{}
}

// commitQueue is a thread-safe FIFO queue of commit events.
//
// The queue is unbounded so the feed callback never blocks the committing
// writer. Thread-safety covers external enqueuing (the store's post-commit
// hook, SetRequest, TrackChanges) while the Tracker's loop dequeues.
//
// A buffered size-1 signal channel coalesces wakeups and enables
// context-aware waiting in the loop.
type commitQueue struct {
	mu     sync.Mutex
	events []commitEvent
	closed bool
	signal chan struct{}
}

func newCommitQueue() *commitQueue {
	return &commitQueue{
		events: make([]commitEvent, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe. Returns false if the queue is closed.
func (q *commitQueue) Enqueue(e commitEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (commitEvent{}, false) if the queue is empty.
func (q *commitQueue) TryDequeue() (commitEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return commitEvent{}, false
	}

	e := q.events[0]

	// Nil out the slot so the table set can be collected while the
	// underlying array lives on.
	q.events[0] = commitEvent{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel closes when the queue closes, waking all waiters.
func (q *commitQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *commitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *commitQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued.
func (q *commitQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
