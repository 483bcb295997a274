package store

import (
	"sync"

	"github.com/google/uuid"
)

// HandleGenerator generates unique subscription handles.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type HandleGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 handles.
//
// UUIDv7 embeds a timestamp in the most significant bits, making handles
// sortable by subscription time, which is helpful when debugging who
// subscribed when.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined handles for deterministic tests.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu      sync.Mutex
	handles []string
	idx     int
}

// NewFixedGenerator creates a generator that returns handles in order.
// Generate panics once all handles are consumed - a fail-fast signal that
// a test subscribed more often than it declared.
func NewFixedGenerator(handles ...string) *FixedGenerator {
	return &FixedGenerator{handles: handles}
}

// Generate returns the next predetermined handle.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.handles) {
		panic("FixedGenerator: all handles exhausted")
	}
	h := g.handles[g.idx]
	g.idx++
	return h
}

// hub fans committed-write notifications out to subscribers.
//
// Callbacks are invoked synchronously in subscription order. The hub never
// calls back while holding its lock, so a callback may subscribe or
// unsubscribe without deadlocking.
type hub struct {
	mu    sync.Mutex
	gen   HandleGenerator
	subs  map[string]func(tables map[string]struct{})
	order []string
}

func newHub(gen HandleGenerator) *hub {
	return &hub{
		gen:  gen,
		subs: make(map[string]func(tables map[string]struct{})),
	}
}

// Subscribe registers a post-commit callback and returns its handle.
// Satisfies the tracker's CommitFeed interface together with Unsubscribe.
func (s *Store) Subscribe(fn func(tables map[string]struct{})) string {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	handle := h.gen.Generate()
	h.subs[handle] = fn
	h.order = append(h.order, handle)
	return handle
}

// Unsubscribe removes a subscription. Unknown handles are ignored.
func (s *Store) Unsubscribe(handle string) {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[handle]; !ok {
		return
	}
	delete(h.subs, handle)
	for i, existing := range h.order {
		if existing == handle {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
// Useful for verifying teardown in tests.
func (s *Store) SubscriberCount() int {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return len(s.hub.subs)
}

// notify invokes every subscriber with the touched-table set.
// A nil set means the touched tables are unknown.
func (h *hub) notify(tables map[string]struct{}) {
	h.mu.Lock()
	callbacks := make([]func(map[string]struct{}), 0, len(h.order))
	for _, handle := range h.order {
		callbacks = append(callbacks, h.subs[handle])
	}
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn(tables)
	}
}
