package tracker

import "sync/atomic"

// Clock is a monotonic logical clock for notification-cycle ordering.
//
// Every notified cycle is stamped with a strictly increasing seq number.
// Observers and traces use it to reason about delivery order without
// wall-clock race conditions.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations),
// though the Tracker's single-writer loop means only one goroutine
// typically calls Next().
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
// Each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
