package tracker

import "slices"

// Snapshot is the immutable captured result of a tracked request at one
// point in time: the fetched records in display order, the optional
// side-computed value, and the request that produced them.
//
// INVARIANT: records are ordered exactly as the request's fetch ordered
// them, and no two records share an identity key. The tracker owns the
// snapshot exclusively; observers receive read-only views.
type Snapshot[R any] struct {
	records   []R
	sideValue any
	request   *Request[R]
	seq       int64
}

func newSnapshot[R any](records []R, sideValue any, request *Request[R], seq int64) *Snapshot[R] {
	return &Snapshot[R]{
		records:   records,
		sideValue: sideValue,
		request:   request,
		seq:       seq,
	}
}

// Records returns a copy of the fetched records in display order.
func (s *Snapshot[R]) Records() []R {
	if s == nil {
		return nil
	}
	return slices.Clone(s.records)
}

// Len returns the record count. Safe on a nil snapshot (the "no prior
// observation" before-state of an initial notification).
func (s *Snapshot[R]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// SideValue returns the auxiliary value computed by the request's
// SideFetch, or nil.
func (s *Snapshot[R]) SideValue() any {
	if s == nil {
		return nil
	}
	return s.sideValue
}

// Request returns the request that produced this snapshot.
func (s *Snapshot[R]) Request() *Request[R] {
	if s == nil {
		return nil
	}
	return s.request
}

// Seq returns the notification-cycle sequence number that produced this
// snapshot. Silent swaps (a re-fetch whose result did not differ) keep the
// previous cycle's number.
func (s *Snapshot[R]) Seq() int64 {
	if s == nil {
		return 0
	}
	return s.seq
}
