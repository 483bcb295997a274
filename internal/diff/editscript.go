package diff

import (
	"cmp"
	"fmt"
	"slices"
)

// OpKind distinguishes edit operations.
type OpKind int

const (
	// OpInsert adds a record at Index in the new list.
	OpInsert OpKind = iota + 1
	// OpDelete removes the record at Index in the old list.
	OpDelete
	// OpMove relocates a record from From (old list) to To (new list).
	OpMove
	// OpUpdate replaces the record content at Index in the new list.
	OpUpdate
)

// String returns a short name for trace output.
func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	case OpMove:
		return "move"
	case OpUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Op is one edit operation. Derived state - never stored.
//
// Index coordinates: Delete indexes into the old list; Insert and Update
// index into the new list; Move carries From in old coordinates and To in
// new coordinates. See Apply for the order in which consumers must apply
// operations against a mutating list.
type Op[R any] struct {
	Kind   OpKind
	Index  int // Insert, Delete, Update
	From   int // Move only
	To     int // Move only
	Record R
}

// String renders the operation for logs and golden traces.
func (o Op[R]) String() string {
	switch o.Kind {
	case OpMove:
		return fmt.Sprintf("move %d -> %d (%v)", o.From, o.To, o.Record)
	default:
		return fmt.Sprintf("%s at %d (%v)", o.Kind, o.Index, o.Record)
	}
}

// EditScript computes the minimal ordered operation sequence transforming
// old into new.
//
// Move minimization: matched records that keep their relative order among
// themselves are never reported as moved, even if their absolute index
// shifted due to insertions or deletions elsewhere. This is computed as a
// longest-increasing-subsequence over the matched records' new positions
// taken in old display order. A record whose content changed AND whose
// position changed carries both a Move and an Update.
//
// Emission order, which is also the documented apply order (see Apply):
//  1. Deletes, descending old index
//  2. Inserts, ascending new index
//  3. Moves, ascending target index
//  4. Updates, ascending new index
func (c Comparator[R, K]) EditScript(old, new []R) ([]Op[R], error) {
	cls, err := c.classify(old, new)
	if err != nil {
		return nil, err
	}

	var ops []Op[R]

	// Deletes: descending old index so earlier removals do not shift later ones.
	deletes := slices.Clone(cls.removed)
	slices.SortFunc(deletes, func(a, b entry[R, K]) int { return cmp.Compare(b.pos, a.pos) })
	for _, e := range deletes {
		ops = append(ops, Op[R]{Kind: OpDelete, Index: e.pos, Record: e.rec})
	}

	// Inserts: ascending new index.
	inserts := slices.Clone(cls.inserted)
	slices.SortFunc(inserts, func(a, b entry[R, K]) int { return cmp.Compare(a.pos, b.pos) })
	for _, e := range inserts {
		ops = append(ops, Op[R]{Kind: OpInsert, Index: e.pos, Record: e.rec})
	}

	// Moves: matched pairs in old display order; the stable subset is the
	// longest increasing subsequence of their new positions.
	matched := slices.Clone(cls.matched)
	slices.SortFunc(matched, func(a, b match[R, K]) int { return cmp.Compare(a.old.pos, b.old.pos) })
	newPos := make([]int, len(matched))
	for i, m := range matched {
		newPos[i] = m.new.pos
	}
	stable := longestIncreasing(newPos)

	var moves []Op[R]
	for i, m := range matched {
		if !stable[i] {
			moves = append(moves, Op[R]{Kind: OpMove, From: m.old.pos, To: m.new.pos, Record: m.new.rec})
		}
	}
	slices.SortFunc(moves, func(a, b Op[R]) int { return cmp.Compare(a.To, b.To) })
	ops = append(ops, moves...)

	// Updates: ascending new index.
	var updates []Op[R]
	for _, m := range cls.matched {
		if !m.equal {
			updates = append(updates, Op[R]{Kind: OpUpdate, Index: m.new.pos, Record: m.new.rec})
		}
	}
	slices.SortFunc(updates, func(a, b Op[R]) int { return cmp.Compare(a.Index, b.Index) })
	ops = append(ops, updates...)

	return ops, nil
}

// Apply transforms old by the documented apply order and returns the result.
// Applying the script EditScript(old, new) yields a list observationally
// equal to new.
//
// Apply order against a mutating list:
//  1. Removals: every Delete index and every Move source, descending
//  2. Insertions: every Insert record at its index and every Move record at
//     its target, ascending
//  3. Updates: replace content at the (now final) index
//
// Moves participate in both the removal and insertion phases. After phase 1
// the surviving records keep their relative order, which by the move
// minimization is also their relative order in new; phase 2 then inserts
// every remaining record at its exact final index.
func Apply[R any](old []R, script []Op[R]) []R {
	type insertion struct {
		index int
		rec   R
	}
	var removals []int
	var insertions []insertion

	for _, op := range script {
		switch op.Kind {
		case OpDelete:
			removals = append(removals, op.Index)
		case OpInsert:
			insertions = append(insertions, insertion{index: op.Index, rec: op.Record})
		case OpMove:
			removals = append(removals, op.From)
			insertions = append(insertions, insertion{index: op.To, rec: op.Record})
		}
	}

	out := slices.Clone(old)

	slices.SortFunc(removals, func(a, b int) int { return cmp.Compare(b, a) })
	for _, idx := range removals {
		out = slices.Delete(out, idx, idx+1)
	}

	slices.SortFunc(insertions, func(a, b insertion) int { return cmp.Compare(a.index, b.index) })
	for _, ins := range insertions {
		out = slices.Insert(out, ins.index, ins.rec)
	}

	for _, op := range script {
		if op.Kind == OpUpdate {
			out[op.Index] = op.Record
		}
	}
	return out
}

// longestIncreasing marks one longest strictly increasing subsequence of
// values. Returns a parallel slice where stable[i] is true if values[i] is
// part of the chosen subsequence. O(n log n) patience algorithm.
//
// Values are distinct (they are display positions), so strict and
// non-strict variants coincide.
func longestIncreasing(values []int) []bool {
	stable := make([]bool, len(values))
	if len(values) == 0 {
		return stable
	}

	// tails[l] is the index of the smallest tail value of an increasing
	// subsequence of length l+1. parent links reconstruct the chain.
	tails := make([]int, 0, len(values))
	parent := make([]int, len(values))
	for i := range parent {
		parent[i] = -1
	}

	for i, v := range values {
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if values[tails[mid]] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			parent[i] = tails[lo-1]
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}

	for i := tails[len(tails)-1]; i >= 0; i = parent[i] {
		stable[i] = true
	}
	return stable
}
