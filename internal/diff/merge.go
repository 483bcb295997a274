package diff

import (
	"cmp"
	"iter"
)

// StepKind distinguishes the three merge classifications.
type StepKind int

const (
	// StepOnlyLeft means the element exists only in the left sequence.
	StepOnlyLeft StepKind = iota + 1
	// StepOnlyRight means the element exists only in the right sequence.
	StepOnlyRight
	// StepBoth means both sequences contain an element with the same key.
	StepBoth
)

// String returns a short name for trace output.
func (k StepKind) String() string {
	switch k {
	case StepOnlyLeft:
		return "only_left"
	case StepOnlyRight:
		return "only_right"
	case StepBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Step is one classification emitted by Merge.
//
// Left is set for StepOnlyLeft and StepBoth; Right is set for StepOnlyRight
// and StepBoth. The unset side is the zero value.
type Step[L, R any] struct {
	Kind  StepKind
	Left  L
	Right R
}

// Merge classifies corresponding elements of two key-sorted sequences.
//
// PRECONDITIONS (not verified here - callers with untrusted input use
// Comparator, which checks):
//   - left is ascending-sorted by leftKey, right by rightKey
//   - keys are unique within each side
//
// At each step the current keys lk and rk are compared:
//   - lk < rk: emit OnlyLeft, advance left only
//   - lk > rk: emit OnlyRight, advance right only
//   - lk == rk: emit Both, advance both
//   - one side exhausted: drain the other as one-sided steps
//
// Empty inputs emit nothing. The sequence is lazy and single-pass: consuming
// it twice requires calling Merge again. Complexity O(len(left)+len(right)).
func Merge[L, R any, K cmp.Ordered](
	left []L,
	right []R,
	leftKey func(L) K,
	rightKey func(R) K,
) iter.Seq[Step[L, R]] {
	return func(yield func(Step[L, R]) bool) {
		i, j := 0, 0
		for i < len(left) && j < len(right) {
			lk, rk := leftKey(left[i]), rightKey(right[j])
			switch {
			case lk < rk:
				if !yield(Step[L, R]{Kind: StepOnlyLeft, Left: left[i]}) {
					return
				}
				i++
			case lk > rk:
				if !yield(Step[L, R]{Kind: StepOnlyRight, Right: right[j]}) {
					return
				}
				j++
			default:
				if !yield(Step[L, R]{Kind: StepBoth, Left: left[i], Right: right[j]}) {
					return
				}
				i++
				j++
			}
		}
		for ; i < len(left); i++ {
			if !yield(Step[L, R]{Kind: StepOnlyLeft, Left: left[i]}) {
				return
			}
		}
		for ; j < len(right); j++ {
			if !yield(Step[L, R]{Kind: StepOnlyRight, Right: right[j]}) {
				return
			}
		}
	}
}
