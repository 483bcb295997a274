package diff

import (
	"cmp"
	"slices"
)

// Comparator compares two ordered record lists by identity and content.
//
// Key extracts the identity used to recognize "the same logical record"
// across two lists (typically a primary key). Equal decides whether two
// records with the same identity have the same content; it is a property of
// the record type, not of any particular query.
//
// The lists handed to Changed and EditScript are in display order - the
// order the caller observes, typically the query's ORDER BY. Display order
// may differ from identity-key order; classification key-sorts internal
// copies and never reorders the caller's slices.
type Comparator[R any, K cmp.Ordered] struct {
	Key   func(R) K
	Equal func(R, R) bool
}

// entry is a record annotated with its identity key and display position.
type entry[R any, K cmp.Ordered] struct {
	rec R
	key K
	pos int
}

// match pairs the old and new entries for one shared identity.
type match[R any, K cmp.Ordered] struct {
	old   entry[R, K]
	new   entry[R, K]
	equal bool
}

// classification is the merge result split by step kind.
type classification[R any, K cmp.Ordered] struct {
	removed  []entry[R, K] // old-only, ascending key order
	inserted []entry[R, K] // new-only, ascending key order
	matched  []match[R, K] // shared identities, ascending key order
}

// index annotates records with keys and positions, key-sorted.
// Fails with DuplicateKeyError if two records share a key.
func (c Comparator[R, K]) index(recs []R, side string) ([]entry[R, K], error) {
	out := make([]entry[R, K], len(recs))
	for i, r := range recs {
		out[i] = entry[R, K]{rec: r, key: c.Key(r), pos: i}
	}
	slices.SortStableFunc(out, func(a, b entry[R, K]) int {
		return cmp.Compare(a.key, b.key)
	})
	for i := 1; i < len(out); i++ {
		if out[i].key == out[i-1].key {
			return nil, &DuplicateKeyError{Key: out[i].key, Side: side}
		}
	}
	return out, nil
}

// Validate checks the comparator precondition on a single list: identity
// keys must be unique. Returns a DuplicateKeyError naming the side on
// violation.
func (c Comparator[R, K]) Validate(recs []R, side string) error {
	_, err := c.index(recs, side)
	return err
}

// classify runs Merge over the key-sorted views of old and new.
func (c Comparator[R, K]) classify(old, new []R) (classification[R, K], error) {
	var cls classification[R, K]

	oldIdx, err := c.index(old, "old")
	if err != nil {
		return cls, err
	}
	newIdx, err := c.index(new, "new")
	if err != nil {
		return cls, err
	}

	key := func(e entry[R, K]) K { return e.key }
	for step := range Merge(oldIdx, newIdx, key, key) {
		switch step.Kind {
		case StepOnlyLeft:
			cls.removed = append(cls.removed, step.Left)
		case StepOnlyRight:
			cls.inserted = append(cls.inserted, step.Right)
		case StepBoth:
			cls.matched = append(cls.matched, match[R, K]{
				old:   step.Left,
				new:   step.Right,
				equal: c.Equal(step.Left.rec, step.Right.rec),
			})
		}
	}
	return cls, nil
}

// Changed reports whether the two lists differ at all.
//
// True whenever: list lengths differ, any identity is present on one side
// only, any matched record's content is not Equal, or the identity set is
// the same but the display order differs.
//
// Both sides are validated for key uniqueness before any shortcut, so a
// DuplicateKeyError surfaces even when the lengths already disagree.
func (c Comparator[R, K]) Changed(old, new []R) (bool, error) {
	cls, err := c.classify(old, new)
	if err != nil {
		return false, err
	}
	if len(old) != len(new) {
		return true, nil
	}
	if len(cls.removed) > 0 || len(cls.inserted) > 0 {
		return true, nil
	}
	for _, m := range cls.matched {
		if !m.equal {
			return true, nil
		}
	}

	// Same identities, same content. Changed iff display order differs:
	// matched records listed by old position must carry the same key
	// sequence as listed by new position.
	byOld := slices.Clone(cls.matched)
	slices.SortFunc(byOld, func(a, b match[R, K]) int { return cmp.Compare(a.old.pos, b.old.pos) })
	byNew := slices.Clone(cls.matched)
	slices.SortFunc(byNew, func(a, b match[R, K]) int { return cmp.Compare(a.new.pos, b.new.pos) })
	for i := range byOld {
		if byOld[i].old.key != byNew[i].new.key {
			return true, nil
		}
	}
	return false, nil
}
