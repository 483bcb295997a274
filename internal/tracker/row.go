package tracker

import (
	"bytes"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Row is a fetched database row after column-alias remapping: exposed column
// name to value. Values carry the driver's types (int64, float64, string,
// []byte, bool, time.Time, nil).
//
// Row is the record type of the untyped convenience API. Typed callers
// decode a Row into their own record type via Request.Decode.
type Row map[string]any

// Get returns the value of a column, or nil if the column is absent.
func (r Row) Get(col string) any {
	return r[col]
}

// RowKey returns an identity-key extractor over the given column.
//
// The key is a canonical string rendering of the column value, prefixed
// with a type tag so values of different types never collide. Non-negative
// integers are zero-padded so their string order follows the numeric order;
// negative integers sort among themselves in reverse. Classification only
// needs a consistent total order over the key strings, not a numeric one.
//
// PRECONDITION (documented, not verified): the column must be unique within
// a single result set - typically a primary key. Duplicate keys are caught
// by the comparator and reported as DuplicateKeyError.
func RowKey(col string) func(Row) string {
	return func(r Row) string {
		return canonicalKey(r[col])
	}
}

// canonicalKey renders a key value as a type-tagged string.
func canonicalKey(v any) string {
	switch val := v.(type) {
	case nil:
		return "~"
	case int64:
		return fmt.Sprintf("i:%020d", val)
	case int:
		return fmt.Sprintf("i:%020d", val)
	case float64:
		return fmt.Sprintf("f:%v", val)
	case string:
		return "s:" + norm.NFC.String(val)
	case []byte:
		return "b:" + string(val)
	case bool:
		if val {
			return "t:1"
		}
		return "t:0"
	default:
		return fmt.Sprintf("x:%v", val)
	}
}

// EqualColumns returns a content-equality predicate over an explicit set of
// tracked columns. With no columns given, every column present in either
// row is compared.
//
// The tracked set is caller-declared rather than inferred from the query's
// projection: equality is always evaluated against the currently configured
// column set at comparison time, so narrowing or widening the set changes
// what counts as "equal" going forward.
func EqualColumns(cols ...string) func(a, b Row) bool {
	if len(cols) == 0 {
		return func(a, b Row) bool {
			if len(a) != len(b) {
				return false
			}
			for col, av := range a {
				bv, ok := b[col]
				if !ok || !valueEqual(av, bv) {
					return false
				}
			}
			return true
		}
	}

	tracked := make([]string, len(cols))
	copy(tracked, cols)
	return func(a, b Row) bool {
		for _, col := range tracked {
			if !valueEqual(a[col], b[col]) {
				return false
			}
		}
		return true
	}
}

// valueEqual compares two driver values.
//
// Strings are NFC-normalized before comparison so byte-level Unicode
// representation differences do not register as content changes. []byte
// compares as bytes. Integer widths unify on int64.
func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return false
		}
		return norm.NFC.String(av) == norm.NFC.String(bv)
	case []byte:
		bv, ok := b.([]byte)
		if !ok {
			return false
		}
		return bytes.Equal(av, bv)
	case int64:
		return isInt(b) && intValue(b) == av
	case int:
		return isInt(b) && intValue(b) == int64(av)
	default:
		return a == b
	}
}

func isInt(v any) bool {
	switch v.(type) {
	case int, int64:
		return true
	default:
		return false
	}
}

func intValue(v any) int64 {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int64:
		return val
	default:
		return 0
	}
}
