package diff

import (
	"errors"
	"fmt"
)

// DuplicateKeyError reports a comparator precondition violation: two records
// on the same side of a comparison share an identity key.
//
// Duplicate keys would make merge classification ambiguous, so the comparator
// fails fast instead of silently misclassifying.
type DuplicateKeyError struct {
	// Key is the duplicated identity key.
	Key any

	// Side names the offending list: "old" or "new".
	Side string
}

// Error implements the error interface.
func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("DUPLICATE_KEY: identity key %v appears more than once in the %s record list", e.Key, e.Side)
}

// IsDuplicateKeyError returns true if the error is a duplicate-key
// precondition violation. Uses errors.As to handle wrapped errors.
func IsDuplicateKeyError(err error) bool {
	var de *DuplicateKeyError
	return errors.As(err, &de)
}
