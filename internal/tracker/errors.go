package tracker

import (
	"errors"
	"fmt"
)

// FetchError reports a failed query execution: bad SQL, a dropped table, a
// type mismatch, or any other error surfaced by the database engine.
//
// The first fetch (Start) returns it synchronously to the caller. Re-fetches
// triggered by commits never throw into the writer's call stack - they are
// delivered to the error observers instead, carrying the failing query text
// and the engine's underlying message.
type FetchError struct {
	// Query is the SQL text of the failing request.
	Query string

	// Err is the underlying engine error.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("FETCH_FAILED: %v (query=%q)", e.Err, e.Query)
}

// Unwrap exposes the underlying engine error for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError returns true if the error is a failed query execution.
// Uses errors.As to handle wrapped errors.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
