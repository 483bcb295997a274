package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/leo-lp/rowwatch/internal/sqlscan"
)

// Querier is the narrow read interface consumed from the database
// collaborator. *sql.DB, *sql.Tx and *store.Store all satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// CommitFeed is the transaction-notification collaborator. A subscription
// callback receives the touched-table set of every committed write
// transaction; a nil set means the touched tables are unknown. Rollbacks
// never notify.
type CommitFeed interface {
	Subscribe(fn func(tables map[string]struct{})) string
	Unsubscribe(handle string)
}

// Request describes how to fetch: a query, its parameters, an optional
// column-name remapping, and an optional side fetch. Requests are opaque to
// the diffing machinery and swappable at runtime via Tracker.SetRequest.
type Request[R any] struct {
	// SQL is the query text. Its ORDER BY defines the display order unless
	// Sort overrides it client-side.
	SQL string

	// Args are the query parameters.
	Args []any

	// Aliases remaps column names: exposed name -> underlying column.
	// Decode sees the exposed names.
	Aliases map[string]string

	// Tables is the request's dependency set for the relevance filter.
	// Empty means unknown: every commit is treated as relevant. Populated
	// automatically from the query text by NewRequest.
	Tables []string

	// Decode converts a remapped row into the record type. This is the
	// object-relational boundary - the tracker never interprets records
	// beyond the comparator's Key and Equal.
	Decode func(Row) (R, error)

	// Sort, when set, re-sorts fetched records client-side to define a
	// display order different from the query order.
	Sort func(a, b R) int

	// SideFetch, when set, computes an auxiliary value (e.g., a total
	// count) from the same database state during each fetch cycle.
	SideFetch func(ctx context.Context, db Querier) (any, error)
}

// NewRequest builds a request with the dependency set derived from the
// query text.
func NewRequest[R any](sqlText string, decode func(Row) (R, error), args ...any) *Request[R] {
	return &Request[R]{
		SQL:    sqlText,
		Args:   args,
		Tables: sqlscan.ReferencedTables(sqlText),
		Decode: decode,
	}
}

// NewRowRequest builds an untyped request whose records are the remapped
// rows themselves.
func NewRowRequest(sqlText string, args ...any) *Request[Row] {
	return NewRequest(sqlText, func(r Row) (Row, error) { return r, nil }, args...)
}

// dependsOn reports whether a commit touching the given tables can affect
// this request. A nil table set (unknown touched tables) and an empty
// dependency set (unknown dependencies) are both conservatively relevant.
func (r *Request[R]) dependsOn(tables map[string]struct{}) bool {
	if tables == nil || len(r.Tables) == 0 {
		return true
	}
	for _, t := range r.Tables {
		if _, ok := tables[t]; ok {
			return true
		}
	}
	return false
}

// fetch executes the request and returns the decoded records in display
// order plus the side value, if any. Blocks the calling goroutine until the
// engine returns results.
func (r *Request[R]) fetch(ctx context.Context, db Querier) ([]R, any, error) {
	if r.Decode == nil {
		return nil, nil, fmt.Errorf("request has no Decode function")
	}

	rows, err := db.QueryContext(ctx, r.SQL, r.Args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	// Exposed name per result column, honoring the alias remapping.
	exposed := make([]string, len(cols))
	for i, col := range cols {
		exposed[i] = col
	}
	for alias, underlying := range r.Aliases {
		for i, col := range cols {
			if col == underlying {
				exposed[i] = alias
			}
		}
	}

	var recs []R
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, name := range exposed {
			row[name] = copyValue(vals[i])
		}
		rec, err := r.Decode(row)
		if err != nil {
			return nil, nil, fmt.Errorf("decode row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}

	if r.Sort != nil {
		slices.SortStableFunc(recs, r.Sort)
	}

	var side any
	if r.SideFetch != nil {
		side, err = r.SideFetch(ctx, db)
		if err != nil {
			return nil, nil, fmt.Errorf("side fetch: %w", err)
		}
	}

	return recs, side, nil
}

// copyValue detaches a scanned value from the driver's buffers. The sqlite
// driver reuses []byte storage across rows.
func copyValue(v any) any {
	if b, ok := v.([]byte); ok {
		return slices.Clone(b)
	}
	return v
}
