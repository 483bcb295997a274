package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leo-lp/rowwatch/internal/sqlscan"
)

// Write runs fn inside a transaction and notifies subscribers on successful
// commit with the given touched-table set. An empty table list notifies
// with a nil set, meaning "unknown - treat as touching everything".
//
// Rollback (fn returning an error) never notifies. The notification runs
// after Commit returns, outside the transaction, so subscribers observe a
// consistent post-commit state and never block the writer's critical
// section.
func (s *Store) Write(ctx context.Context, tables []string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.hub.notify(tableSet(tables))
	return nil
}

// Exec executes a single write statement and notifies subscribers on
// success. The touched-table set is derived from the statement text; when
// the scan finds nothing (no table hints), subscribers are notified with a
// nil set.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	s.hub.notify(tableSet(sqlscan.ReferencedTables(query)))
	return res, nil
}

// tableSet converts a table list to the hub's set form. Empty input maps
// to nil, the "unknown" marker. Names are lowercased to match sqlscan's
// reporting - SQLite resolves them case-insensitively.
func tableSet(tables []string) map[string]struct{} {
	if len(tables) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		set[strings.ToLower(t)] = struct{}{}
	}
	return set
}
