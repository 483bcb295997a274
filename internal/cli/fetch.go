package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leo-lp/rowwatch/internal/store"
	"github.com/leo-lp/rowwatch/internal/tracker"
)

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	Database string
}

// FetchResult is the JSON payload of a fetch.
type FetchResult struct {
	Query string           `json:"query"`
	Count int              `json:"count"`
	Rows  []map[string]any `json:"rows"`
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch <request.yaml>",
		Short: "Run a tracked request once and print the result set",
		Long: `Run a tracked request once against a database and print the rows in
display order.

Example:
  rowwatch fetch --db ./app.db ./requests/players.yaml
  rowwatch fetch --db ./app.db ./requests/players.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runFetch(opts *FetchOptions, requestPath string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	snap, rf, err := fetchOnce(opts.Database, requestPath)
	if err != nil {
		return err
	}

	rows := renderRows(snap)
	if opts.Format == "json" {
		return out.Success(FetchResult{Query: rf.Query, Count: len(rows), Rows: rows})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d row(s)\n", len(rows))
	for i, row := range rows {
		fmt.Fprintf(cmd.OutOrStdout(), "%3d  %s\n", i, formatRow(row))
	}
	return nil
}

// fetchOnce opens the database, performs one tracked fetch, and returns the
// resulting snapshot.
func fetchOnce(dbPath, requestPath string) (*tracker.Snapshot[tracker.Row], *RequestFile, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", dbPath))
	}

	rf, err := LoadRequest(requestPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load request", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	tr := tracker.New(st, st, rf.Request(), rf.Comparator())
	if err := tr.Start(context.Background()); err != nil {
		return nil, nil, WrapExitError(ExitFailure, "fetch failed", err)
	}
	snap := tr.CurrentSnapshot()
	tr.Stop()

	return snap, rf, nil
}

// renderRows flattens a snapshot into plain maps for output.
func renderRows(snap *tracker.Snapshot[tracker.Row]) []map[string]any {
	rows := snap.Records()
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]any(row))
	}
	return out
}

// formatRow renders a row as "col=value" pairs in column order.
func formatRow(row map[string]any) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	// Column order is not stable in a map; sort for deterministic output.
	slices.Sort(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, row[k])
	}
	return b.String()
}
