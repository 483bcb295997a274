package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leo-lp/rowwatch/internal/diff"
	"github.com/leo-lp/rowwatch/internal/store"
	"github.com/leo-lp/rowwatch/internal/tracker"
)

// watchQuiesce is how long watch lingers after a write script so trailing
// cycles can flush before exit.
const watchQuiesce = 300 * time.Millisecond

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Database string
	Writes   string
}

// WatchCycle is the JSON rendering of one observed cycle.
type WatchCycle struct {
	Seq    int64    `json:"seq"`
	Before int      `json:"before"`
	After  int      `json:"after"`
	Ops    []DiffOp `json:"ops"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <request.yaml>",
		Short: "Track a request and print every change cycle",
		Long: `Track a request against a database and print a line per notification
cycle until interrupted.

With --writes, the statements in the given SQL script are applied through
the tracked connection one by one, the resulting cycles are printed, and
the command exits.

Example:
  rowwatch watch --db ./app.db ./requests/players.yaml
  rowwatch watch --db ./app.db --writes ./writes.sql ./requests/players.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Writes, "writes", "", "SQL script to apply through the tracked connection")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runWatch(opts *WatchOptions, requestPath string, cmd *cobra.Command) error {
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}

	rf, err := LoadRequest(requestPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load request", err)
	}

	var script []string
	if opts.Writes != "" {
		script, err = loadWriteScript(opts.Writes)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load write script", err)
		}
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	tr := tracker.New(st, st, rf.Request(), rf.Comparator())
	tr.TrackChanges(tracker.ChangeObserver[tracker.Row]{
		DidChangeScript: func(before, after *tracker.Snapshot[tracker.Row], ops []diff.Op[tracker.Row]) {
			printCycle(out, cmd, before, after, ops)
		},
	})
	tr.TrackErrors(func(last *tracker.Snapshot[tracker.Row], err error) {
		_ = out.Error(ErrCodeQuery, err.Error(), nil)
	})
	defer tr.Stop()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if err := tr.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "initial fetch failed", err)
	}

	if len(script) > 0 {
		for i, stmt := range script {
			if _, err := st.Exec(ctx, stmt); err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("write %d failed", i+1), err)
			}
		}
		// Cycles are delivered asynchronously; give the loop a moment to
		// drain before exiting.
		time.Sleep(watchQuiesce)
		return nil
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	fmt.Fprintln(cmd.ErrOrStderr(), "Watching. Press Ctrl-C to stop.")
	select {
	case sig := <-sigChan:
		slog.Info("received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}
	return nil
}

// printCycle renders one cycle. In JSON mode each cycle is one response line.
func printCycle(out *OutputFormatter, cmd *cobra.Command, before, after *tracker.Snapshot[tracker.Row], ops []diff.Op[tracker.Row]) {
	if out.Format == "json" {
		_ = out.Success(WatchCycle{
			Seq:    after.Seq(),
			Before: before.Len(),
			After:  after.Len(),
			Ops:    renderOps(ops),
		})
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "cycle %d: %d -> %d row(s)\n",
		after.Seq(), before.Len(), after.Len())
	for _, op := range renderOps(ops) {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", formatOp(op))
	}
}

// loadWriteScript reads a SQL script and splits it into statements.
// Line comments are stripped before splitting on semicolons.
func loadWriteScript(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	var stmts []string
	for _, part := range strings.Split(sb.String(), ";") {
		stmt := strings.TrimSpace(part)
		if stmt == "" {
			continue
		}
		stmts = append(stmts, stmt)
	}
	if len(stmts) == 0 {
		return nil, fmt.Errorf("no statements in %s", path)
	}
	return stmts, nil
}
