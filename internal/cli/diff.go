package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leo-lp/rowwatch/internal/diff"
	"github.com/leo-lp/rowwatch/internal/tracker"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	Database string
	Against  string
}

// DiffOp is the JSON rendering of one edit-script operation.
type DiffOp struct {
	Op     string         `json:"op"`
	Index  int            `json:"index,omitempty"`
	From   int            `json:"from,omitempty"`
	To     int            `json:"to,omitempty"`
	Record map[string]any `json:"record,omitempty"`
}

// DiffResult is the JSON payload of a diff.
type DiffResult struct {
	Query   string   `json:"query"`
	Before  int      `json:"before"`
	After   int      `json:"after"`
	Ops     []DiffOp `json:"ops"`
	Changed bool     `json:"changed"`
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <request.yaml>",
		Short: "Diff one request across two databases",
		Long: `Run the same tracked request against two databases and print the minimal
edit script that turns the first result set into the second.

Exit codes:
  0 - Result sets are identical
  1 - Result sets differ
  2 - Command error (invalid paths, malformed request, etc.)

Example:
  rowwatch diff --db before.db --against after.db ./requests/players.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the base SQLite database (required)")
	cmd.Flags().StringVar(&opts.Against, "against", "", "path to the database to compare against (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("against")

	return cmd
}

func runDiff(opts *DiffOptions, requestPath string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	before, rf, err := fetchOnce(opts.Database, requestPath)
	if err != nil {
		return err
	}
	after, _, err := fetchOnce(opts.Against, requestPath)
	if err != nil {
		return err
	}

	comparator := rf.Comparator()
	script, err := comparator.EditScript(before.Records(), after.Records())
	if err != nil {
		return WrapExitError(ExitFailure, "comparison failed", err)
	}

	result := DiffResult{
		Query:   rf.Query,
		Before:  before.Len(),
		After:   after.Len(),
		Ops:     renderOps(script),
		Changed: len(script) > 0,
	}

	if opts.Format == "json" {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		if len(script) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "result sets are identical")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%d op(s): %d -> %d row(s)\n",
				len(script), before.Len(), after.Len())
			for _, op := range result.Ops {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", formatOp(op))
			}
		}
	}

	if result.Changed {
		return NewExitError(ExitFailure, "result sets differ")
	}
	return nil
}

// renderOps converts an edit script to its output form.
func renderOps(script []diff.Op[tracker.Row]) []DiffOp {
	out := make([]DiffOp, 0, len(script))
	for _, op := range script {
		d := DiffOp{Op: op.Kind.String()}
		switch op.Kind {
		case diff.OpMove:
			d.From = op.From
			d.To = op.To
		default:
			d.Index = op.Index
		}
		if op.Kind == diff.OpInsert || op.Kind == diff.OpUpdate {
			d.Record = map[string]any(op.Record)
		}
		out = append(out, d)
	}
	return out
}

// formatOp renders one op for text output.
func formatOp(op DiffOp) string {
	switch op.Op {
	case "move":
		return fmt.Sprintf("move %d -> %d", op.From, op.To)
	case "insert", "update":
		return fmt.Sprintf("%s at %d: %s", op.Op, op.Index, formatRow(op.Record))
	default:
		return fmt.Sprintf("%s at %d", op.Op, op.Index)
	}
}
