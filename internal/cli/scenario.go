package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leo-lp/rowwatch/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Filter string
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Cycles int      `json:"cycles"`
	Errors []string `json:"errors,omitempty"`
}

// ScenarioReport holds the overall run result.
type ScenarioReport struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run every scenario YAML file in a directory against fresh in-memory
databases and report expectation failures.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, malformed scenario, etc.)

Examples:
  rowwatch scenario ./scenarios
  rowwatch scenario ./scenarios --filter "insert-*"
  rowwatch scenario ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern on the file name")

	return cmd
}

func runScenarios(opts *ScenarioOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list scenarios", err)
	}
	if len(paths) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenario files in %s", dir))
	}

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	report := ScenarioReport{}
	for _, path := range paths {
		if opts.Filter != "" {
			matched, err := filepath.Match(opts.Filter, filepath.Base(path))
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid filter pattern", err)
			}
			if !matched {
				continue
			}
		}

		s, err := harness.LoadScenario(path)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to load %s", path), err)
		}

		out.VerboseLog("running scenario %s", s.Name)
		result, err := harness.Run(s)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("scenario %s aborted", s.Name), err)
		}

		report.Scenarios = append(report.Scenarios, ScenarioResult{
			Name:   s.Name,
			Pass:   result.Passed(),
			Cycles: len(result.Trace),
			Errors: result.Errors,
		})
	}

	for _, sr := range report.Scenarios {
		report.Total++
		if sr.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
	}

	if opts.Format == "json" {
		if err := out.Success(report); err != nil {
			return err
		}
	} else {
		for _, sr := range report.Scenarios {
			status := "PASS"
			if !sr.Pass {
				status = "FAIL"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%d trace event(s))\n", status, sr.Name, sr.Cycles)
			for _, msg := range sr.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "      %s\n", msg)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d passed, %d failed, %d total\n",
			report.Passed, report.Failed, report.Total)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", report.Failed))
	}
	return nil
}
