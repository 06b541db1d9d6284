package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tablekeeper/internal/runner"
	"tablekeeper/pkg/errors"
)

var (
	runNoStatements    bool
	runNoProgress      bool
	runContinueOnError bool
	runMaxRows         int
)

var runCmd = &cobra.Command{
	Use:   "run FILE...",
	Short: "Execute SQL files against the warehouse",
	Long: `Split each file into statements and execute them in order. By default the
first failed statement stops the file and the remaining files;
--continue-on-error runs everything and reports the failures at the end.`,
	Example: `  tablekeeper run build_tables.sql
  tablekeeper run --continue-on-error --no-statements a.sql b.sql`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSQLFiles,
}

func init() {
	f := runCmd.Flags()
	f.BoolVar(&runNoStatements, "no-statements", false, "do not echo statements before running them")
	f.BoolVar(&runNoProgress, "no-progress", false, "do not print progress lines")
	f.BoolVar(&runContinueOnError, "continue-on-error", false, "keep going after a failed statement")
	f.IntVar(&runMaxRows, "max-rows", runner.DefaultMaxRows, "result rows shown per statement, 0 shows none")
	rootCmd.AddCommand(runCmd)
}

func runSQLFiles(cmd *cobra.Command, args []string) error {
	if runMaxRows < 0 {
		return errors.ValidationError("max-rows", runMaxRows, "must not be negative")
	}

	svc, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer closeService(svc)

	printer := runner.NewPrinter(cmd.OutOrStdout(), !runNoStatements && !quiet, !runNoProgress && !quiet)

	r := runner.New(svc, logger)
	r.Policy.StopOnError = !runContinueOnError
	r.Policy.MaxRows = runMaxRows
	r.Observer = printer

	summary := r.RunFiles(cmd.Context(), args)
	if len(args) > 1 {
		printer.PrintFilesSummary(summary)
	}

	if err := cmd.Context().Err(); err != nil {
		return err
	}
	if !summary.OK() {
		return errors.New(errors.ErrCodeSQLExecution,
			fmt.Sprintf("%d of %d files failed", summary.Failed, len(args))).
			WithContext("not_run", summary.NotRun)
	}
	return nil
}
