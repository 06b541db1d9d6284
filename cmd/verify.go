package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tablekeeper/internal/reconcile"
	"tablekeeper/internal/ui"
)

var (
	verifyAddMissing   bool
	validateAddMissing bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the allowlist against the schema repository",
	Long: `Classify every allowlist entry as verified (recorded in the schema repository)
or unverified, and count repository tables that are not in the allowlist.
No warehouse connection is needed.`,
	RunE: runVerify,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that every allowlist table exists in the warehouse",
	RunE:  runValidate,
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyAddMissing, "add-missing", false, "add unverified tables to the schema repository")
	validateCmd.Flags().BoolVar(&validateAddMissing, "add-missing", false, "add tables found in the warehouse to the schema repository")
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(validateCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	allowlist := loadAllowlist()
	repository := loadRepository()

	report := reconcile.Reconcile(allowlist, repository)
	reconcile.NewPrinter(ui.ColorEnabled(), verbose).PrintReport(cmd.OutOrStdout(), report)

	if !verifyAddMissing || len(report.Unverified) == 0 {
		return nil
	}

	added := reconcile.AddMissing(repository, report)
	if err := repository.Save(cfg.Files.Repository); err != nil {
		return err
	}
	out().Success(fmt.Sprintf("Added %d tables to the schema repository", added))
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	allowlist := loadAllowlist()
	repository := loadRepository()

	svc, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeService(svc)

	validation, err := reconcile.Validate(ctx, allowlist, repository, svc, logger)
	if err != nil {
		return err
	}
	reconcile.NewPrinter(ui.ColorEnabled(), verbose).PrintValidation(cmd.OutOrStdout(), validation)

	if validateAddMissing && len(validation.MissingFromRepository) > 0 {
		added := reconcile.AddValidated(repository, validation)
		if err := repository.Save(cfg.Files.Repository); err != nil {
			return err
		}
		out().Success(fmt.Sprintf("Added %d tables to the schema repository", added))
	}

	ui.PrintTally(len(validation.Existing), len(validation.Missing), validation.Skipped)
	return nil
}
