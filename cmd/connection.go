package cmd

import (
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"tablekeeper/internal/config"
	"tablekeeper/internal/snowflake"
	"tablekeeper/internal/ui"
	"tablekeeper/pkg/errors"
)

var tryAccounts []string

var connectionCmd = &cobra.Command{
	Use:   "connection",
	Short: "Check the Snowflake connection",
}

var connectionTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Connect with the configured credentials and show the session",
	Long: `Connect with the configured credentials and print the session identity.
Use --try-account to try further account identifiers after the configured one
when the right format is unknown (for example xy12345 or xy12345.us-east-1.aws).`,
	RunE: runConnectionTest,
}

func init() {
	connectionTestCmd.Flags().StringSliceVar(&tryAccounts, "try-account", nil, "alternative account identifiers to try")
	connectionCmd.AddCommand(connectionTestCmd)
	rootCmd.AddCommand(connectionCmd)
}

func runConnectionTest(cmd *cobra.Command, args []string) error {
	u := out()

	ui.PrintSection("Connection parameters")
	for _, p := range config.MaskedParams(cfg) {
		ui.PrintKeyValue(p.Name, p.Value)
	}

	accounts := append([]string{cfg.Snowflake.Account}, tryAccounts...)
	original := cfg.Snowflake.Account
	defer func() { cfg.Snowflake.Account = original }()

	var lastErr error
	for _, account := range accounts {
		if account == "" {
			continue
		}
		cfg.Snowflake.Account = account
		u.Printf("\nTrying account %s...\n", account)

		svc, err := connect(cmd.Context())
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeConfigMissing) {
				return err
			}
			u.Error(fmt.Sprintf("Failed: %v", firstLine(err)))
			lastErr = err
			continue
		}

		info, err := svc.Session(cmd.Context())
		closeService(svc)
		if err != nil {
			return err
		}

		printSession(info)
		if account != original {
			u.Success(fmt.Sprintf("Connected. Use this account identifier: %s", account))
		} else {
			u.Success("Connection successful")
		}
		return nil
	}

	if lastErr == nil {
		return errors.ConfigMissingError([]string{"SNOWFLAKE_ACCOUNT"})
	}
	return errors.Wrap(lastErr, errors.ErrCodeConnectionFailed, "All connection attempts failed").
		WithSuggestions(
			"Verify your username and password are correct",
			"Ensure you are connected to any required VPN",
			"Check if your IP is allowed to access Snowflake",
			"Confirm the account identifier with your administrator",
		)
}

func printSession(info *snowflake.SessionInfo) {
	ui.PrintSection("Session")
	ui.PrintKeyValue("User", info.User)
	ui.PrintKeyValue("Account", info.Account)
	ui.PrintKeyValue("Version", info.Version)
	ui.PrintKeyValue("Role", info.Role)
	ui.PrintKeyValue("Warehouse", info.Warehouse)
	ui.PrintKeyValue("Database", info.Database)
	ui.PrintKeyValue("Schema", info.Schema)
}

func firstLine(err error) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		if appErr.Cause != nil {
			return appErr.Message + ": " + appErr.Cause.Error()
		}
		return appErr.Message
	}
	return err.Error()
}
