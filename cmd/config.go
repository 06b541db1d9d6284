package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"tablekeeper/internal/config"
	"tablekeeper/internal/ui"
	"tablekeeper/pkg/errors"
)

var (
	configPath           string
	configForce          bool
	configNonInteractive bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the tablekeeper configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file",
	Long: `Write tablekeeper.yaml. In a terminal a short wizard asks for the connection
settings; otherwise the current settings are written as a template. Passwords
are never written to the file: the wizard stores them in the OS keyring.`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets masked",
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().StringVar(&configPath, "path", config.FileName+".yaml", "where to write the file")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configInitCmd.Flags().BoolVar(&configNonInteractive, "non-interactive", false, "write a template without prompting")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	settings := *cfg
	password := ""

	if !configNonInteractive && interactive() {
		wizard := ui.NewConfigWizard(settings)
		answered, pw, err := wizard.Run()
		if err != nil {
			return err
		}
		settings = *answered
		password = pw
	}

	if err := config.WriteTemplate(configPath, settings, configForce); err != nil {
		return err
	}

	if password != "" {
		if err := config.SetPassword(settings.Snowflake.Account, settings.Snowflake.User, password); err != nil {
			return err
		}
		out().Success("Password stored in the OS keyring")
	}

	abs, _ := filepath.Abs(configPath)
	out().Success(fmt.Sprintf("Configuration written to %s", abs))
	if password == "" && settings.Snowflake.PrivateKeyPath == "" {
		out().Info("Set SNOWFLAKE_PASSWORD or run 'tablekeeper auth set-password' before connecting")
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if used := v.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "Config file: %s\n\n", used)
	} else {
		fmt.Fprintln(w, "Config file: (none, using environment and defaults)")
		fmt.Fprintln(w)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Setting", "Value"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, p := range config.MaskedParams(cfg) {
		table.Append([]string{p.Name, p.Value})
	}
	table.Append([]string{"Allowlist", cfg.Files.Allowlist})
	table.Append([]string{"Repository", cfg.Files.Repository})
	table.Append([]string{"Docs", cfg.Files.Docs})
	table.Append([]string{"Reference", cfg.Files.Reference})
	table.Render()
	return nil
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Snowflake password stored in the OS keyring",
}

var authSetPasswordCmd = &cobra.Command{
	Use:   "set-password",
	Short: "Store the Snowflake password for the configured user",
	RunE: func(cmd *cobra.Command, args []string) error {
		sf := cfg.Snowflake
		if sf.Account == "" || sf.User == "" {
			return errors.ConfigMissingError(missingIdentity(sf.Account, sf.User))
		}
		if !interactive() {
			return errors.New(errors.ErrCodeUserInput, "A terminal is required to enter the password").
				WithSuggestions("Set SNOWFLAKE_PASSWORD in the environment instead")
		}

		password, err := ui.Password(fmt.Sprintf("Password for %s@%s:", sf.User, sf.Account), "")
		if err != nil {
			return err
		}
		if err := config.SetPassword(sf.Account, sf.User, password); err != nil {
			return err
		}
		out().Success("Password stored in the OS keyring")
		return nil
	},
}

var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored Snowflake password",
	RunE: func(cmd *cobra.Command, args []string) error {
		sf := cfg.Snowflake
		if sf.Account == "" || sf.User == "" {
			return errors.ConfigMissingError(missingIdentity(sf.Account, sf.User))
		}
		if err := config.DeletePassword(sf.Account, sf.User); err != nil {
			return err
		}
		out().Success(fmt.Sprintf("Removed stored password for %s@%s", sf.User, sf.Account))
		return nil
	},
}

func missingIdentity(account, user string) []string {
	var missing []string
	if user == "" {
		missing = append(missing, "SNOWFLAKE_USER")
	}
	if account == "" {
		missing = append(missing, "SNOWFLAKE_ACCOUNT")
	}
	return missing
}

func init() {
	authCmd.AddCommand(authSetPasswordCmd)
	authCmd.AddCommand(authClearCmd)
	rootCmd.AddCommand(authCmd)
}
