package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tablekeeper/internal/catalog"
	"tablekeeper/internal/config"
	"tablekeeper/internal/snowflake"
	"tablekeeper/internal/ui"
	"tablekeeper/pkg/errors"
)

// connect opens the warehouse connection for a command. Tests replace it.
var connect = func(ctx context.Context) (*snowflake.Service, error) {
	conn := config.Connection(cfg)
	if err := snowflake.ValidateConfig(conn); err != nil {
		return nil, err
	}

	svc := snowflake.NewService(conn, logger)
	if quiet || !interactive() {
		if err := svc.Connect(ctx); err != nil {
			return nil, err
		}
		return svc, nil
	}

	spin := ui.NewSpinner(fmt.Sprintf("Connecting to %s", conn.Account))
	spin.Start()
	if err := svc.Connect(ctx); err != nil {
		spin.Stop(false, "Connection failed")
		return nil, err
	}
	spin.Stop(true, fmt.Sprintf("Connected as %s", conn.Username))
	return svc, nil
}

// interactive reports whether prompts can be shown. Tests replace it.
var interactive = ui.Interactive

// warnLoad reports a store that could not be read; the command continues
// with an empty store.
func warnLoad(err error) {
	if err == nil {
		return
	}
	message := err.Error()
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		message = appErr.Message
	}
	logger.Warn("store load failed", "error", err)
	out().Warning(message + "; starting from an empty store")
}

func loadAllowlist() *catalog.Allowlist {
	allowlist, err := catalog.LoadAllowlist(cfg.Files.Allowlist)
	warnLoad(err)
	return allowlist
}

func loadRepository() *catalog.Repository {
	repository, err := catalog.LoadRepository(cfg.Files.Repository)
	warnLoad(err)
	return repository
}

// tableFlags are the --database/--schema/--table flags naming one table.
type tableFlags struct {
	database string
	schema   string
	table    string
}

func (f *tableFlags) register(cmd *cobra.Command, required bool) {
	cmd.Flags().StringVar(&f.database, "database", catalog.DefaultDatabase, "database name")
	cmd.Flags().StringVar(&f.schema, "schema", "", "schema name")
	cmd.Flags().StringVar(&f.table, "table", "", "table name")
	if required {
		_ = cmd.MarkFlagRequired("schema")
		_ = cmd.MarkFlagRequired("table")
	}
}

func (f *tableFlags) key() catalog.TableKey {
	return catalog.NewTableKey(
		strings.TrimSpace(f.database),
		strings.TrimSpace(f.schema),
		strings.TrimSpace(f.table),
	)
}

func validTier(tier int) error {
	if tier < catalog.MinTier || tier > catalog.MaxTier {
		return errors.ValidationError("tier", tier,
			fmt.Sprintf("tier must be between %d and %d", catalog.MinTier, catalog.MaxTier))
	}
	return nil
}

// confirm asks before continuing. Without a terminal, assumeYes decides.
func confirm(message string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !interactive() {
		return false, errors.New(errors.ErrCodeUserInput, "Confirmation required").
			WithSuggestions("Re-run with --yes to continue without a prompt")
	}
	return ui.Confirm(message, false)
}

func closeService(svc *snowflake.Service) {
	if err := svc.Close(); err != nil {
		logger.Warn("failed to close connection", "error", err)
	}
}
