package cmd

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tablekeeper/internal/config"
	"tablekeeper/internal/ui"
	"tablekeeper/pkg/errors"
	"tablekeeper/pkg/models"
)

var (
	cfgFile string
	envFile string
	verbose bool
	quiet   bool
	noColor bool

	v      *viper.Viper
	cfg    *models.Config
	logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	runID  string

	rootCmd = &cobra.Command{
		Use:   "tablekeeper",
		Short: "Curate the Snowflake table allowlist and schema repository",
		Long: `tablekeeper maintains a curated allowlist of approved Snowflake tables, checks it
against a schema repository of tables known to exist, and renders Markdown
documentation and a JSON reference for AI-assisted query generation.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initApp,
	}
)

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if stderrors.Is(err, ui.ErrCancelled) || stderrors.Is(err, context.Canceled) {
		ui.ShowWarning("Cancelled")
		return 1
	}
	return errors.NewHandler(rootCmd.ErrOrStderr(), logger, verbose).Handle(err)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./tablekeeper.yaml or ~/.tablekeeper/tablekeeper.yaml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file with SNOWFLAKE_* variables")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "only print errors and results")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text or json)")
	flags.String("allowlist", "", "allowlist file")
	flags.String("repository", "", "schema repository file")
}

// flagKeys binds persistent flags to their config keys.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"allowlist":  "files.allowlist",
	"repository": "files.repository",
}

func initApp(cmd *cobra.Command, args []string) error {
	ui.Output = cmd.OutOrStdout()
	if noColor {
		ui.SetColor(false)
		color.NoColor = true
	}

	if _, err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	v = viper.New()
	config.Setup(v)
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(name)); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "Failed to bind flag").WithContext("flag", name)
		}
	}
	if err := config.ReadConfigFile(v, cfgFile); err != nil {
		return err
	}

	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded

	base, err := newLogger(cmd.ErrOrStderr(), cfg.Log, verbose)
	if err != nil {
		return err
	}
	runID = uuid.NewString()
	logger = base.With("run_id", runID, "command", cmd.CommandPath())
	logger.Debug("configuration loaded", "config_file", v.ConfigFileUsed())
	return nil
}

func newLogger(w io.Writer, c models.Log, verbose bool) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, errors.ValidationError("log.level", c.Level, "expected debug, info, warn or error")
	}
	if verbose && level > slog.LevelDebug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, errors.ValidationError("log.format", c.Format, "expected text or json")
	}
}

// out returns the UI honoring --verbose and --quiet.
func out() *ui.UI {
	return ui.NewUI(verbose, quiet)
}
