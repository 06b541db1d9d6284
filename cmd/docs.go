package cmd

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tablekeeper/internal/catalog"
	"tablekeeper/internal/docs"
	"tablekeeper/internal/git"
	"tablekeeper/pkg/models"
)

var (
	docsOffline  bool
	docsWatch    bool
	docsOutput   string
	docsDatabase string
	docsSamples  int
	refOffline   bool
	refOutput    string
	refDatabase  string
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Generate Markdown documentation for the allowlisted tables",
	Long: `Generate Markdown documentation for every allowlist entry: description, notes,
joins, key columns, the column table and sample rows read from the warehouse.
With --offline no connection is made; columns come from the allowlist and the
schema repository status replaces row counts and samples.`,
	Example: `  tablekeeper docs
  tablekeeper docs --offline --watch`,
	RunE: runDocs,
}

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Generate the JSON reference used for AI-assisted query generation",
	RunE:  runReference,
}

func init() {
	f := docsCmd.Flags()
	f.BoolVar(&docsOffline, "offline", false, "do not connect to the warehouse")
	f.BoolVar(&docsWatch, "watch", false, "regenerate whenever the allowlist changes")
	f.StringVarP(&docsOutput, "output", "o", "", "output file (default: files.docs)")
	f.StringVar(&docsDatabase, "database", catalog.DefaultDatabase, "database for entries that do not name one")
	f.IntVar(&docsSamples, "sample-rows", docs.DefaultSampleRows, "sample rows per table")

	f = referenceCmd.Flags()
	f.BoolVar(&refOffline, "offline", false, "do not connect to the warehouse")
	f.StringVarP(&refOutput, "output", "o", "", "output file (default: files.reference)")
	f.StringVar(&refDatabase, "database", catalog.DefaultDatabase, "database for entries that do not name one")

	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(referenceCmd)
}

// newGenerator opens a connection unless offline. The returned cleanup
// closes it.
func newGenerator(cmd *cobra.Command, offline bool, database string) (*docs.Generator, func(), error) {
	if offline {
		gen := docs.NewGenerator(nil, logger)
		gen.Database = database
		gen.Repository = loadRepository()
		return gen, func() {}, nil
	}

	svc, err := connect(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	gen := docs.NewGenerator(svc, logger)
	gen.Database = database
	gen.OnTable = func(key catalog.TableKey) {
		out().VerbosePrintf("Processing %s\n", key)
	}
	return gen, func() { closeService(svc) }, nil
}

// allowlistRevision returns the last commit of the allowlist file, or nil
// when it is not tracked by git.
func allowlistRevision(path string) *models.Revision {
	rev, err := git.FileRevision(path)
	if err != nil {
		if !stderrors.Is(err, git.ErrNotRepository) && !stderrors.Is(err, git.ErrNoRevision) {
			logger.Warn("could not read allowlist revision", "file", path, "error", err)
		}
		return nil
	}
	return rev
}

func reportProblems(report *docs.Report) {
	if report == nil || len(report.Problems) == 0 {
		return
	}
	u := out()
	u.Warning(fmt.Sprintf("%d lookups failed; the affected sections are incomplete", len(report.Problems)))
	for _, p := range report.Problems {
		u.VerbosePrintf("  %v\n", p)
	}
}

func runDocs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := docsOutput
	if path == "" {
		path = cfg.Files.Docs
	}

	gen, cleanup, err := newGenerator(cmd, docsOffline, docsDatabase)
	if err != nil {
		return err
	}
	defer cleanup()
	gen.SampleRows = docsSamples

	generate := func() error {
		allowlist := loadAllowlist()
		if allowlist.Len() == 0 {
			out().Warning("The allowlist is empty. Run 'tablekeeper allowlist init' to create a starter file")
		}
		gen.Revision = allowlistRevision(cfg.Files.Allowlist)
		if gen.Offline() {
			gen.Repository = loadRepository()
		}

		var report *docs.Report
		err := docs.WriteFile(path, func(w io.Writer) error {
			var err error
			report, err = gen.Markdown(ctx, w, allowlist)
			return err
		})
		if err != nil {
			return err
		}
		reportProblems(report)
		out().Success(fmt.Sprintf("Documentation for %d tables written to %s", report.Tables, path))
		return nil
	}

	if err := generate(); err != nil {
		return err
	}
	if !docsWatch {
		return nil
	}

	watcher, err := docs.NewWatcher(cfg.Files.Allowlist, logger)
	if err != nil {
		return err
	}
	out().Info(fmt.Sprintf("Watching %s for changes. Press Ctrl-C to stop.", cfg.Files.Allowlist))
	return watcher.Run(ctx, generate)
}

func runReference(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := refOutput
	if path == "" {
		path = cfg.Files.Reference
	}

	gen, cleanup, err := newGenerator(cmd, refOffline, refDatabase)
	if err != nil {
		return err
	}
	defer cleanup()

	allowlist := loadAllowlist()
	reference, report, err := gen.Reference(ctx, allowlist)
	if err != nil {
		return err
	}
	if err := docs.WriteFile(path, reference.WriteJSON); err != nil {
		return err
	}
	reportProblems(report)
	out().Success(fmt.Sprintf("Reference for %d tables written to %s", len(reference.Tables), path))
	return nil
}
