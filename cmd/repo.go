package cmd

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"tablekeeper/internal/catalog"
	"tablekeeper/internal/ui"
)

var (
	refreshDatabase string
	refreshSchema   string
	refreshReplace  bool
	repoListSchema  string
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage the schema repository of tables known to exist",
}

var repoRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Record the tables the warehouse lists in the schema repository",
	Long: `List the tables of a database, or of one schema, from INFORMATION_SCHEMA.TABLES
and record them in the schema repository. By default new tables are added to
the existing ones; --replace rebuilds the repository from the listing.`,
	Example: `  tablekeeper repo refresh --database EDW --schema CNG
  tablekeeper repo refresh --replace`,
	RunE: runRepoRefresh,
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tables recorded in the schema repository",
	RunE:  runRepoList,
}

func init() {
	repoRefreshCmd.Flags().StringVar(&refreshDatabase, "database", catalog.DefaultDatabase, "database to scan")
	repoRefreshCmd.Flags().StringVar(&refreshSchema, "schema", "", "only scan this schema")
	repoRefreshCmd.Flags().BoolVar(&refreshReplace, "replace", false, "replace the repository instead of adding to it")
	repoListCmd.Flags().StringVar(&repoListSchema, "schema", "", "only list this schema")

	repoCmd.AddCommand(repoRefreshCmd)
	repoCmd.AddCommand(repoListCmd)
	rootCmd.AddCommand(repoCmd)
}

func runRepoRefresh(cmd *cobra.Command, args []string) error {
	u := out()
	ctx := cmd.Context()
	database := strings.ToUpper(strings.TrimSpace(refreshDatabase))
	schema := strings.ToUpper(strings.TrimSpace(refreshSchema))

	svc, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeService(svc)

	var keys []catalog.TableKey
	if schema != "" {
		u.Printf("Scanning %s.%s...\n", database, schema)
		keys, err = svc.SchemaTables(ctx, database, schema)
	} else {
		u.Printf("Scanning %s...\n", database)
		keys, err = svc.DatabaseTables(ctx, database)
	}
	if err != nil {
		return err
	}
	logger.Info("warehouse scan finished", "database", database, "schema", schema, "tables", len(keys))

	if len(keys) == 0 {
		u.Warning("The warehouse listed no tables; the repository was not changed")
		return nil
	}

	repository := loadRepository()
	before := repository.Len()
	if refreshReplace {
		repository.Replace(keys)
	} else {
		repository.InsertIfAbsent(keys...)
	}

	if err := repository.Save(cfg.Files.Repository); err != nil {
		return err
	}

	if refreshReplace {
		u.Success(fmt.Sprintf("Schema repository replaced: %d tables (was %d)", repository.Len(), before))
	} else {
		u.Success(fmt.Sprintf("Added %d new tables to the schema repository (%d total)", repository.Len()-before, repository.Len()))
	}
	return nil
}

func runRepoList(cmd *cobra.Command, args []string) error {
	repository := loadRepository()
	w := cmd.OutOrStdout()

	if repository.Len() == 0 {
		fmt.Fprintln(w, "The schema repository is empty.")
		fmt.Fprintln(w, "Use 'tablekeeper repo refresh' to record the warehouse tables")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Database", "Schema", "Table"})
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	shown := 0
	for _, key := range repository.Tables {
		if repoListSchema != "" && !strings.EqualFold(key.Schema, repoListSchema) {
			continue
		}
		table.Append([]string{key.EffectiveDatabase(), key.Schema, key.Table})
		shown++
	}
	table.Render()

	fmt.Fprintf(w, "\n%d of %d tables", shown, repository.Len())
	if repository.LastUpdated != "" {
		fmt.Fprintf(w, ", last updated %s", repository.LastUpdated)
	}
	fmt.Fprintln(w)
	if repository.Note != "" {
		fmt.Fprintln(w, ui.Truncate(repository.Note, 100))
	}
	return nil
}
