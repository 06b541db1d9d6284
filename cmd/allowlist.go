package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"tablekeeper/internal/catalog"
	"tablekeeper/internal/docs"
	"tablekeeper/internal/ui"
	"tablekeeper/pkg/errors"
)

var allowlistCmd = &cobra.Command{
	Use:   "allowlist",
	Short: "Maintain the table allowlist",
}

var (
	addFlags         tableFlags
	addTier          int
	addDescription   string
	addNotes         string
	addCommonJoins   []string
	addKeyColumns    []string
	addColumns       []string
	addToRepository  bool
	addFetchColumns  bool
	addAssumeYes     bool
	addUpsert        bool
	updateFlags      tableFlags
	updateTier       int
	updateDesc       string
	updateNotes      string
	updateJoins      []string
	updateKeyColumns []string
	updateColumns    []string
	listTier         int
	listSchema       string
	columnsFilter    tableFlags
	columnsAll       bool
	columnsContinue  bool
)

var allowlistAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a table to the allowlist",
	Long: `Add a table to the allowlist. The table is checked against the schema
repository first; a table the repository does not know needs confirmation,
--yes, or --add-to-repository. With --upsert an existing entry is updated
with the fields given instead.`,
	Example: `  tablekeeper allowlist add --schema CNG --table ORDERS --tier 1 \
    --description "One row per order" --key-columns ORDER_ID \
    --columns ORDER_ID:NUMBER --columns CREATED_AT:TIMESTAMP_NTZ`,
	RunE: runAllowlistAdd,
}

var allowlistUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update fields of an existing allowlist entry",
	Long:  `Update an allowlist entry. Only the flags given are changed; list flags replace the stored list.`,
	RunE:  runAllowlistUpdate,
}

var allowlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the allowlist",
	RunE:  runAllowlistList,
}

var allowlistInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter allowlist file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Files.Allowlist
		if err := docs.WriteAllowlistTemplate(path); err != nil {
			return err
		}
		out().Success(fmt.Sprintf("Created default allowlist file: %s", path))
		out().Info("Please edit this file to include the tables you want to document.")
		return nil
	},
}

var allowlistUpdateColumnsCmd = &cobra.Command{
	Use:   "update-columns",
	Short: "Refresh the recorded columns of allowlist entries from the warehouse",
	RunE:  runUpdateColumns,
}

func init() {
	f := allowlistAddCmd.Flags()
	addFlags.register(allowlistAddCmd, true)
	f.IntVar(&addTier, "tier", catalog.DefaultTier, "tier 1-4 indicating reliability and usage priority")
	f.StringVar(&addDescription, "description", "", "description of the table")
	f.StringVar(&addNotes, "notes", "", "additional notes about the table")
	f.StringSliceVar(&addCommonJoins, "common-joins", nil, "tables commonly joined with this one")
	f.StringSliceVar(&addKeyColumns, "key-columns", nil, "key columns of the table")
	f.StringArrayVar(&addColumns, "columns", nil, "column as name:type (repeatable)")
	f.BoolVar(&addToRepository, "add-to-repository", false, "also record the table in the schema repository")
	f.BoolVar(&addFetchColumns, "fetch-columns", false, "read the columns from the warehouse")
	f.BoolVarP(&addAssumeYes, "yes", "y", false, "do not ask for confirmation")
	f.BoolVar(&addUpsert, "upsert", false, "apply the given fields to an existing entry instead of failing")
	_ = allowlistAddCmd.MarkFlagRequired("description")

	f = allowlistUpdateCmd.Flags()
	updateFlags.register(allowlistUpdateCmd, true)
	f.IntVar(&updateTier, "tier", 0, "tier 1-4")
	f.StringVar(&updateDesc, "description", "", "description of the table")
	f.StringVar(&updateNotes, "notes", "", "additional notes")
	f.StringSliceVar(&updateJoins, "common-joins", nil, "tables commonly joined with this one")
	f.StringSliceVar(&updateKeyColumns, "key-columns", nil, "key columns of the table")
	f.StringArrayVar(&updateColumns, "columns", nil, "column as name:type (repeatable)")

	allowlistListCmd.Flags().IntVar(&listTier, "tier", 0, "only list this tier")
	allowlistListCmd.Flags().StringVar(&listSchema, "schema", "", "only list this schema")

	f = allowlistUpdateColumnsCmd.Flags()
	f.StringVar(&columnsFilter.database, "database", "", "only entries in this database")
	f.StringVar(&columnsFilter.schema, "schema", "", "only entries in this schema")
	f.StringVar(&columnsFilter.table, "table", "", "only entries for this table")
	f.BoolVar(&columnsAll, "all", false, "refresh every entry")
	f.BoolVar(&columnsContinue, "continue-on-error", false, "keep going after a failed lookup")

	allowlistCmd.AddCommand(allowlistAddCmd)
	allowlistCmd.AddCommand(allowlistUpdateCmd)
	allowlistCmd.AddCommand(allowlistListCmd)
	allowlistCmd.AddCommand(allowlistInitCmd)
	allowlistCmd.AddCommand(allowlistUpdateColumnsCmd)
	rootCmd.AddCommand(allowlistCmd)
}

func runAllowlistAdd(cmd *cobra.Command, args []string) error {
	u := out()
	key := addFlags.key()
	if !key.Valid() {
		return errors.ValidationError("table", key.String(), "schema and table are required")
	}
	if err := validTier(addTier); err != nil {
		return err
	}

	columns, err := catalog.ParseColumns(addColumns)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid --columns value")
	}

	allowlist := loadAllowlist()
	if allowlist.Contains(key) && addUpsert {
		allowlist.Upsert(key, addPatch(cmd.Flags(), columns))
		if err := allowlist.Save(cfg.Files.Allowlist); err != nil {
			return err
		}
		u.Success(fmt.Sprintf("Updated %s in the allowlist", key))
		return nil
	}
	if allowlist.Contains(key) {
		return errors.New(errors.ErrCodeDuplicateEntry,
			fmt.Sprintf("Table %s already exists in the allowlist", key)).
			WithContext("table", key.String()).
			WithSuggestions("Use 'tablekeeper allowlist update' or --upsert to change the entry")
	}

	repository := loadRepository()
	repositoryChanged := false
	if !repository.Contains(key) {
		u.Warning(fmt.Sprintf("Table %s does not exist in the schema repository.", key))
		u.Println("This might indicate the table doesn't exist in the database or hasn't been verified.")
		if addToRepository {
			repository.InsertIfAbsent(key)
			repositoryChanged = true
		} else {
			ok, err := confirm("Do you want to continue anyway?", addAssumeYes)
			if err != nil {
				return err
			}
			if !ok {
				u.Println("Aborted.")
				return nil
			}
		}
	}

	entry := catalog.Entry{
		Table:       key.Table,
		Schema:      key.Schema,
		Database:    key.Database,
		Tier:        catalog.Tier(addTier),
		Description: addDescription,
		Notes:       addNotes,
		CommonJoins: addCommonJoins,
		KeyColumns:  addKeyColumns,
	}
	if len(columns) > 0 {
		entry.Columns = columns
	}

	if addFetchColumns {
		u.Printf("Fetching columns for %s...\n", key)
		fetched, err := fetchColumns(cmd, key)
		if err != nil {
			u.Warning(fmt.Sprintf("Could not fetch columns: %s", firstLine(err)))
		} else if len(fetched) == 0 {
			u.Warning("No columns found")
		} else {
			entry.Columns = fetched
			u.Printf("  Found %d columns\n", len(fetched))
		}
	}

	allowlist.Add(entry)
	if err := allowlist.Save(cfg.Files.Allowlist); err != nil {
		return err
	}
	u.Success(fmt.Sprintf("Added %s to the allowlist", key))

	if repositoryChanged {
		if err := repository.Save(cfg.Files.Repository); err != nil {
			return err
		}
		u.Success(fmt.Sprintf("Added %s to the schema repository", key))
	}
	return nil
}

// addPatch holds the fields of an add invocation that were set explicitly.
func addPatch(flags *pflag.FlagSet, columns catalog.Columns) catalog.EntryPatch {
	patch := catalog.EntryPatch{Description: catalog.String(addDescription)}
	if flags.Changed("tier") {
		patch.Tier = catalog.Tier(addTier)
	}
	if flags.Changed("notes") {
		patch.Notes = catalog.String(addNotes)
	}
	if flags.Changed("common-joins") {
		patch.CommonJoins = append([]string{}, addCommonJoins...)
	}
	if flags.Changed("key-columns") {
		patch.KeyColumns = append([]string{}, addKeyColumns...)
	}
	if len(columns) > 0 {
		patch.Columns = columns
	}
	return patch
}

func fetchColumns(cmd *cobra.Command, key catalog.TableKey) (catalog.Columns, error) {
	svc, err := connect(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer closeService(svc)
	return svc.CatalogColumns(cmd.Context(), key.Upper())
}

func runAllowlistUpdate(cmd *cobra.Command, args []string) error {
	key := updateFlags.key()
	flags := cmd.Flags()

	var patch catalog.EntryPatch
	if flags.Changed("tier") {
		if err := validTier(updateTier); err != nil {
			return err
		}
		patch.Tier = catalog.Tier(updateTier)
	}
	if flags.Changed("description") {
		patch.Description = catalog.String(updateDesc)
	}
	if flags.Changed("notes") {
		patch.Notes = catalog.String(updateNotes)
	}
	if flags.Changed("common-joins") {
		patch.CommonJoins = append([]string{}, updateJoins...)
	}
	if flags.Changed("key-columns") {
		patch.KeyColumns = append([]string{}, updateKeyColumns...)
	}
	if flags.Changed("columns") {
		columns, err := catalog.ParseColumns(updateColumns)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInvalidInput, "Invalid --columns value")
		}
		patch.Columns = columns
	}
	if patch.IsEmpty() {
		return errors.New(errors.ErrCodeInvalidInput, "Nothing to update").
			WithSuggestions("Pass at least one of --tier, --description, --notes, --common-joins, --key-columns, --columns")
	}

	allowlist := loadAllowlist()
	if err := allowlist.Update(key, patch); err != nil {
		return err
	}
	if err := allowlist.Save(cfg.Files.Allowlist); err != nil {
		return err
	}
	out().Success(fmt.Sprintf("Updated %s in the allowlist", key))
	return nil
}

func runAllowlistList(cmd *cobra.Command, args []string) error {
	allowlist := loadAllowlist()
	w := cmd.OutOrStdout()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Tier", "Table", "Columns", "Description"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	shown := 0
	for _, e := range allowlist.Entries() {
		if listTier != 0 && e.EffectiveTier() != listTier {
			continue
		}
		if listSchema != "" && !strings.EqualFold(e.Schema, listSchema) {
			continue
		}
		tier := "-"
		if e.Tier != nil {
			tier = fmt.Sprint(*e.Tier)
		}
		table.Append([]string{tier, e.Key().String(), fmt.Sprint(len(e.Columns)), ui.Truncate(e.Description, 60)})
		shown++
	}

	if shown == 0 {
		fmt.Fprintln(w, "No tables in the allowlist.")
		return nil
	}
	table.Render()
	fmt.Fprintf(w, "\n%d of %d tables\n", shown, allowlist.Len())
	return nil
}

// columnTargets selects the entries update-columns refreshes.
func columnTargets(allowlist *catalog.Allowlist) []catalog.TableKey {
	var keys []catalog.TableKey
	for _, e := range allowlist.Entries() {
		key := e.Key()
		if !key.Valid() {
			continue
		}
		if !columnsAll {
			if columnsFilter.table != "" && !strings.EqualFold(key.Table, columnsFilter.table) {
				continue
			}
			if columnsFilter.schema != "" && !strings.EqualFold(key.Schema, columnsFilter.schema) {
				continue
			}
			if columnsFilter.database != "" && !strings.EqualFold(key.EffectiveDatabase(), columnsFilter.database) {
				continue
			}
		}
		keys = append(keys, key)
	}
	return keys
}

func runUpdateColumns(cmd *cobra.Command, args []string) error {
	u := out()
	if !columnsAll && columnsFilter == (tableFlags{}) {
		return errors.New(errors.ErrCodeInvalidInput, "No tables selected").
			WithSuggestions("Pass --all, or filter with --database, --schema and --table")
	}

	allowlist := loadAllowlist()
	targets := columnTargets(allowlist)
	if len(targets) == 0 {
		u.Warning("No allowlist entries match the selection")
		return nil
	}

	svc, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer closeService(svc)

	bar := ui.NewBar(len(targets), "Columns", !quiet && ui.ColorEnabled())
	bar.Start()

	var (
		updated []string
		failed  []string
		runErr  error
		stopped catalog.TableKey
		notRun  int
	)
	for i, key := range targets {
		columns, err := svc.CatalogColumns(cmd.Context(), key.Upper())
		if err == nil && len(columns) == 0 {
			err = errors.New(errors.ErrCodeSQLObjectNotFound, fmt.Sprintf("No columns found for %s", key))
		}
		if err == nil {
			err = allowlist.Update(key, catalog.EntryPatch{Columns: columns})
		}
		bar.Step(key.String())

		if err != nil {
			logger.Warn("column refresh failed", "table", key.String(), "error", err)
			failed = append(failed, fmt.Sprintf("%s: %s", key, firstLine(err)))
			if !columnsContinue || cmd.Context().Err() != nil {
				runErr = err
				stopped = key
				notRun = len(targets) - i - 1
				break
			}
			continue
		}

		updated = append(updated, fmt.Sprintf("%s (%d columns)", key, len(columns)))
	}
	bar.Stop()
	if runErr != nil {
		u.Error(fmt.Sprintf("Stopping after failed lookup for %s, %d tables not processed", stopped, notRun))
	}

	if len(updated) > 0 {
		if err := allowlist.Save(cfg.Files.Allowlist); err != nil {
			return err
		}
		u.Success(fmt.Sprintf("Updated %d tables with column information:", len(updated)))
		sort.Strings(updated)
		for _, t := range updated {
			u.Printf("  %s\n", t)
		}
	} else {
		u.Warning("No tables were updated.")
	}

	for _, f := range failed {
		u.Error(f)
	}
	ui.PrintTally(len(updated), len(failed), len(targets)-len(updated)-len(failed))
	return runErr
}
