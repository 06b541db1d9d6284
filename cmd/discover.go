package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"tablekeeper/internal/catalog"
	"tablekeeper/internal/snowflake"
	"tablekeeper/internal/ui"
)

var (
	discoverDatabase string
	discoverSchema   string
	discoverShowSize bool
	discoverLimit    int
	describeFlags    tableFlags
	searchAdd        bool
	searchTier       int
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Explore databases, schemas and tables in the warehouse",
}

var discoverDatabasesCmd = &cobra.Command{
	Use:   "databases",
	Short: "List databases",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *snowflake.Service) error {
			names, err := svc.ListDatabases(ctx)
			if err != nil {
				return err
			}
			printNames(cmd.OutOrStdout(), "Databases", names)
			return nil
		})
	},
}

var discoverSchemasCmd = &cobra.Command{
	Use:   "schemas",
	Short: "List the schemas of a database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *snowflake.Service) error {
			names, err := svc.ListSchemas(ctx, discoverDatabase)
			if err != nil {
				return err
			}
			printNames(cmd.OutOrStdout(), fmt.Sprintf("Schemas in %s", discoverDatabase), names)
			return nil
		})
	},
}

var discoverTablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables of a schema",
	RunE:  runDiscoverTables,
}

var discoverDescribeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Show the columns, comment and row count of a table",
	RunE:  runDiscoverDescribe,
}

var discoverColumnsCmd = &cobra.Command{
	Use:   "columns PATTERN",
	Short: "Find columns whose name matches a pattern",
	Long:  `Find columns whose name contains PATTERN (case-insensitive) in every schema of a database.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDiscoverColumns,
}

var discoverSearchCmd = &cobra.Command{
	Use:   "search TERM",
	Short: "Search tables by name across the warehouse",
	Long: `Search information_schema.tables for table names containing TERM. With --add
the results are added to the allowlist; existing entries are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscoverSearch,
}

var discoverInteractiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Browse the warehouse with menus",
	RunE:  runDiscoverInteractive,
}

func init() {
	for _, c := range []*cobra.Command{discoverSchemasCmd, discoverTablesCmd, discoverColumnsCmd} {
		c.Flags().StringVar(&discoverDatabase, "database", catalog.DefaultDatabase, "database name")
	}
	discoverTablesCmd.Flags().StringVar(&discoverSchema, "schema", "", "schema name")
	discoverTablesCmd.Flags().BoolVar(&discoverShowSize, "show-size", false, "show row counts and sizes")
	discoverTablesCmd.Flags().IntVar(&discoverLimit, "limit", 100, "maximum tables to show with --show-size")
	_ = discoverTablesCmd.MarkFlagRequired("schema")

	describeFlags.register(discoverDescribeCmd, true)

	discoverSearchCmd.Flags().BoolVar(&searchAdd, "add", false, "add the results to the allowlist")
	discoverSearchCmd.Flags().IntVar(&searchTier, "tier", catalog.DefaultTier, "tier for added tables")

	discoverCmd.AddCommand(discoverDatabasesCmd)
	discoverCmd.AddCommand(discoverSchemasCmd)
	discoverCmd.AddCommand(discoverTablesCmd)
	discoverCmd.AddCommand(discoverDescribeCmd)
	discoverCmd.AddCommand(discoverColumnsCmd)
	discoverCmd.AddCommand(discoverSearchCmd)
	discoverCmd.AddCommand(discoverInteractiveCmd)
	rootCmd.AddCommand(discoverCmd)
}

// withService runs fn with an open connection.
func withService(cmd *cobra.Command, fn func(context.Context, *snowflake.Service) error) error {
	svc, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer closeService(svc)
	return fn(cmd.Context(), svc)
}

func printNames(w io.Writer, title string, names []string) {
	fmt.Fprintf(w, "%s (%d):\n", title, len(names))
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", name)
	}
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func runDiscoverTables(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *snowflake.Service) error {
		w := cmd.OutOrStdout()
		if !discoverShowSize {
			names, err := svc.ListTables(ctx, discoverDatabase, discoverSchema)
			if err != nil {
				return err
			}
			printNames(w, fmt.Sprintf("Tables in %s.%s", discoverDatabase, discoverSchema), names)
			return nil
		}

		stats, err := svc.TableStats(ctx, discoverDatabase, discoverSchema, discoverLimit)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Tables in %s.%s (%d):\n", discoverDatabase, discoverSchema, len(stats))
		table := newTable(w, "Table", "Type", "Rows", "Size (MB)")
		for _, s := range stats {
			table.Append([]string{s.Name, s.Type, fmt.Sprint(s.RowCount), fmt.Sprintf("%.2f", s.SizeMB())})
		}
		table.Render()
		return nil
	})
}

func runDiscoverDescribe(cmd *cobra.Command, args []string) error {
	key := describeFlags.key().Upper()
	return withService(cmd, func(ctx context.Context, svc *snowflake.Service) error {
		return describeTable(ctx, cmd.OutOrStdout(), svc, key)
	})
}

func describeTable(ctx context.Context, w io.Writer, svc *snowflake.Service, key catalog.TableKey) error {
	columns, err := svc.TableColumns(ctx, key)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Table: %s\n", key)
	if comment, err := svc.TableComment(ctx, key); err == nil && comment != "" {
		fmt.Fprintf(w, "Comment: %s\n", comment)
	}
	if rows, err := svc.RowCount(ctx, key); err == nil {
		fmt.Fprintf(w, "Rows: %d\n", rows)
	} else {
		logger.Warn("row count failed", "table", key.String(), "error", err)
	}
	fmt.Fprintln(w)

	if len(columns) == 0 {
		fmt.Fprintln(w, "No column information available.")
		return nil
	}
	table := newTable(w, "Column", "Type", "Nullable", "Default", "Comment")
	for _, c := range columns {
		nullable := "NO"
		if c.Nullable {
			nullable = "YES"
		}
		table.Append([]string{c.Name, c.FormattedType(), nullable, c.Default, ui.Truncate(c.Comment, 60)})
	}
	table.Render()
	return nil
}

func runDiscoverColumns(cmd *cobra.Command, args []string) error {
	pattern := args[0]
	return withService(cmd, func(ctx context.Context, svc *snowflake.Service) error {
		matches, err := svc.FindColumns(ctx, discoverDatabase, pattern)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(matches) == 0 {
			fmt.Fprintf(w, "No columns matching '%s' in %s\n", pattern, discoverDatabase)
			return nil
		}
		fmt.Fprintf(w, "Columns matching '%s' in %s (%d):\n", pattern, discoverDatabase, len(matches))
		table := newTable(w, "Schema", "Table", "Column", "Type")
		for _, m := range matches {
			table.Append([]string{m.Schema, m.Table, m.Column, m.DataType})
		}
		table.Render()
		return nil
	})
}

func runDiscoverSearch(cmd *cobra.Command, args []string) error {
	term := strings.TrimSpace(args[0])
	if searchAdd {
		if err := validTier(searchTier); err != nil {
			return err
		}
	}

	return withService(cmd, func(ctx context.Context, svc *snowflake.Service) error {
		keys, err := svc.SearchTables(ctx, term)
		if err != nil {
			return err
		}
		printKeys(cmd.OutOrStdout(), fmt.Sprintf("Tables matching '%s'", term), keys)

		if !searchAdd || len(keys) == 0 {
			return nil
		}
		return importTables(keys, searchTier)
	})
}

func printKeys(w io.Writer, title string, keys []catalog.TableKey) {
	fmt.Fprintf(w, "%s (%d):\n", title, len(keys))
	for _, key := range keys {
		fmt.Fprintf(w, "  %s\n", key)
	}
}

// importTables adds keys to the allowlist, leaving existing entries alone.
func importTables(keys []catalog.TableKey, tier int) error {
	allowlist := loadAllowlist()
	added := 0
	for _, key := range keys {
		entry := catalog.Entry{
			Table:       key.Table,
			Schema:      key.Schema,
			Database:    key.Database,
			Tier:        catalog.Tier(tier),
			Description: fmt.Sprintf("Table from %s.%s", key.EffectiveDatabase(), key.Schema),
		}
		if allowlist.Add(entry) {
			added++
		}
	}

	if added == 0 {
		out().Info("All tables are already in the allowlist")
		return nil
	}
	if err := allowlist.Save(cfg.Files.Allowlist); err != nil {
		return err
	}
	out().Success(fmt.Sprintf("Added %d tables to the allowlist (%d already present)", added, len(keys)-added))
	return nil
}
