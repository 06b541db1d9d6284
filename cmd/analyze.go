package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tablekeeper/internal/analysis"
	"tablekeeper/internal/catalog"
	"tablekeeper/internal/docs"
	"tablekeeper/internal/ui"
)

var (
	analyzeDatabase string
	analyzeSchema   string
	analyzeLimit    int
	analyzeTop      int
	analyzeOutput   string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Summarize the tables of a schema by size, prefix and business category",
	Example: `  tablekeeper analyze --schema CNG
  tablekeeper analyze --database EDW --schema CNG --limit 500 --output cng.json`,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeDatabase, "database", catalog.DefaultDatabase, "database name")
	f.StringVar(&analyzeSchema, "schema", "CNG", "schema name")
	f.IntVar(&analyzeLimit, "limit", 100, "maximum tables to analyze, largest first")
	f.IntVar(&analyzeTop, "top", analysis.DefaultLargest, "tables shown in the size ranking")
	f.StringVarP(&analyzeOutput, "output", "o", "", "also write the analysis as JSON to this file")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	database := strings.ToUpper(analyzeDatabase)
	schema := strings.ToUpper(analyzeSchema)

	svc, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer closeService(svc)

	out().Printf("Analyzing %s.%s...\n", database, schema)
	stats, err := svc.TableStats(cmd.Context(), database, schema, analyzeLimit)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		out().Warning(fmt.Sprintf("No tables found in %s.%s", database, schema))
		return nil
	}

	a := analysis.Analyze(database, schema, stats)
	a.Print(cmd.OutOrStdout(), analyzeTop, ui.ColorEnabled())

	if analyzeOutput == "" {
		return nil
	}
	err = docs.WriteFile(analyzeOutput, func(w io.Writer) error {
		return a.WriteJSON(w, analyzeTop)
	})
	if err != nil {
		return err
	}
	out().Success(fmt.Sprintf("Analysis written to %s", analyzeOutput))
	return nil
}
