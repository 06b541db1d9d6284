package analysis

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"tablekeeper/internal/catalog"
)

// Print writes the size ranking, the prefix breakdown and the category
// breakdown.
func (a *Analysis) Print(w io.Writer, largest int, useColor bool) {
	heading := func(s string) string {
		if !useColor {
			return s
		}
		return color.New(color.FgCyan, color.Bold).Sprint(s)
	}

	fmt.Fprintf(w, "\n%s\n", heading("Largest Tables by Size"))
	table := newTable(w, []string{"Table Name", "Type", "Row Count", "Size (MB)", "Last Modified"})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT,
	})
	for _, t := range a.Largest(largest) {
		modified := ""
		if !t.LastAltered.IsZero() {
			modified = t.LastAltered.Format("2006-01-02 15:04:05")
		}
		table.Append([]string{t.Name, t.Type, thousands(t.RowCount), fmt.Sprintf("%.2f", t.SizeMB()), modified})
	}
	table.Render()

	fmt.Fprintf(w, "\n%s\n", heading("Table Name Prefix Analysis"))
	if len(a.Prefixes) == 0 {
		fmt.Fprintln(w, "No known prefixes found.")
	} else {
		table = newTable(w, []string{"Prefix", "Count", "Description"})
		for _, p := range a.Prefixes {
			table.Append([]string{p.Prefix, fmt.Sprint(p.Count), p.Description})
		}
		table.Render()
	}

	fmt.Fprintf(w, "\n%s\n", heading("Table Category Analysis"))
	table = newTable(w, []string{"Category", "Count", "Example Tables"})
	for _, c := range a.Categories {
		table.Append([]string{c.Name, fmt.Sprint(len(c.Tables)), examples(c.Tables, 3)})
	}
	table.Render()
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func examples(tables []string, n int) string {
	if len(tables) <= n {
		return strings.Join(tables, ", ")
	}
	return fmt.Sprintf("%s, ... (%d more)", strings.Join(tables[:n], ", "), len(tables)-n)
}

// thousands formats n with comma separators.
func thousands(n int64) string {
	s := fmt.Sprint(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	if neg {
		return "-" + b.String()
	}
	return b.String()
}

type exportMetadata struct {
	AnalysisDate string `json:"analysis_date"`
	Database     string `json:"database"`
	Schema       string `json:"schema"`
	TotalTables  int    `json:"total_tables"`
}

type exportTable struct {
	TableName   string  `json:"table_name"`
	TableType   string  `json:"table_type"`
	RowCount    int64   `json:"row_count"`
	SizeMB      float64 `json:"size_mb"`
	LastAltered string  `json:"last_altered,omitempty"`
}

type export struct {
	Metadata      exportMetadata      `json:"metadata"`
	LargestTables []exportTable       `json:"largest_tables"`
	Prefixes      map[string]int      `json:"prefixes"`
	Categories    map[string][]string `json:"categories"`
}

// WriteJSON writes the analysis in the export format: metadata, the largest
// tables, prefix counts and category members.
func (a *Analysis) WriteJSON(w io.Writer, largest int) error {
	out := export{
		Metadata: exportMetadata{
			AnalysisDate: a.Date.Format(catalog.DateLayout),
			Database:     a.Database,
			Schema:       a.Schema,
			TotalTables:  len(a.Tables),
		},
		LargestTables: []exportTable{},
		Prefixes:      make(map[string]int, len(a.Prefixes)),
		Categories:    make(map[string][]string, len(a.Categories)),
	}

	for _, t := range a.Largest(largest) {
		et := exportTable{
			TableName: t.Name,
			TableType: t.Type,
			RowCount:  t.RowCount,
			SizeMB:    t.SizeMB(),
		}
		if !t.LastAltered.IsZero() {
			et.LastAltered = t.LastAltered.Format("2006-01-02T15:04:05")
		}
		out.LargestTables = append(out.LargestTables, et)
	}
	for _, p := range a.Prefixes {
		out.Prefixes[p.Prefix] = p.Count
	}
	for _, c := range a.Categories {
		out.Categories[c.Name] = c.Tables
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
