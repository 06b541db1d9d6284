// Package docs renders the allowlist as Markdown documentation and as a JSON
// reference for AI-assisted query generation.
package docs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"tablekeeper/internal/catalog"
	"tablekeeper/internal/snowflake"
	"tablekeeper/internal/ui"
	"tablekeeper/pkg/models"
)

const (
	// DefaultSampleRows is the number of sample rows shown per table.
	DefaultSampleRows = 5
	maxSampleValue    = 100
	noSampleData      = "*No sample data available*"
)

// Source supplies warehouse metadata for the documented tables.
type Source interface {
	TableColumns(ctx context.Context, key catalog.TableKey) ([]snowflake.ColumnInfo, error)
	TableComment(ctx context.Context, key catalog.TableKey) (string, error)
	RowCount(ctx context.Context, key catalog.TableKey) (int64, error)
	SampleRows(ctx context.Context, key catalog.TableKey, limit int) (*snowflake.Result, error)
}

// Generator renders documentation. With a nil Source it works offline from
// the allowlist's recorded columns and the repository.
type Generator struct {
	Source     Source
	Repository *catalog.Repository
	Database   string
	Revision   *models.Revision
	SampleRows int
	Logger     *slog.Logger

	// OnTable is called before each table is processed.
	OnTable func(key catalog.TableKey)

	now func() time.Time
}

// Report summarizes a generation run.
type Report struct {
	Tables   int
	Problems []error
}

// NewGenerator creates a generator reading from source, which may be nil.
func NewGenerator(source Source, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Generator{
		Source:     source,
		SampleRows: DefaultSampleRows,
		Logger:     logger,
		now:        time.Now,
	}
}

// Offline reports whether the generator runs without a warehouse.
func (g *Generator) Offline() bool {
	return g.Source == nil
}

// Anchor returns the Markdown anchor of a table: database, schema and table
// lower-cased and joined with underscores.
func Anchor(key catalog.TableKey) string {
	anchor := fmt.Sprintf("%s_%s_%s",
		strings.ToLower(key.EffectiveDatabase()),
		strings.ToLower(key.Schema),
		strings.ToLower(key.Table))
	return strings.ReplaceAll(anchor, ".", "_")
}

func qualified(key catalog.TableKey) string {
	return fmt.Sprintf("%s.%s.%s", key.EffectiveDatabase(), key.Schema, key.Table)
}

// Markdown writes the documentation for every allowlist entry to w.
func (g *Generator) Markdown(ctx context.Context, w io.Writer, allowlist *catalog.Allowlist) (*Report, error) {
	report := &Report{}
	var buf bytes.Buffer

	g.writeHeader(&buf)

	buf.WriteString("## Tables\n\n")
	buf.WriteString("### Table of Contents\n\n")
	for _, entry := range allowlist.Entries() {
		key := entry.Key()
		line := fmt.Sprintf("- [%s](#%s)", qualified(key), Anchor(key))
		if entry.Description != "" {
			line += " " + entry.Description
		}
		buf.WriteString(line + "\n")
	}
	buf.WriteString("\n---\n\n")

	for _, entry := range allowlist.Entries() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if g.OnTable != nil {
			g.OnTable(entry.Key())
		}
		g.writeTable(ctx, &buf, entry, report)
		report.Tables++
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return report, err
	}
	return report, nil
}

func (g *Generator) writeHeader(buf *bytes.Buffer) {
	buf.WriteString("# Snowflake Schema Documentation\n\n")
	buf.WriteString(fmt.Sprintf("Generated on: %s\n\n", g.now().Format("2006-01-02 15:04:05")))

	database := g.Database
	if database == "" {
		database = catalog.DefaultDatabase
	}
	buf.WriteString(fmt.Sprintf("Database: %s\n\n", database))

	if g.Revision != nil {
		rev := g.Revision
		line := fmt.Sprintf("Allowlist revision: %s (%s, %s)", rev.ShortHash(), rev.Author, ui.FormatRelativeTime(rev.Date))
		if rev.Modified {
			line += " with uncommitted changes"
		}
		buf.WriteString(line + "\n\n")
	}

	if g.Offline() {
		buf.WriteString("*Generated offline: column lists come from the allowlist and no warehouse statistics are shown.*\n\n")
	}
}

func (g *Generator) problem(report *Report, key catalog.TableKey, what string, err error) {
	g.Logger.Warn("documentation lookup failed", "table", key.String(), "lookup", what, "error", err)
	report.Problems = append(report.Problems, fmt.Errorf("%s for %s: %w", what, qualified(key), err))
}

func (g *Generator) writeTable(ctx context.Context, buf *bytes.Buffer, entry catalog.Entry, report *Report) {
	key := entry.Key()

	buf.WriteString(fmt.Sprintf("## <a id='%s'></a>%s\n\n", Anchor(key), qualified(key)))

	if entry.Description != "" {
		buf.WriteString(fmt.Sprintf("**Description**: %s\n\n", entry.Description))
	}

	var (
		columns  []snowflake.ColumnInfo
		rowCount = "Unknown"
	)

	if g.Offline() {
		columns = offlineColumns(entry)
	} else {
		comment, err := g.Source.TableComment(ctx, key)
		if err != nil {
			g.problem(report, key, "table comment", err)
		} else if comment != "" {
			buf.WriteString(fmt.Sprintf("**Database Comment**: %s\n\n", comment))
		}

		columns, err = g.Source.TableColumns(ctx, key)
		if err != nil {
			g.problem(report, key, "columns", err)
		}

		count, err := g.Source.RowCount(ctx, key)
		if err != nil {
			g.problem(report, key, "row count", err)
		} else {
			rowCount = fmt.Sprint(count)
		}
	}

	if entry.Notes != "" {
		buf.WriteString(fmt.Sprintf("**Notes**:\n%s\n\n", entry.Notes))
	}

	if g.Offline() {
		buf.WriteString(fmt.Sprintf("**Repository Status**: %s\n\n", g.repositoryStatus(key)))
	} else {
		buf.WriteString(fmt.Sprintf("**Row Count**: %s\n\n", rowCount))
	}

	if len(entry.CommonJoins) > 0 {
		buf.WriteString("**Common Joins**:\n")
		for _, join := range entry.CommonJoins {
			buf.WriteString(joinLine(join) + "\n")
		}
		buf.WriteString("\n")
	}

	if len(entry.KeyColumns) > 0 {
		buf.WriteString("**Key Columns**:\n")
		for _, name := range entry.KeyColumns {
			comment := ""
			for _, c := range columns {
				if strings.EqualFold(c.Name, name) {
					comment = c.Comment
					break
				}
			}
			if comment != "" {
				buf.WriteString(fmt.Sprintf("- `%s`: %s\n", name, comment))
			} else {
				buf.WriteString(fmt.Sprintf("- `%s`\n", name))
			}
		}
		buf.WriteString("\n")
	}

	buf.WriteString("### Columns\n\n")
	g.writeColumns(buf, entry, columns)
	buf.WriteString("\n")

	if !g.Offline() {
		buf.WriteString("### Sample Data\n\n")
		sample, err := g.Source.SampleRows(ctx, key, g.SampleRows)
		if err != nil {
			g.problem(report, key, "sample data", err)
		}
		if err != nil || sample == nil || len(sample.Columns) == 0 || len(sample.Rows) == 0 {
			buf.WriteString(noSampleData + "\n")
		} else {
			writeSample(buf, sample)
		}
	}

	buf.WriteString("\n---\n\n")
}

func (g *Generator) repositoryStatus(key catalog.TableKey) string {
	if g.Repository == nil {
		return "unknown"
	}
	if g.Repository.Contains(key) {
		return "verified (present in schema repository)"
	}
	return "unverified (not in schema repository)"
}

// joinLine links fully qualified joins to their section.
func joinLine(join string) string {
	parts := strings.Split(join, ".")
	if len(parts) != 3 {
		return "- " + join
	}
	return fmt.Sprintf("- [%s](#%s)", join, Anchor(catalog.NewTableKey(parts[0], parts[1], parts[2])))
}

func offlineColumns(entry catalog.Entry) []snowflake.ColumnInfo {
	columns := make([]snowflake.ColumnInfo, 0, len(entry.Columns))
	for _, c := range entry.Columns {
		columns = append(columns, snowflake.ColumnInfo{Name: c.Name, DataType: c.Type, Nullable: true})
	}
	return columns
}

func (g *Generator) writeColumns(buf *bytes.Buffer, entry catalog.Entry, columns []snowflake.ColumnInfo) {
	if len(columns) == 0 {
		buf.WriteString("*No column information available*\n")
		return
	}

	rows := make([][]string, 0, len(columns))
	for _, c := range columns {
		name := c.Name
		if entry.IsKeyColumn(c.Name) {
			name = "**" + name + "**"
		}
		nullable := "NO"
		if c.Nullable {
			nullable = "YES"
		}
		rows = append(rows, []string{
			escapeCell(name),
			escapeCell(c.FormattedType()),
			nullable,
			escapeCell(c.Default),
			escapeCell(c.Comment),
		})
	}

	markdownTable(buf, []string{"Column Name", "Data Type", "Nullable", "Default", "Description"}, rows)
}

func writeSample(buf *bytes.Buffer, sample *snowflake.Result) {
	header := make([]string, len(sample.Columns))
	for i, c := range sample.Columns {
		header[i] = escapeCell(c)
	}

	rows := make([][]string, 0, len(sample.Rows))
	for _, row := range sample.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if !v.Valid {
				cells[i] = "NULL"
				continue
			}
			cells[i] = SampleValue(v.String)
		}
		rows = append(rows, cells)
	}

	markdownTable(buf, header, rows)
}

// SampleValue formats a sample value for a Markdown cell: pipes escaped,
// newlines as <br>, and long values truncated.
func SampleValue(v string) string {
	v = escapeCell(v)
	if r := []rune(v); len(r) > maxSampleValue {
		v = string(r[:maxSampleValue]) + "..."
	}
	return v
}

func escapeCell(v string) string {
	v = strings.ReplaceAll(v, "|", "\\|")
	v = strings.ReplaceAll(v, "\r\n", "<br>")
	return strings.ReplaceAll(v, "\n", "<br>")
}

// markdownTable renders a pipe table with tablewriter.
func markdownTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
}
