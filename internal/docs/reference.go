package docs

import (
	"context"
	"encoding/json"
	"io"

	"tablekeeper/internal/catalog"
)

// ReferenceSchemaVersion is the format version written to the reference.
const ReferenceSchemaVersion = "1.0"

// Reference is the machine-readable description of the allowlisted tables.
type Reference struct {
	SchemaVersion   string                    `json:"schema_version"`
	Tables          map[string]ReferenceTable `json:"tables"`
	CommonPractices []string                  `json:"common_practices"`
	QueryTemplates  map[string]string         `json:"query_templates"`
}

// ReferenceTable describes one table.
type ReferenceTable struct {
	Columns     []ReferenceColumn `json:"columns"`
	Description string            `json:"description"`
	Notes       string            `json:"notes"`
	CommonJoins []string          `json:"common_joins"`
	KeyColumns  []string          `json:"key_columns"`
}

// ReferenceColumn is one column of a ReferenceTable.
type ReferenceColumn struct {
	Name        string `json:"name"`
	DataType    string `json:"data_type"`
	Description string `json:"description"`
}

var commonPractices = []string{
	"Always use double quotes for identifiers as Snowflake is case-sensitive",
	"Prefer to qualify table names with database and schema",
	"Use IFF() instead of binary CASE WHEN statements",
	"Use 'GROUP BY ALL' when appropriate to avoid listing all non-aggregated columns",
	"Filter test data with appropriate flags (e.g., is_filtered_core=TRUE)",
	"Include comments in complex queries to explain business logic",
}

var queryTemplates = map[string]string{
	"basic_select": "SELECT {columns} FROM {database}.{schema}.{table} WHERE {condition} LIMIT 100;",
	"join_example": "SELECT a.{col1}, b.{col2} FROM {table1} a JOIN {table2} b ON a.{join_key} = b.{join_key} WHERE {condition};",
}

// Reference builds the reference for the allowlist. Entries without a schema
// or table are skipped, and a table whose columns cannot be read is left out
// and recorded as a problem.
func (g *Generator) Reference(ctx context.Context, allowlist *catalog.Allowlist) (*Reference, *Report, error) {
	ref := &Reference{
		SchemaVersion:   ReferenceSchemaVersion,
		Tables:          make(map[string]ReferenceTable),
		CommonPractices: append([]string(nil), commonPractices...),
		QueryTemplates:  make(map[string]string, len(queryTemplates)),
	}
	for k, v := range queryTemplates {
		ref.QueryTemplates[k] = v
	}

	report := &Report{}
	for _, entry := range allowlist.Entries() {
		if err := ctx.Err(); err != nil {
			return ref, report, err
		}

		key := entry.Key()
		if !key.Valid() {
			g.Logger.Warn("skipping incomplete allowlist entry", "table", entry.Table, "schema", entry.Schema)
			continue
		}
		if g.OnTable != nil {
			g.OnTable(key)
		}

		columns, err := g.referenceColumns(ctx, entry)
		if err != nil {
			g.problem(report, key, "columns", err)
			continue
		}

		ref.Tables[qualified(key)] = ReferenceTable{
			Columns:     columns,
			Description: entry.Description,
			Notes:       entry.Notes,
			CommonJoins: nonNil(entry.CommonJoins),
			KeyColumns:  nonNil(entry.KeyColumns),
		}
		report.Tables++
	}

	return ref, report, nil
}

func (g *Generator) referenceColumns(ctx context.Context, entry catalog.Entry) ([]ReferenceColumn, error) {
	columns := []ReferenceColumn{}

	if g.Offline() {
		for _, c := range entry.Columns {
			columns = append(columns, ReferenceColumn{Name: c.Name, DataType: c.Type})
		}
		return columns, nil
	}

	infos, err := g.Source.TableColumns(ctx, entry.Key())
	if err != nil {
		return nil, err
	}
	for _, c := range infos {
		columns = append(columns, ReferenceColumn{
			Name:        c.Name,
			DataType:    c.DataType,
			Description: c.Comment,
		})
	}
	return columns, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// WriteJSON writes the reference as indented JSON.
func (r *Reference) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
