package analysis

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablekeeper/internal/snowflake"
)

const mb = 1024 * 1024

func schemaTables() []snowflake.TableStat {
	altered := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []snowflake.TableStat{
		{Name: "MISC", Type: "BASE TABLE", RowCount: 10, Bytes: 1 * mb},
		{Name: "FACT_GROCERY_ORDERS", Type: "BASE TABLE", RowCount: 1234567, Bytes: 50 * mb, LastAltered: altered},
		{Name: "DIMENSION_STORE", Type: "BASE TABLE", RowCount: 900, Bytes: 5 * mb},
		{Name: "FACT_DELIVERY", Type: "BASE TABLE", RowCount: 5000, Bytes: 40 * mb},
		{Name: "DIM_CONV", Type: "BASE TABLE", RowCount: 12, Bytes: 3 * mb},
		{Name: "STG_ALCOHOL_ITEMS", Type: "BASE TABLE", RowCount: 44, Bytes: 2 * mb},
	}
}

func TestAnalyzeSortsBySize(t *testing.T) {
	a := Analyze("EDW", "CNG", schemaTables())

	require.Len(t, a.Tables, 6)
	assert.Equal(t, "FACT_GROCERY_ORDERS", a.Tables[0].Name)
	assert.Equal(t, "MISC", a.Tables[5].Name)

	assert.Len(t, a.Largest(2), 2)
	assert.Len(t, a.Largest(0), 6)
	assert.Len(t, a.Largest(100), 6)
}

func TestPrefixes(t *testing.T) {
	got := Prefixes(schemaTables())

	require.Len(t, got, 4)
	assert.Equal(t, PrefixCount{Prefix: "fact_", Count: 2, Description: "Fact tables containing metrics and measurements"}, got[0])

	var names []string
	for _, p := range got {
		names = append(names, p.Prefix)
	}
	assert.Equal(t, []string{"fact_", "dimension_", "dim_", "stg_"}, names)
}

func TestCategories(t *testing.T) {
	tests := []struct {
		table    string
		category string
	}{
		{"FACT_GROCERY_ORDERS", "Grocery"},
		{"FACT_DELIVERY", "Deliveries"},
		{"DIM_CONV", "Convenience"},
		{"DIM_CONVERSION", OtherCategory},
		{"STG_ALCOHOL_ITEMS", "Alcohol"},
		{"STORE_TAGS", "Store Tagging"},
		{"MISC", OtherCategory},
	}

	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			got := Categories([]snowflake.TableStat{{Name: tt.table}})
			require.Len(t, got, 1)
			assert.Equal(t, tt.category, got[0].Name)
		})
	}
}

func TestCategoriesLargestFirst(t *testing.T) {
	a := Analyze("EDW", "CNG", schemaTables())

	require.NotEmpty(t, a.Categories)
	assert.Equal(t, OtherCategory, a.Categories[0].Name)
	assert.Equal(t, []string{"DIMENSION_STORE", "MISC"}, a.Categories[0].Tables)
}

func TestThousands(t *testing.T) {
	assert.Equal(t, "0", thousands(0))
	assert.Equal(t, "999", thousands(999))
	assert.Equal(t, "1,000", thousands(1000))
	assert.Equal(t, "1,234,567", thousands(1234567))
	assert.Equal(t, "-1,234", thousands(-1234))
}

func TestExamples(t *testing.T) {
	assert.Equal(t, "A, B", examples([]string{"A", "B"}, 3))
	assert.Equal(t, "A, B, C, ... (2 more)", examples([]string{"A", "B", "C", "D", "E"}, 3))
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	Analyze("EDW", "CNG", schemaTables()).Print(&buf, 3, false)

	out := buf.String()
	assert.Contains(t, out, "Largest Tables by Size")
	assert.Contains(t, out, "FACT_GROCERY_ORDERS")
	assert.Contains(t, out, "1,234,567")
	assert.Contains(t, out, "50.00")
	assert.NotContains(t, out, "| MISC")
	assert.Contains(t, out, "Table Name Prefix Analysis")
	assert.Contains(t, out, "Table Category Analysis")
	assert.Contains(t, out, "DIMENSION_STORE, MISC")
}

func TestWriteJSON(t *testing.T) {
	a := Analyze("EDW", "CNG", schemaTables())
	a.Date = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, a.WriteJSON(&buf, 2))

	var decoded struct {
		Metadata struct {
			AnalysisDate string `json:"analysis_date"`
			TotalTables  int    `json:"total_tables"`
		} `json:"metadata"`
		LargestTables []map[string]interface{} `json:"largest_tables"`
		Prefixes      map[string]int           `json:"prefixes"`
		Categories    map[string][]string      `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, "2026-10-19", decoded.Metadata.AnalysisDate)
	assert.Equal(t, 6, decoded.Metadata.TotalTables)
	require.Len(t, decoded.LargestTables, 2)
	assert.Equal(t, "FACT_GROCERY_ORDERS", decoded.LargestTables[0]["table_name"])
	assert.Equal(t, 50.0, decoded.LargestTables[0]["size_mb"])
	assert.Equal(t, "2026-01-02T03:04:05", decoded.LargestTables[0]["last_altered"])
	assert.NotContains(t, decoded.LargestTables[1], "last_altered")
	assert.Equal(t, 2, decoded.Prefixes["fact_"])
	assert.Equal(t, []string{"DIM_CONV"}, decoded.Categories["Convenience"])
}
