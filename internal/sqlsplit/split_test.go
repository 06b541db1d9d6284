package sqlsplit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected []string
	}{
		{
			name:     "empty script",
			sql:      "",
			expected: []string{""},
		},
		{
			name:     "single statement without terminator",
			sql:      "SELECT * FROM users",
			expected: []string{"SELECT * FROM users"},
		},
		{
			name:     "two statements on one line",
			sql:      "SELECT 1; SELECT 2;",
			expected: []string{"SELECT 1;", " SELECT 2;"},
		},
		{
			name:     "statements on separate lines",
			sql:      "SELECT 1;\nSELECT 2;",
			expected: []string{"SELECT 1;", "\nSELECT 2;"},
		},
		{
			name:     "terminator inside single quotes",
			sql:      "SELECT ';' AS x;",
			expected: []string{"SELECT ';' AS x;"},
		},
		{
			name:     "terminator inside double quotes",
			sql:      `CREATE TABLE "a;b" (id INT); SELECT 1;`,
			expected: []string{`CREATE TABLE "a;b" (id INT);`, " SELECT 1;"},
		},
		{
			name:     "comment terminator does not split",
			sql:      "-- comment with ; inside\nSELECT 1;",
			expected: []string{"-- comment with ; inside\nSELECT 1;"},
		},
		{
			name:     "trailing comment terminator is masked",
			sql:      "SELECT 1 -- note; here\n;",
			expected: []string{"SELECT 1 -- note; here\n;"},
		},
		{
			name:     "multi line statement",
			sql:      "SELECT a,\n  b\nFROM t;\nSELECT 2",
			expected: []string{"SELECT a,\n  b\nFROM t;", "\nSELECT 2"},
		},
		{
			name:     "trailing newline becomes its own statement",
			sql:      "SELECT 1;\n",
			expected: []string{"SELECT 1;", "\n"},
		},
		{
			name:     "empty statements are kept",
			sql:      "SELECT 1;;SELECT 2;",
			expected: []string{"SELECT 1;", ";", "SELECT 2;"},
		},
		{
			name:     "quote balance resets at each line",
			sql:      "SELECT 'a\n;b';",
			expected: []string{"SELECT 'a\n;", "b';"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Split(tt.sql))
		})
	}
}

func TestSplitReconstructsScript(t *testing.T) {
	scripts := []string{
		"SELECT 1; SELECT 2;",
		"CREATE OR REPLACE TABLE a.b.c AS\nSELECT 1;\n\n-- done\nSELECT 2;\n",
		"-- only a comment",
		"USE WAREHOUSE X;\nUSE DATABASE Y;\n-- a; b\nSELECT * FROM z",
		"\n\n;\n",
	}

	for _, script := range scripts {
		assert.Equal(t, script, strings.Join(Split(script), ""), "script %q", script)
	}
}

func TestIsBlank(t *testing.T) {
	tests := []struct {
		stmt  string
		blank bool
	}{
		{"", true},
		{"\n  \n", true},
		{"-- just a comment\n", true},
		{"\n;", true},
		{"\n-- comment\nSELECT 1;", false},
		{"SELECT 1 -- trailing", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.blank, IsBlank(tt.stmt), "statement %q", tt.stmt)
	}
}

func TestCreatedTables(t *testing.T) {
	stmt := "create or replace table EDW.CNG.ORDERS_V2 as select 1;\n" +
		"CREATE  OR\nREPLACE TABLE proddb.public.tmp_x (id int)"

	assert.Equal(t, []string{"EDW.CNG.ORDERS_V2", "proddb.public.tmp_x"}, CreatedTables(stmt))
	assert.Empty(t, CreatedTables("CREATE TABLE a.b.c (id int)"))
	assert.Empty(t, CreatedTables("create or replace table orders as select 1"))
}
