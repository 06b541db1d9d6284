// Package catalog holds the table allowlist and the schema repository: the two
// JSON documents this tool curates, and the case-insensitive table identity
// they share.
package catalog

import (
	"fmt"
	"strings"
)

// DefaultDatabase is assumed for entries that do not name a database.
const DefaultDatabase = "EDW"

// TableKey identifies a warehouse table. Keys compare case-insensitively, and
// an empty Database compares as DefaultDatabase without being rewritten.
type TableKey struct {
	Database string `json:"database,omitempty"`
	Schema   string `json:"schema"`
	Table    string `json:"table"`
}

// NewTableKey builds a key from its parts.
func NewTableKey(database, schema, table string) TableKey {
	return TableKey{Database: database, Schema: schema, Table: table}
}

// ParseTableKey accepts DATABASE.SCHEMA.TABLE or SCHEMA.TABLE.
func ParseTableKey(name string) (TableKey, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	for _, p := range parts {
		if p == "" {
			return TableKey{}, fmt.Errorf("invalid table name %q", name)
		}
	}

	switch len(parts) {
	case 2:
		return TableKey{Schema: parts[0], Table: parts[1]}, nil
	case 3:
		return TableKey{Database: parts[0], Schema: parts[1], Table: parts[2]}, nil
	default:
		return TableKey{}, fmt.Errorf("invalid table name %q: expected DATABASE.SCHEMA.TABLE or SCHEMA.TABLE", name)
	}
}

// EffectiveDatabase returns the database used for comparisons.
func (k TableKey) EffectiveDatabase() string {
	if k.Database == "" {
		return DefaultDatabase
	}
	return k.Database
}

// Equal compares all three parts ignoring case.
func (k TableKey) Equal(other TableKey) bool {
	return strings.EqualFold(k.EffectiveDatabase(), other.EffectiveDatabase()) &&
		strings.EqualFold(k.Schema, other.Schema) &&
		strings.EqualFold(k.Table, other.Table)
}

// Valid reports whether the key names both a schema and a table.
func (k TableKey) Valid() bool {
	return strings.TrimSpace(k.Schema) != "" && strings.TrimSpace(k.Table) != ""
}

// String renders DATABASE.SCHEMA.TABLE with the effective database.
func (k TableKey) String() string {
	return k.EffectiveDatabase() + "." + k.Schema + "." + k.Table
}

// Upper returns the key with every part upper-cased, the way the warehouse
// stores unquoted identifiers.
func (k TableKey) Upper() TableKey {
	return TableKey{
		Database: strings.ToUpper(k.EffectiveDatabase()),
		Schema:   strings.ToUpper(k.Schema),
		Table:    strings.ToUpper(k.Table),
	}
}

func (k TableKey) index() string {
	return strings.ToLower(k.EffectiveDatabase() + "\x00" + k.Schema + "\x00" + k.Table)
}
