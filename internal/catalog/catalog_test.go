package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablekeeper/pkg/errors"
)

func TestTableKeyEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  TableKey
		equal bool
	}{
		{"same case", NewTableKey("EDW", "CNG", "FOO"), NewTableKey("EDW", "CNG", "FOO"), true},
		{"mixed case", NewTableKey("edw", "cng", "Foo"), NewTableKey("EDW", "CNG", "FOO"), true},
		{"default database", NewTableKey("", "cng", "foo"), NewTableKey("EDW", "CNG", "FOO"), true},
		{"different database", NewTableKey("PRODDB", "cng", "foo"), NewTableKey("EDW", "CNG", "FOO"), false},
		{"different table", NewTableKey("EDW", "CNG", "FOO"), NewTableKey("EDW", "CNG", "BAR"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
			assert.Equal(t, tt.equal, tt.b.Equal(tt.a))
		})
	}
}

func TestParseTableKey(t *testing.T) {
	key, err := ParseTableKey("EDW.CNG.ORDERS")
	require.NoError(t, err)
	assert.Equal(t, NewTableKey("EDW", "CNG", "ORDERS"), key)

	key, err = ParseTableKey("cng.orders")
	require.NoError(t, err)
	assert.Equal(t, "EDW.cng.orders", key.String())

	for _, bad := range []string{"orders", "a..b", "a.b.c.d", ""} {
		_, err := ParseTableKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestColumnsJSONKeepsOrder(t *testing.T) {
	input := `{"ZETA":"NUMBER","alpha":"VARCHAR","Mid":"DATE"}`

	var cols Columns
	require.NoError(t, json.Unmarshal([]byte(input), &cols))
	assert.Equal(t, []string{"ZETA", "alpha", "Mid"}, cols.Names())

	typ, ok := cols.Get("ALPHA")
	assert.True(t, ok)
	assert.Equal(t, "VARCHAR", typ)

	out, err := json.Marshal(cols)
	require.NoError(t, err)
	assert.Equal(t, input, string(out))
}

func TestParseColumns(t *testing.T) {
	cols, err := ParseColumns([]string{"id:NUMBER", "name: VARCHAR(100)", "id:INTEGER"})
	require.NoError(t, err)
	assert.Equal(t, Columns{{"id", "INTEGER"}, {"name", "VARCHAR(100)"}}, cols)

	_, err = ParseColumns([]string{"broken"})
	assert.Error(t, err)
}

func TestAllowlistContainsIsCaseInsensitive(t *testing.T) {
	a := NewAllowlist(Entry{Database: "EDW", Schema: "CNG", Table: "FOO"})

	assert.True(t, a.Contains(NewTableKey("edw", "cng", "Foo")))
	assert.True(t, a.Contains(NewTableKey("", "cng", "foo")))
	assert.False(t, a.Contains(NewTableKey("edw", "public", "foo")))
}

func TestAllowlistAddIsInsertIfAbsent(t *testing.T) {
	a := NewAllowlist()

	assert.True(t, a.Add(Entry{Schema: "CNG", Table: "ORDERS", Description: "first"}))
	assert.False(t, a.Add(Entry{Database: "edw", Schema: "cng", Table: "orders", Description: "second"}))

	require.Equal(t, 1, a.Len())
	assert.Equal(t, "first", a.Entries()[0].Description)
}

func TestAllowlistUpsertTwice(t *testing.T) {
	a := NewAllowlist()
	key := NewTableKey("EDW", "CNG", "ORDERS")

	created := a.Upsert(key, EntryPatch{
		Tier:        Tier(1),
		Description: String("Orders"),
		KeyColumns:  []string{"order_id"},
	})
	assert.True(t, created)

	created = a.Upsert(NewTableKey("edw", "cng", "orders"), EntryPatch{
		Description: String("All orders"),
		KeyColumns:  []string{"ORDER_ID", "store_id", "order_id"},
	})
	assert.False(t, created)

	require.Equal(t, 1, a.Len())
	e := a.Entries()[0]
	assert.Equal(t, 1, e.EffectiveTier())
	assert.Equal(t, "All orders", e.Description)
	assert.Equal(t, []string{"ORDER_ID", "store_id"}, e.KeyColumns)
}

func TestAllowlistUpdate(t *testing.T) {
	a := NewAllowlist(Entry{
		Schema:      "CNG",
		Table:       "ORDERS",
		Tier:        Tier(3),
		Description: "Orders",
		Notes:       "keep",
		CommonJoins: []string{"EDW.CNG.STORES"},
	})

	err := a.Update(NewTableKey("", "cng", "orders"), EntryPatch{CommonJoins: []string{}})
	require.NoError(t, err)

	e, ok := a.Get(NewTableKey("EDW", "CNG", "ORDERS"))
	require.True(t, ok)
	assert.Empty(t, e.CommonJoins)
	assert.Equal(t, "keep", e.Notes)
	assert.Equal(t, 3, e.EffectiveTier())

	err = a.Update(NewTableKey("EDW", "CNG", "MISSING"), EntryPatch{Notes: String("x")})
	assert.Equal(t, errors.ErrCodeEntryNotFound, errors.GetErrorCode(err))
	assert.Equal(t, 1, a.Len())
}

func TestEntryLegacyBareString(t *testing.T) {
	var entries []Entry
	require.NoError(t, json.Unmarshal([]byte(`["USERS", "CNG.ORDERS", {"table":"X","schema":"Y","tier":4}]`), &entries))

	require.Len(t, entries, 3)
	assert.Equal(t, Entry{Table: "USERS"}, entries[0])
	assert.Equal(t, NewTableKey("", "CNG", "ORDERS"), entries[1].Key())
	assert.Equal(t, 4, entries[2].EffectiveTier())
	assert.Equal(t, DefaultTier, entries[0].EffectiveTier())
}

func TestRepositoryInsertIfAbsent(t *testing.T) {
	r := NewRepository()
	r.Now = func() time.Time { return time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC) }

	added := r.InsertIfAbsent(
		NewTableKey("EDW", "CNG", "ORDERS"),
		NewTableKey("edw", "cng", "orders"),
		NewTableKey("EDW", "CNG", "STORES"),
	)
	assert.Equal(t, 2, added)
	assert.Equal(t, "2024-03-09", r.LastUpdated)

	r.LastUpdated = "2000-01-01"
	assert.Equal(t, 0, r.InsertIfAbsent(NewTableKey("", "CNG", "STORES")))
	assert.Equal(t, "2000-01-01", r.LastUpdated, "stamp only changes when something is added")
}

func TestRepositoryReplace(t *testing.T) {
	r := &Repository{Tables: []TableKey{NewTableKey("EDW", "OLD", "T")}}
	r.Replace([]TableKey{NewTableKey("EDW", "A", "T"), NewTableKey("edw", "a", "t")})

	assert.Equal(t, []TableKey{NewTableKey("EDW", "A", "T")}, r.Tables)
	assert.Equal(t, RepositoryNote, r.Note)
	assert.NotEmpty(t, r.LastUpdated)
}

func TestLoadMissingFilesYieldEmptyStores(t *testing.T) {
	dir := t.TempDir()

	a, err := LoadAllowlist(filepath.Join(dir, "missing.json"))
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetErrorCode(err))
	assert.True(t, errors.IsRecoverable(err))
	assert.Equal(t, 0, a.Len())

	r, err := LoadRepository(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, RepositoryNote, r.Note)
}

func TestLoadMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	a, err := LoadAllowlist(path)
	assert.Equal(t, errors.ErrCodeStoreLoad, errors.GetErrorCode(err))
	assert.NotNil(t, a)

	r, err := LoadRepository(path)
	assert.Equal(t, errors.ErrCodeStoreLoad, errors.GetErrorCode(err))
	assert.Empty(t, r.Tables)
}

func TestSaveRefusesToOverwriteUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	a, _ := LoadAllowlist(path)
	a.Add(Entry{Schema: "CNG", Table: "ORDERS"})
	err := a.Save(path)
	assert.Equal(t, errors.ErrCodeStoreSave, errors.GetErrorCode(err))

	r, _ := LoadRepository(path)
	r.InsertIfAbsent(NewTableKey("EDW", "CNG", "ORDERS"))
	err = r.Save(path)
	assert.Equal(t, errors.ErrCodeStoreSave, errors.GetErrorCode(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))

	// Saving elsewhere is allowed, and a full replace may overwrite.
	require.NoError(t, a.Save(filepath.Join(dir, "copy.json")))
	r.Replace([]TableKey{NewTableKey("EDW", "CNG", "STORES")})
	require.NoError(t, r.Save(path))

	missing := filepath.Join(dir, "missing.json")
	m, _ := LoadAllowlist(missing)
	require.NoError(t, m.Save(missing))
}

func TestAllowlistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table_allowlist.json")

	a := NewAllowlist(Entry{
		Database:    "EDW",
		Schema:      "CNG",
		Table:       "ORDERS",
		Tier:        Tier(1),
		Description: "Orders & deliveries",
		KeyColumns:  []string{"ORDER_ID"},
		Columns:     Columns{{"ORDER_ID", "NUMBER(38,0)"}, {"CREATED_AT", "TIMESTAMP_NTZ"}},
	}, Entry{Schema: "PUBLIC", Table: "USERS", Description: "Users"})
	require.NoError(t, a.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"table\": \"ORDERS\"")
	assert.Contains(t, string(data), "Orders & deliveries")
	assert.NotContains(t, string(data), `"database": ""`)

	loaded, err := LoadAllowlist(path)
	require.NoError(t, err)
	assert.Equal(t, a.Entries(), loaded.Entries())

	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	assert.Empty(t, matches)
}

func TestRepositoryFileFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema_repository.json")

	r := NewRepository()
	r.Now = func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }
	r.InsertIfAbsent(NewTableKey("EDW", "CNG", "ORDERS"))
	require.NoError(t, r.Save(path))

	var doc map[string]interface{}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, "2025-01-02", doc["last_updated"])
	assert.Equal(t, RepositoryNote, doc["note"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"database": "EDW", "schema": "CNG", "table": "ORDERS"},
	}, doc["verified_tables"])

	loaded, err := LoadRepository(path)
	require.NoError(t, err)
	assert.True(t, loaded.Contains(NewTableKey("edw", "cng", "orders")))
}

func TestSaveFailureLeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sub")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	err := NewRepository().Save(filepath.Join(target, "repo.json"))
	assert.Equal(t, errors.ErrCodeStoreSave, errors.GetErrorCode(err))
}
