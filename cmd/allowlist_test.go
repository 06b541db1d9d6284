package cmd

import (
	"fmt"
	"os"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablekeeper/internal/catalog"
	"tablekeeper/pkg/errors"
)

var ordersKey = catalog.NewTableKey("EDW", "CNG", "ORDERS")

func TestAllowlistAdd(t *testing.T) {
	env := newTestEnv(t)
	env.writeRepository(t, ordersKey)

	output, err := env.run(t, "allowlist", "add",
		"--schema", "CNG", "--table", "ORDERS", "--tier", "1",
		"--description", "One row per order",
		"--key-columns", "ORDER_ID,order_id",
		"--common-joins", "EDW.CNG.DELIVERIES",
		"--columns", "ORDER_ID:NUMBER",
		"--columns", "AMOUNT:NUMBER(10,2)")
	require.NoError(t, err)
	assert.Contains(t, output, "Added EDW.CNG.ORDERS to the allowlist")

	entry, ok := env.readAllowlist(t).Get(ordersKey)
	require.True(t, ok)
	assert.Equal(t, 1, entry.EffectiveTier())
	assert.Equal(t, "One row per order", entry.Description)
	assert.Equal(t, []string{"ORDER_ID"}, entry.KeyColumns)
	assert.Equal(t, []string{"EDW.CNG.DELIVERIES"}, entry.CommonJoins)
	assert.Equal(t, catalog.Columns{{Name: "ORDER_ID", Type: "NUMBER"}, {Name: "AMOUNT", Type: "NUMBER(10,2)"}}, entry.Columns)

	_, err = env.run(t, "allowlist", "add", "--schema", "cng", "--table", "orders", "--description", "again")
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateEntry))
	assert.Equal(t, 1, env.readAllowlist(t).Len())
}

func TestAllowlistAddUpsert(t *testing.T) {
	env := newTestEnv(t)
	env.writeAllowlist(t, catalog.Entry{
		Table: "ORDERS", Schema: "CNG", Database: "EDW",
		Tier: catalog.Tier(1), Description: "old", Notes: "keep me",
		KeyColumns: []string{"ORDER_ID"},
	})

	for i := 0; i < 2; i++ {
		output, err := env.run(t, "allowlist", "add", "--upsert",
			"--schema", "cng", "--table", "orders",
			"--description", "One row per order", "--key-columns", "ORDER_ID,STORE_ID")
		require.NoError(t, err)
		assert.Contains(t, output, "Updated EDW.CNG.ORDERS in the allowlist")
	}

	allowlist := env.readAllowlist(t)
	require.Equal(t, 1, allowlist.Len())
	entry, ok := allowlist.Get(ordersKey)
	require.True(t, ok)
	assert.Equal(t, "One row per order", entry.Description)
	assert.Equal(t, []string{"ORDER_ID", "STORE_ID"}, entry.KeyColumns)
	assert.Equal(t, 1, entry.EffectiveTier())
	assert.Equal(t, "keep me", entry.Notes)
}

func TestAllowlistAddValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code errors.ErrorCode
	}{
		{
			name: "tier out of range",
			args: []string{"--tier", "7"},
			code: errors.ErrCodeValidationFailed,
		},
		{
			name: "column without type",
			args: []string{"--columns", "ORDER_ID"},
			code: errors.ErrCodeInvalidInput,
		},
		{
			name: "unknown table without confirmation",
			args: nil,
			code: errors.ErrCodeUserInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			args := append([]string{"allowlist", "add", "--schema", "CNG", "--table", "ORDERS", "--description", "d"}, tt.args...)

			_, err := env.run(t, args...)
			assert.Equal(t, tt.code, errors.GetErrorCode(err))
			assert.NoFileExists(t, env.allowlist)
		})
	}
}

func TestAllowlistAddUnknownTable(t *testing.T) {
	t.Run("assume yes", func(t *testing.T) {
		env := newTestEnv(t)

		output, err := env.run(t, "allowlist", "add", "--schema", "CNG", "--table", "ORDERS", "--description", "d", "--yes")
		require.NoError(t, err)
		assert.Contains(t, output, "does not exist in the schema repository")
		assert.True(t, env.readAllowlist(t).Contains(ordersKey))
		assert.NoFileExists(t, env.repository)
	})

	t.Run("add to repository", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.run(t, "allowlist", "add", "--schema", "CNG", "--table", "ORDERS", "--description", "d", "--add-to-repository")
		require.NoError(t, err)
		assert.True(t, env.readAllowlist(t).Contains(ordersKey))
		assert.True(t, env.readRepository(t).Contains(ordersKey))
	})
}

func TestAllowlistAddFetchColumns(t *testing.T) {
	env := newTestEnv(t)
	env.writeRepository(t, ordersKey)
	mock := mockWarehouse(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM EDW.INFORMATION_SCHEMA.COLUMNS")).
		WithArgs("CNG", "ORDERS").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "LEN", "PREC", "SCALE", "IS_NULLABLE", "DEF", "COMMENT"}).
			AddRow("ORDER_ID", "NUMBER", nil, 38, 0, "NO", nil, nil).
			AddRow("STATUS", "TEXT", 16, nil, nil, "YES", nil, nil))

	output, err := env.run(t, "allowlist", "add", "--schema", "cng", "--table", "orders", "--description", "d", "--fetch-columns")
	require.NoError(t, err)
	assert.Contains(t, output, "Found 2 columns")

	entry, _ := env.readAllowlist(t).Get(ordersKey)
	assert.Equal(t, []string{"ORDER_ID", "STATUS"}, entry.Columns.Names())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllowlistUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.writeAllowlist(t, catalog.Entry{
		Table: "ORDERS", Schema: "CNG", Tier: catalog.Tier(2),
		Description: "old", Notes: "keep", KeyColumns: []string{"ORDER_ID"},
	})

	_, err := env.run(t, "allowlist", "update", "--schema", "cng", "--table", "orders",
		"--tier", "1", "--description", "new", "--key-columns", "ORDER_ID,STORE_ID")
	require.NoError(t, err)

	entry, ok := env.readAllowlist(t).Get(ordersKey)
	require.True(t, ok)
	assert.Equal(t, 1, entry.EffectiveTier())
	assert.Equal(t, "new", entry.Description)
	assert.Equal(t, "keep", entry.Notes)
	assert.Equal(t, []string{"ORDER_ID", "STORE_ID"}, entry.KeyColumns)
}

func TestAllowlistUpdateErrors(t *testing.T) {
	env := newTestEnv(t)
	env.writeAllowlist(t, catalog.Entry{Table: "ORDERS", Schema: "CNG", Description: "old"})
	before, err := os.ReadFile(env.allowlist)
	require.NoError(t, err)

	_, err = env.run(t, "allowlist", "update", "--schema", "CNG", "--table", "GONE", "--notes", "x")
	assert.Equal(t, errors.ErrCodeEntryNotFound, errors.GetErrorCode(err))

	_, err = env.run(t, "allowlist", "update", "--schema", "CNG", "--table", "ORDERS")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))

	after, err := os.ReadFile(env.allowlist)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestAllowlistInit(t *testing.T) {
	env := newTestEnv(t)

	output, err := env.run(t, "allowlist", "init")
	require.NoError(t, err)
	assert.Contains(t, output, "Created default allowlist file")
	assert.Equal(t, 2, env.readAllowlist(t).Len())

	_, err = env.run(t, "allowlist", "init")
	assert.Equal(t, errors.ErrCodeFileOperation, errors.GetErrorCode(err))
}

func TestAllowlistList(t *testing.T) {
	env := newTestEnv(t)
	env.writeAllowlist(t,
		catalog.Entry{Table: "ORDERS", Schema: "CNG", Tier: catalog.Tier(1), Description: "Orders"},
		catalog.Entry{Table: "USERS", Schema: "PUBLIC", Description: "Users"},
	)

	output, err := env.run(t, "allowlist", "list")
	require.NoError(t, err)
	assert.Contains(t, output, "EDW.CNG.ORDERS")
	assert.Contains(t, output, "EDW.PUBLIC.USERS")
	assert.Contains(t, output, "2 of 2 tables")

	output, err = env.run(t, "allowlist", "list", "--tier", "2")
	require.NoError(t, err)
	assert.NotContains(t, output, "EDW.CNG.ORDERS")
	assert.Contains(t, output, "1 of 2 tables")
}

func TestAllowlistListMissingFile(t *testing.T) {
	env := newTestEnv(t)

	output, err := env.run(t, "allowlist", "list")
	require.NoError(t, err)
	assert.Contains(t, output, "starting from an empty store")
	assert.Contains(t, output, "No tables in the allowlist.")
}

func TestAllowlistAddKeepsUnreadableFile(t *testing.T) {
	env := newTestEnv(t)
	env.writeRepository(t, ordersKey)
	require.NoError(t, os.WriteFile(env.allowlist, []byte(`[{"table": "ORDERS",`), 0o644))

	output, err := env.run(t, "allowlist", "add", "--schema", "CNG", "--table", "ORDERS", "--description", "d")
	assert.Contains(t, output, "starting from an empty store")
	assert.Equal(t, errors.ErrCodeStoreSave, errors.GetErrorCode(err))

	data, err := os.ReadFile(env.allowlist)
	require.NoError(t, err)
	assert.Equal(t, `[{"table": "ORDERS",`, string(data))
}

func columnRows(names ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "LEN", "PREC", "SCALE", "IS_NULLABLE", "DEF", "COMMENT"})
	for _, name := range names {
		rows.AddRow(name, "TEXT", nil, nil, nil, "YES", nil, nil)
	}
	return rows
}

func TestUpdateColumns(t *testing.T) {
	columnsQuery := regexp.QuoteMeta("FROM EDW.INFORMATION_SCHEMA.COLUMNS")
	entries := []catalog.Entry{
		{Table: "ORDERS", Schema: "CNG"},
		{Table: "GONE", Schema: "CNG"},
		{Table: "USERS", Schema: "PUBLIC"},
	}

	t.Run("stops at the first failure and keeps earlier updates", func(t *testing.T) {
		env := newTestEnv(t)
		env.writeAllowlist(t, entries...)
		mock := mockWarehouse(t)
		mock.ExpectQuery(columnsQuery).WithArgs("CNG", "ORDERS").WillReturnRows(columnRows("ORDER_ID"))
		mock.ExpectQuery(columnsQuery).WithArgs("CNG", "GONE").WillReturnRows(columnRows())

		output, err := env.run(t, "allowlist", "update-columns", "--all")
		assert.Equal(t, errors.ErrCodeSQLObjectNotFound, errors.GetErrorCode(err))
		assert.Contains(t, output, "1 tables not processed")
		assert.Contains(t, output, "1 succeeded, 1 failed, 1 skipped")

		allowlist := env.readAllowlist(t)
		orders, _ := allowlist.Get(ordersKey)
		assert.Equal(t, []string{"ORDER_ID"}, orders.Columns.Names())
		users, _ := allowlist.Get(catalog.NewTableKey("", "PUBLIC", "USERS"))
		assert.Empty(t, users.Columns)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("continue on error", func(t *testing.T) {
		env := newTestEnv(t)
		env.writeAllowlist(t, entries...)
		mock := mockWarehouse(t)
		mock.ExpectQuery(columnsQuery).WithArgs("CNG", "ORDERS").WillReturnRows(columnRows("ORDER_ID"))
		mock.ExpectQuery(columnsQuery).WithArgs("CNG", "GONE").WillReturnError(fmt.Errorf("Object 'GONE' does not exist"))
		mock.ExpectQuery(columnsQuery).WithArgs("PUBLIC", "USERS").WillReturnRows(columnRows("USER_ID", "EMAIL"))

		output, err := env.run(t, "allowlist", "update-columns", "--all", "--continue-on-error")
		require.NoError(t, err)
		assert.Contains(t, output, "Updated 2 tables with column information")
		assert.Contains(t, output, "1 failed")

		users, _ := env.readAllowlist(t).Get(catalog.NewTableKey("", "PUBLIC", "USERS"))
		assert.Equal(t, []string{"USER_ID", "EMAIL"}, users.Columns.Names())
	})

	t.Run("filters by schema", func(t *testing.T) {
		env := newTestEnv(t)
		env.writeAllowlist(t, entries...)
		mock := mockWarehouse(t)
		mock.ExpectQuery(columnsQuery).WithArgs("PUBLIC", "USERS").WillReturnRows(columnRows("USER_ID"))

		_, err := env.run(t, "allowlist", "update-columns", "--schema", "public")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("requires a selection", func(t *testing.T) {
		env := newTestEnv(t)
		env.writeAllowlist(t, entries...)

		_, err := env.run(t, "allowlist", "update-columns")
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))
	})
}
