package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tablekeeper/internal/catalog"
	"tablekeeper/pkg/errors"
)

// ColumnInfo describes one column from INFORMATION_SCHEMA.COLUMNS.
type ColumnInfo struct {
	Name      string
	DataType  string
	Length    sql.NullInt64
	Precision sql.NullInt64
	Scale     sql.NullInt64
	Nullable  bool
	Default   string
	Comment   string
}

// FormattedType renders the data type with its length, or precision and
// scale, when the warehouse reports them.
func (c ColumnInfo) FormattedType() string {
	switch {
	case c.Length.Valid && c.Length.Int64 != 0:
		return fmt.Sprintf("%s(%d)", c.DataType, c.Length.Int64)
	case c.Precision.Valid && c.Precision.Int64 != 0 && c.Scale.Valid:
		return fmt.Sprintf("%s(%d,%d)", c.DataType, c.Precision.Int64, c.Scale.Int64)
	case c.Precision.Valid && c.Precision.Int64 != 0:
		return fmt.Sprintf("%s(%d)", c.DataType, c.Precision.Int64)
	default:
		return c.DataType
	}
}

// TableStat is one row of a size-ordered schema listing.
type TableStat struct {
	Name        string
	Type        string
	RowCount    int64
	Bytes       int64
	LastAltered time.Time
}

// SizeMB returns the table size in megabytes rounded to two decimals.
func (t TableStat) SizeMB() float64 {
	mb := float64(t.Bytes) / (1024 * 1024)
	return float64(int64(mb*100+0.5)) / 100
}

// ColumnMatch is a column found by name pattern.
type ColumnMatch struct {
	Schema   string
	Table    string
	Column   string
	DataType string
}

// ListDatabases returns the names of the databases visible to the role.
func (s *Service) ListDatabases(ctx context.Context) ([]string, error) {
	return s.showNames(ctx, "SHOW DATABASES")
}

// ListSchemas returns the schema names of a database.
func (s *Service) ListSchemas(ctx context.Context, database string) ([]string, error) {
	db, err := QuoteIdent(database)
	if err != nil {
		return nil, err
	}
	return s.showNames(ctx, "SHOW SCHEMAS IN DATABASE "+db)
}

// ListTables returns the table names of a schema.
func (s *Service) ListTables(ctx context.Context, database, schema string) ([]string, error) {
	db, err := QuoteIdent(database)
	if err != nil {
		return nil, err
	}
	sch, err := QuoteIdent(schema)
	if err != nil {
		return nil, err
	}
	return s.showNames(ctx, "SHOW TABLES IN SCHEMA "+db+"."+sch)
}

// showNames runs a SHOW command and returns its "name" column. SHOW output
// columns vary between releases, so the column is found by name.
func (s *Service) showNames(ctx context.Context, query string) ([]string, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.SQLError("Listing failed", query, err)
	}
	defer rows.Close()

	result, err := collect(rows, -1)
	if err != nil {
		return nil, errors.SQLError("Failed to read listing", query, err)
	}

	idx := -1
	for i, col := range result.Columns {
		if strings.EqualFold(col, "name") {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errors.New(errors.ErrCodeSQLExecution, "Listing has no name column").
			WithContext("query", query)
	}

	names := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		if row[idx].Valid {
			names = append(names, row[idx].String)
		}
	}
	return names, nil
}

// DatabaseTables returns every table of a database outside
// INFORMATION_SCHEMA, ordered by schema and name.
func (s *Service) DatabaseTables(ctx context.Context, database string) ([]catalog.TableKey, error) {
	view, err := informationSchema(database, "TABLES")
	if err != nil {
		return nil, err
	}
	query := "SELECT TABLE_SCHEMA, TABLE_NAME FROM " + view +
		" WHERE TABLE_SCHEMA <> 'INFORMATION_SCHEMA' ORDER BY TABLE_SCHEMA, TABLE_NAME"

	return s.tableKeys(ctx, query, func(schema, table string) catalog.TableKey {
		return catalog.NewTableKey(database, schema, table)
	})
}

// SchemaTables returns the tables of one schema.
func (s *Service) SchemaTables(ctx context.Context, database, schema string) ([]catalog.TableKey, error) {
	view, err := informationSchema(database, "TABLES")
	if err != nil {
		return nil, err
	}
	query := "SELECT TABLE_SCHEMA, TABLE_NAME FROM " + view +
		" WHERE UPPER(TABLE_SCHEMA) = UPPER(?) ORDER BY TABLE_NAME"

	return s.tableKeys(ctx, query, func(schema, table string) catalog.TableKey {
		return catalog.NewTableKey(database, schema, table)
	}, schema)
}

// SearchTables finds tables whose name contains term, in the session's
// current database.
func (s *Service) SearchTables(ctx context.Context, term string) ([]catalog.TableKey, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	query := "SELECT TABLE_CATALOG, TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES " +
		"WHERE TABLE_NAME ILIKE ? ORDER BY TABLE_SCHEMA, TABLE_NAME"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, "%"+term+"%")
	if err != nil {
		return nil, errors.SQLError("Table search failed", query, err).WithContext("term", term)
	}
	defer rows.Close()

	var keys []catalog.TableKey
	for rows.Next() {
		var database, schema, table string
		if err := rows.Scan(&database, &schema, &table); err != nil {
			return nil, errors.SQLError("Failed to read search results", query, err)
		}
		keys = append(keys, catalog.NewTableKey(database, schema, table))
	}
	return keys, rows.Err()
}

func (s *Service) tableKeys(ctx context.Context, query string, build func(schema, table string) catalog.TableKey, args ...interface{}) ([]catalog.TableKey, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.SQLError("Table listing failed", query, err)
	}
	defer rows.Close()

	var keys []catalog.TableKey
	for rows.Next() {
		var schema, table string
		if err := rows.Scan(&schema, &table); err != nil {
			return nil, errors.SQLError("Failed to read table listing", query, err)
		}
		keys = append(keys, build(schema, table))
	}
	return keys, rows.Err()
}

// TableExists reports whether the table is listed in the database's
// INFORMATION_SCHEMA.TABLES, matching schema and table names case-insensitively.
func (s *Service) TableExists(ctx context.Context, key catalog.TableKey) (bool, error) {
	if err := s.ensureConnected(); err != nil {
		return false, err
	}

	view, err := informationSchema(key.EffectiveDatabase(), "TABLES")
	if err != nil {
		return false, err
	}
	query := "SELECT COUNT(*) FROM " + view +
		" WHERE UPPER(TABLE_SCHEMA) = UPPER(?) AND UPPER(TABLE_NAME) = UPPER(?)"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count int64
	if err := s.db.QueryRowContext(ctx, query, key.Schema, key.Table).Scan(&count); err != nil {
		return false, errors.SQLError("Failed to check table existence", query, err).
			WithContext("table", key.String())
	}
	return count > 0, nil
}

// TableColumns returns the columns of a table in ordinal order.
func (s *Service) TableColumns(ctx context.Context, key catalog.TableKey) ([]ColumnInfo, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	view, err := informationSchema(key.EffectiveDatabase(), "COLUMNS")
	if err != nil {
		return nil, err
	}
	query := "SELECT COLUMN_NAME, DATA_TYPE, CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, NUMERIC_SCALE, " +
		"IS_NULLABLE, COLUMN_DEFAULT, COMMENT FROM " + view +
		" WHERE UPPER(TABLE_SCHEMA) = UPPER(?) AND UPPER(TABLE_NAME) = UPPER(?) ORDER BY ORDINAL_POSITION"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, key.Schema, key.Table)
	if err != nil {
		return nil, errors.SQLError("Failed to read columns", query, err).WithContext("table", key.String())
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		var nullable, def, comment sql.NullString
		if err := rows.Scan(&c.Name, &c.DataType, &c.Length, &c.Precision, &c.Scale, &nullable, &def, &comment); err != nil {
			return nil, errors.SQLError("Failed to read columns", query, err).WithContext("table", key.String())
		}
		c.Nullable = nullable.String == "YES"
		c.Default = def.String
		c.Comment = comment.String
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// TableComment returns the table's comment, or "" when none is set.
func (s *Service) TableComment(ctx context.Context, key catalog.TableKey) (string, error) {
	if err := s.ensureConnected(); err != nil {
		return "", err
	}

	view, err := informationSchema(key.EffectiveDatabase(), "TABLES")
	if err != nil {
		return "", err
	}
	query := "SELECT COMMENT FROM " + view +
		" WHERE UPPER(TABLE_SCHEMA) = UPPER(?) AND UPPER(TABLE_NAME) = UPPER(?)"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var comment sql.NullString
	err = s.db.QueryRowContext(ctx, query, key.Schema, key.Table).Scan(&comment)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.SQLError("Failed to read table comment", query, err).WithContext("table", key.String())
	}
	return comment.String, nil
}

// RowCount counts the rows of a table.
func (s *Service) RowCount(ctx context.Context, key catalog.TableKey) (int64, error) {
	if err := s.ensureConnected(); err != nil {
		return 0, err
	}

	name, err := QualifiedName(key)
	if err != nil {
		return 0, err
	}
	query := "SELECT COUNT(*) FROM " + name

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, errors.SQLError("Failed to count rows", query, err).WithContext("table", key.String())
	}
	return count, nil
}

// SampleRows returns up to limit rows of a table.
func (s *Service) SampleRows(ctx context.Context, key catalog.TableKey, limit int) (*Result, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	name, err := QualifiedName(key)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", name, limit)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.SQLError("Failed to sample rows", query, err).WithContext("table", key.String())
	}
	defer rows.Close()

	result, err := collect(rows, limit)
	if err != nil {
		return nil, errors.SQLError("Failed to sample rows", query, err).WithContext("table", key.String())
	}
	return result, nil
}

// TableStats lists the largest tables of a schema, biggest first.
func (s *Service) TableStats(ctx context.Context, database, schema string, limit int) ([]TableStat, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	view, err := informationSchema(database, "TABLES")
	if err != nil {
		return nil, err
	}
	query := "SELECT TABLE_NAME, TABLE_TYPE, ROW_COUNT, BYTES, LAST_ALTERED FROM " + view +
		" WHERE UPPER(TABLE_SCHEMA) = UPPER(?) ORDER BY BYTES DESC NULLS LAST LIMIT " + fmt.Sprint(limit)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, errors.SQLError("Failed to read table statistics", query, err).
			WithContext("schema", database+"."+schema)
	}
	defer rows.Close()

	var stats []TableStat
	for rows.Next() {
		var st TableStat
		var rowCount, bytes sql.NullInt64
		var altered sql.NullTime
		if err := rows.Scan(&st.Name, &st.Type, &rowCount, &bytes, &altered); err != nil {
			return nil, errors.SQLError("Failed to read table statistics", query, err)
		}
		st.RowCount = rowCount.Int64
		st.Bytes = bytes.Int64
		st.LastAltered = altered.Time
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// FindColumns lists columns of a database whose name contains pattern.
func (s *Service) FindColumns(ctx context.Context, database, pattern string) ([]ColumnMatch, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}

	view, err := informationSchema(database, "COLUMNS")
	if err != nil {
		return nil, err
	}
	query := "SELECT TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME, DATA_TYPE FROM " + view +
		" WHERE COLUMN_NAME ILIKE ? ORDER BY TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME"

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, "%"+pattern+"%")
	if err != nil {
		return nil, errors.SQLError("Column search failed", query, err).WithContext("pattern", pattern)
	}
	defer rows.Close()

	var matches []ColumnMatch
	for rows.Next() {
		var m ColumnMatch
		if err := rows.Scan(&m.Schema, &m.Table, &m.Column, &m.DataType); err != nil {
			return nil, errors.SQLError("Failed to read column search results", query, err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// CatalogColumns reads the columns of a table as the ordered name-to-type
// mapping stored in the allowlist.
func (s *Service) CatalogColumns(ctx context.Context, key catalog.TableKey) (catalog.Columns, error) {
	infos, err := s.TableColumns(ctx, key)
	if err != nil {
		return nil, err
	}
	cols := make(catalog.Columns, 0, len(infos))
	for _, c := range infos {
		cols = append(cols, catalog.Column{Name: c.Name, Type: c.DataType})
	}
	return cols, nil
}
