package snowflake

import (
	"regexp"
	"strings"

	"tablekeeper/internal/catalog"
	"tablekeeper/pkg/errors"
)

var plainIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// QuoteIdent renders name for use where a bind parameter is not allowed.
// Plain identifiers are left unquoted so the warehouse resolves them
// case-insensitively; anything else is double-quoted.
func QuoteIdent(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New(errors.ErrCodeInvalidIdentifier, "Empty identifier")
	}
	if plainIdentifier.MatchString(name) {
		return name, nil
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`, nil
}

// QualifiedName renders DATABASE.SCHEMA.TABLE with each part quoted as needed.
func QualifiedName(key catalog.TableKey) (string, error) {
	parts := []string{key.EffectiveDatabase(), key.Schema, key.Table}
	for i, p := range parts {
		q, err := QuoteIdent(p)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeInvalidIdentifier, "Invalid table name").
				WithContext("table", key.String())
		}
		parts[i] = q
	}
	return strings.Join(parts, "."), nil
}

// informationSchema returns "<database>.INFORMATION_SCHEMA.<view>".
func informationSchema(database, view string) (string, error) {
	db, err := QuoteIdent(database)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidIdentifier, "Invalid database name").
			WithContext("database", database)
	}
	return db + ".INFORMATION_SCHEMA." + view, nil
}
