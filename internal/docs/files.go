package docs

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"tablekeeper/internal/catalog"
	"tablekeeper/internal/common"
	"tablekeeper/pkg/errors"
)

// DefaultAllowlist returns the starter allowlist written by `allowlist init`.
func DefaultAllowlist() *catalog.Allowlist {
	return catalog.NewAllowlist(
		catalog.Entry{Table: "USERS", Schema: "PUBLIC", Description: "User account information"},
		catalog.Entry{Table: "ORDERS", Schema: "PUBLIC", Description: "Customer order data"},
	)
}

// WriteAllowlistTemplate writes DefaultAllowlist to path. An existing file is
// never overwritten.
func WriteAllowlistTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.New(errors.ErrCodeFileOperation,
			fmt.Sprintf("Allowlist file '%s' already exists. Not overwriting.", path)).
			WithContext("path", path).
			WithSeverity(errors.SeverityWarning)
	}
	return DefaultAllowlist().Save(path)
}

// WriteFile renders into memory first so a failed render leaves any existing
// file untouched.
func WriteFile(path string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), common.FilePermissionNormal); err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, fmt.Sprintf("Failed to write %s", path)).
			WithContext("path", path)
	}
	return nil
}
