package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tablekeeper/internal/common"
	"tablekeeper/pkg/errors"
)

// LoadAllowlist reads the allowlist at path. A missing or malformed file
// yields an empty allowlist together with a StoreLoad or FileNotFound error
// the caller may report and continue past.
func LoadAllowlist(path string) (*Allowlist, error) {
	var entries []Entry
	if err := readJSON(path, &entries); err != nil {
		return &Allowlist{unreadable: unreadablePath(path, err)}, err
	}
	return &Allowlist{entries: entries}, nil
}

// Save writes the allowlist to path as an indented JSON array. It refuses to
// replace a file the allowlist failed to parse.
func (a *Allowlist) Save(path string) error {
	if err := checkOverwrite(a.unreadable, path); err != nil {
		return err
	}
	entries := a.entries
	if entries == nil {
		entries = []Entry{}
	}
	return writeJSON(path, entries)
}

// LoadRepository reads the repository at path. A missing or malformed file
// yields an empty repository together with a non-fatal error, as
// LoadAllowlist does.
func LoadRepository(path string) (*Repository, error) {
	repo := NewRepository()
	if err := readJSON(path, repo); err != nil {
		empty := NewRepository()
		empty.unreadable = unreadablePath(path, err)
		return empty, err
	}
	if repo.Tables == nil {
		repo.Tables = []TableKey{}
	}
	return repo, nil
}

// Save writes the repository to path. Like Allowlist.Save it will not
// replace an unparseable file, unless Replace rebuilt the repository.
func (r *Repository) Save(path string) error {
	if err := checkOverwrite(r.unreadable, path); err != nil {
		return err
	}
	if r.Tables == nil {
		r.Tables = []TableKey{}
	}
	return writeJSON(path, r)
}

// unreadablePath returns path when err means the file exists but could not
// be parsed or read.
func unreadablePath(path string, err error) string {
	if errors.GetErrorCode(err) != errors.ErrCodeStoreLoad {
		return ""
	}
	return filepath.Clean(path)
}

func checkOverwrite(unreadable, path string) error {
	if unreadable == "" || unreadable != filepath.Clean(path) {
		return nil
	}
	return errors.New(errors.ErrCodeStoreSave,
		fmt.Sprintf("Refusing to overwrite %s because it could not be read", path)).
		WithContext("path", path).
		WithSuggestions("Fix the file by hand or move it aside, then run the command again")
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path) // #nosec G304 - operator supplied path
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New(errors.ErrCodeFileNotFound, fmt.Sprintf("File %s not found", path)).
				WithContext("path", path).
				WithSeverity(errors.SeverityWarning).
				AsRecoverable()
		}
		return errors.Wrap(err, errors.ErrCodeStoreLoad, fmt.Sprintf("Failed to read %s", path)).
			WithContext("path", path).
			WithSeverity(errors.SeverityWarning).
			AsRecoverable()
	}

	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreLoad, fmt.Sprintf("Invalid JSON in %s", path)).
			WithContext("path", path).
			WithSeverity(errors.SeverityWarning).
			WithSuggestions("Fix the file by hand or move it aside to start from an empty store").
			AsRecoverable()
	}
	return nil
}

// writeJSON replaces path atomically: the document is written to a temporary
// file in the same directory and renamed over the target.
func writeJSON(path string, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreSave, fmt.Sprintf("Failed to encode %s", path))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, common.DirPermissionNormal); err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreSave, fmt.Sprintf("Failed to create directory %s", dir))
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStoreSave, fmt.Sprintf("Failed to write %s", path)).
			WithContext("path", path)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeStoreSave, fmt.Sprintf("Failed to write %s", path)).
			WithContext("path", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeStoreSave, fmt.Sprintf("Failed to write %s", path)).
			WithContext("path", path)
	}
	if err := os.Chmod(tmpName, common.FilePermissionNormal); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeStoreSave, fmt.Sprintf("Failed to write %s", path)).
			WithContext("path", path)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrCodeStoreSave, fmt.Sprintf("Failed to replace %s", path)).
			WithContext("path", path)
	}
	return nil
}
