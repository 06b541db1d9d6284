package catalog

import (
	"encoding/json"
	"strings"

	"tablekeeper/pkg/errors"
)

// Tier bounds. Lower tiers are more reliable and more heavily used.
const (
	MinTier     = 1
	MaxTier     = 4
	DefaultTier = 2
)

// Entry is one curated allowlist record.
type Entry struct {
	Table       string   `json:"table"`
	Schema      string   `json:"schema"`
	Database    string   `json:"database,omitempty"`
	Tier        *int     `json:"tier,omitempty"`
	Description string   `json:"description"`
	Notes       string   `json:"notes,omitempty"`
	CommonJoins []string `json:"common_joins,omitempty"`
	KeyColumns  []string `json:"key_columns,omitempty"`
	Columns     Columns  `json:"columns,omitempty"`
}

// Key returns the entry's table identity.
func (e Entry) Key() TableKey {
	return TableKey{Database: e.Database, Schema: e.Schema, Table: e.Table}
}

// EffectiveTier returns the tier, or DefaultTier when none is recorded.
func (e Entry) EffectiveTier() int {
	if e.Tier == nil {
		return DefaultTier
	}
	return *e.Tier
}

// IsKeyColumn reports whether name is listed in KeyColumns, ignoring case.
func (e Entry) IsKeyColumn(name string) bool {
	for _, k := range e.KeyColumns {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts both the object form and the legacy bare table name.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*e = Entry{Table: name}
		if key, perr := ParseTableKey(name); perr == nil {
			e.Database, e.Schema, e.Table = key.Database, key.Schema, key.Table
		}
		return nil
	}

	type plain Entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Entry(p)
	return nil
}

// Tier returns a pointer to t for use in entries and patches.
func Tier(t int) *int {
	return &t
}

// String returns a pointer to s for use in patches.
func String(s string) *string {
	return &s
}

// EntryPatch carries the fields an update touches. Nil fields are left alone;
// non-nil fields replace the stored value wholesale.
type EntryPatch struct {
	Tier        *int
	Description *string
	Notes       *string
	CommonJoins []string
	KeyColumns  []string
	Columns     Columns
}

// IsEmpty reports whether the patch would change nothing.
func (p EntryPatch) IsEmpty() bool {
	return p.Tier == nil && p.Description == nil && p.Notes == nil &&
		p.CommonJoins == nil && p.KeyColumns == nil && p.Columns == nil
}

// Apply writes the provided fields onto e.
func (p EntryPatch) Apply(e *Entry) {
	if p.Tier != nil {
		e.Tier = Tier(*p.Tier)
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Notes != nil {
		e.Notes = *p.Notes
	}
	if p.CommonJoins != nil {
		e.CommonJoins = append([]string{}, p.CommonJoins...)
	}
	if p.KeyColumns != nil {
		e.KeyColumns = uniqueFold(p.KeyColumns)
	}
	if p.Columns != nil {
		e.Columns = append(Columns{}, p.Columns...)
	}
}

func uniqueFold(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		k := strings.ToLower(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

// Allowlist is the ordered set of curated entries, at most one per TableKey.
type Allowlist struct {
	entries []Entry
	// unreadable is the path of a file that failed to load into this value.
	unreadable string
}

// NewAllowlist builds an allowlist, dropping later duplicates of a key.
func NewAllowlist(entries ...Entry) *Allowlist {
	a := &Allowlist{}
	for _, e := range entries {
		a.Add(e)
	}
	return a
}

// Entries returns the entries in file order. The slice is shared with the
// allowlist.
func (a *Allowlist) Entries() []Entry {
	return a.entries
}

// Len returns the number of entries.
func (a *Allowlist) Len() int {
	return len(a.entries)
}

func (a *Allowlist) find(key TableKey) int {
	for i, e := range a.entries {
		if e.Key().Equal(key) {
			return i
		}
	}
	return -1
}

// Contains reports whether an entry with an equal key exists.
func (a *Allowlist) Contains(key TableKey) bool {
	return a.find(key) >= 0
}

// Get returns a copy of the entry for key.
func (a *Allowlist) Get(key TableKey) (Entry, bool) {
	i := a.find(key)
	if i < 0 {
		return Entry{}, false
	}
	return a.entries[i], true
}

// Add appends e unless an entry with the same key exists. It reports whether
// the entry was added.
func (a *Allowlist) Add(e Entry) bool {
	if a.Contains(e.Key()) {
		return false
	}
	e.KeyColumns = uniqueFoldOrNil(e.KeyColumns)
	a.entries = append(a.entries, e)
	return true
}

// Update applies patch to the entry for key. The allowlist is untouched when
// no such entry exists.
func (a *Allowlist) Update(key TableKey, patch EntryPatch) error {
	i := a.find(key)
	if i < 0 {
		return errors.EntryNotFound(key.String())
	}
	patch.Apply(&a.entries[i])
	return nil
}

// Upsert applies patch to the entry for key, or appends a new entry built from
// key and patch. It reports whether an entry was created.
func (a *Allowlist) Upsert(key TableKey, patch EntryPatch) bool {
	if i := a.find(key); i >= 0 {
		patch.Apply(&a.entries[i])
		return false
	}

	e := Entry{Database: key.Database, Schema: key.Schema, Table: key.Table}
	patch.Apply(&e)
	a.entries = append(a.entries, e)
	return true
}

// Keys returns the keys of all entries in order.
func (a *Allowlist) Keys() []TableKey {
	keys := make([]TableKey, len(a.entries))
	for i, e := range a.entries {
		keys[i] = e.Key()
	}
	return keys
}

func uniqueFoldOrNil(values []string) []string {
	if values == nil {
		return nil
	}
	return uniqueFold(values)
}
