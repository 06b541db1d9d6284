package catalog

import "time"

// DateLayout is the format of Repository.LastUpdated.
const DateLayout = "2006-01-02"

// RepositoryNote is written into new repository files.
const RepositoryNote = "This is a lightweight repository of table names that exist in the database. " +
	"It contains no description or metadata, only verified table names."

// Repository records tables confirmed to exist in the warehouse, at most one
// per TableKey.
type Repository struct {
	LastUpdated string     `json:"last_updated"`
	Tables      []TableKey `json:"verified_tables"`
	Note        string     `json:"note"`

	// Now stamps LastUpdated. Defaults to time.Now.
	Now func() time.Time `json:"-"`

	unreadable string
}

// NewRepository returns an empty repository carrying the default note.
func NewRepository() *Repository {
	return &Repository{Tables: []TableKey{}, Note: RepositoryNote}
}

func (r *Repository) stamp() {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	r.LastUpdated = now().Format(DateLayout)
}

// Contains reports whether an equal key is recorded.
func (r *Repository) Contains(key TableKey) bool {
	for _, k := range r.Tables {
		if k.Equal(key) {
			return true
		}
	}
	return false
}

// InsertIfAbsent appends the keys not yet recorded, ignoring repeats within
// keys, and refreshes LastUpdated when anything was added. It returns the
// number of keys added.
func (r *Repository) InsertIfAbsent(keys ...TableKey) int {
	added := 0
	for _, key := range keys {
		if r.Contains(key) {
			continue
		}
		r.Tables = append(r.Tables, key)
		added++
	}
	if added > 0 {
		r.stamp()
	}
	return added
}

// Replace discards the recorded keys in favor of keys, de-duplicated, and
// refreshes LastUpdated.
func (r *Repository) Replace(keys []TableKey) {
	r.unreadable = ""
	r.Tables = make([]TableKey, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key.index()] {
			continue
		}
		seen[key.index()] = true
		r.Tables = append(r.Tables, key)
	}
	if r.Note == "" {
		r.Note = RepositoryNote
	}
	r.stamp()
}

// Len returns the number of recorded keys.
func (r *Repository) Len() int {
	return len(r.Tables)
}
