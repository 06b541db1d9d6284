package models

import "time"

// Revision identifies the last commit that touched a file.
type Revision struct {
	Hash    string    `json:"hash"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
	// Modified is set when the working copy differs from the commit.
	Modified bool `json:"modified"`
}

// ShortHash returns the abbreviated commit hash.
func (r Revision) ShortHash() string {
	if len(r.Hash) > 7 {
		return r.Hash[:7]
	}
	return r.Hash
}
