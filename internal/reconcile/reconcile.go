// Package reconcile cross-checks the allowlist against the schema repository
// and, optionally, against the live warehouse.
package reconcile

import (
	"context"
	"io"
	"log/slog"
	"math"

	"tablekeeper/internal/catalog"
)

// TableStatus is an allowlist key with its effective tier.
type TableStatus struct {
	Key  catalog.TableKey
	Tier int
}

// Report classifies every allowlist entry against the repository.
type Report struct {
	// Total is the number of allowlist entries examined, skipped ones included.
	Total      int
	Verified   []TableStatus
	Unverified []TableStatus
	// RepoOnly lists repository keys with no allowlist entry.
	RepoOnly []catalog.TableKey
	// Tiers counts entries per tier 1..4. Missing tiers count as 2; tiers
	// outside the range are not counted.
	Tiers map[int]int
	// Skipped counts allowlist entries without a schema or table.
	Skipped int
	// SkippedRepository counts repository keys without a schema or table.
	SkippedRepository int
}

// Reconcile classifies allowlist entries as verified or unverified and finds
// repository keys missing from the allowlist. Malformed entries are counted
// and skipped.
func Reconcile(allowlist *catalog.Allowlist, repository *catalog.Repository) *Report {
	report := &Report{
		Total:      allowlist.Len(),
		Verified:   []TableStatus{},
		Unverified: []TableStatus{},
		RepoOnly:   []catalog.TableKey{},
		Tiers:      map[int]int{1: 0, 2: 0, 3: 0, 4: 0},
	}

	for _, entry := range allowlist.Entries() {
		key := entry.Key()
		if !key.Valid() {
			report.Skipped++
			continue
		}

		status := TableStatus{Key: withDatabase(key), Tier: entry.EffectiveTier()}
		if _, ok := report.Tiers[status.Tier]; ok {
			report.Tiers[status.Tier]++
		}

		if repository.Contains(key) {
			report.Verified = append(report.Verified, status)
		} else {
			report.Unverified = append(report.Unverified, status)
		}
	}

	for _, key := range repository.Tables {
		if !key.Valid() {
			report.SkippedRepository++
			continue
		}
		if !allowlist.Contains(key) {
			report.RepoOnly = append(report.RepoOnly, key)
		}
	}

	return report
}

// AddMissing records every unverified key in the repository and returns the
// number of keys added.
func AddMissing(repository *catalog.Repository, report *Report) int {
	keys := make([]catalog.TableKey, len(report.Unverified))
	for i, status := range report.Unverified {
		keys[i] = status.Key
	}
	return repository.InsertIfAbsent(keys...)
}

// TableChecker reports whether a table exists in the warehouse.
type TableChecker interface {
	TableExists(ctx context.Context, key catalog.TableKey) (bool, error)
}

// Validation classifies allowlist entries by their presence in the warehouse.
// It is independent of repository verification.
type Validation struct {
	Total    int
	Existing []catalog.TableKey
	Missing  []catalog.TableKey
	// MissingFromRepository lists keys present in the warehouse but not
	// recorded in the repository.
	MissingFromRepository []catalog.TableKey
	// Failures holds the lookup error for keys that could not be checked;
	// those keys are also listed in Missing.
	Failures map[string]error
	Skipped  int
}

// Validate checks every allowlist entry against the warehouse. A failed lookup
// is recorded and the entry is treated as missing. Only context cancellation
// stops the run early.
func Validate(ctx context.Context, allowlist *catalog.Allowlist, repository *catalog.Repository, checker TableChecker, logger *slog.Logger) (*Validation, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}

	v := &Validation{
		Total:                 allowlist.Len(),
		Existing:              []catalog.TableKey{},
		Missing:               []catalog.TableKey{},
		MissingFromRepository: []catalog.TableKey{},
		Failures:              map[string]error{},
	}

	for _, entry := range allowlist.Entries() {
		if err := ctx.Err(); err != nil {
			return v, err
		}

		key := entry.Key()
		if !key.Valid() {
			v.Skipped++
			continue
		}
		key = withDatabase(key)

		exists, err := checker.TableExists(ctx, key)
		if err != nil {
			logger.Warn("table lookup failed", "table", key.String(), "error", err)
			v.Failures[key.String()] = err
			v.Missing = append(v.Missing, key)
			continue
		}

		if !exists {
			v.Missing = append(v.Missing, key)
			continue
		}

		v.Existing = append(v.Existing, key)
		if !repository.Contains(key) {
			v.MissingFromRepository = append(v.MissingFromRepository, key)
		}
	}

	return v, nil
}

// AddValidated records the warehouse-confirmed keys missing from the
// repository and returns the number added.
func AddValidated(repository *catalog.Repository, v *Validation) int {
	return repository.InsertIfAbsent(v.MissingFromRepository...)
}

func withDatabase(key catalog.TableKey) catalog.TableKey {
	key.Database = key.EffectiveDatabase()
	return key
}
