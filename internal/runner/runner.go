// Package runner executes SQL scripts statement by statement.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"tablekeeper/internal/snowflake"
	"tablekeeper/internal/sqlsplit"
	"tablekeeper/pkg/errors"
)

// DefaultMaxRows is the number of result rows kept per statement.
const DefaultMaxRows = 20

// Executor runs one statement and returns its (possibly truncated) result.
type Executor interface {
	Query(ctx context.Context, stmt string, maxRows int) (*snowflake.Result, error)
}

// Policy controls how failures affect the rest of a run.
type Policy struct {
	// StopOnError aborts the remaining statements, and files, after the first failure.
	StopOnError bool
	// MaxRows is the number of result rows kept per statement; zero keeps
	// none and a negative value keeps every row.
	MaxRows int
}

// DefaultPolicy stops on the first error and keeps DefaultMaxRows rows.
func DefaultPolicy() Policy {
	return Policy{StopOnError: true, MaxRows: DefaultMaxRows}
}

// Observer is notified as statements run. Implementations must not block.
type Observer interface {
	FileStarted(name string, statements int)
	StatementStarted(name string, index, total int, stmt string)
	StatementFinished(name string, total int, result StatementResult)
	FileFinished(summary *Summary)
}

// StatementResult is the outcome of a single statement.
type StatementResult struct {
	// Index is 1-based among the executable statements of the script.
	Index     int
	Statement string
	Result    *snowflake.Result
	Err       error
	Duration  time.Duration
}

// Summary tallies one script.
type Summary struct {
	Name string
	// Total counts executable statements; comment-only chunks are not counted.
	Total     int
	Succeeded int
	Failed    int
	// Skipped counts statements not attempted after an abort.
	Skipped int
	// Created lists tables named by successful CREATE OR REPLACE TABLE statements.
	Created    []string
	Statements []StatementResult
	Duration   time.Duration
	// Err is set when the script could not be read.
	Err     error
	Aborted bool
}

// OK reports whether every statement of the script succeeded.
func (s *Summary) OK() bool {
	return s.Err == nil && s.Failed == 0 && s.Skipped == 0
}

// FilesSummary tallies a multi-file run.
type FilesSummary struct {
	Files     []*Summary
	Succeeded int
	Failed    int
	// NotRun counts files left unexecuted after a stop-on-error abort.
	NotRun   int
	Duration time.Duration
}

// OK reports whether every file ran successfully.
func (s *FilesSummary) OK() bool {
	return s.Failed == 0 && s.NotRun == 0
}

// Runner executes scripts against an Executor.
type Runner struct {
	Exec     Executor
	Policy   Policy
	Observer Observer
	Logger   *slog.Logger
}

// New creates a runner with the default policy.
func New(exec Executor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Runner{Exec: exec, Policy: DefaultPolicy(), Logger: logger}
}

// RunScript splits script and executes its statements in order. Comment-only
// chunks are skipped. Cancellation of ctx fails the running statement and,
// under any policy, stops the run.
func (r *Runner) RunScript(ctx context.Context, name, script string) *Summary {
	start := time.Now()
	summary := &Summary{Name: name}

	var statements []string
	for _, stmt := range sqlsplit.Split(script) {
		if !sqlsplit.IsBlank(stmt) {
			statements = append(statements, stmt)
		}
	}
	summary.Total = len(statements)

	if r.Observer != nil {
		r.Observer.FileStarted(name, len(statements))
	}

	for i, stmt := range statements {
		if r.Observer != nil {
			r.Observer.StatementStarted(name, i+1, len(statements), stmt)
		}

		stmtStart := time.Now()
		res, err := r.Exec.Query(ctx, stmt, r.Policy.MaxRows)
		result := StatementResult{
			Index:     i + 1,
			Statement: stmt,
			Result:    res,
			Err:       err,
			Duration:  time.Since(stmtStart),
		}
		summary.Statements = append(summary.Statements, result)

		if err != nil {
			summary.Failed++
			r.Logger.Warn("statement failed", "file", name, "statement", i+1, "error", err)
		} else {
			summary.Succeeded++
			summary.Created = append(summary.Created, sqlsplit.CreatedTables(stmt)...)
		}

		if r.Observer != nil {
			r.Observer.StatementFinished(name, len(statements), result)
		}

		if err != nil && (r.Policy.StopOnError || ctx.Err() != nil) {
			summary.Aborted = true
			summary.Skipped = len(statements) - (i + 1)
			break
		}
	}

	summary.Duration = time.Since(start)
	if r.Observer != nil {
		r.Observer.FileFinished(summary)
	}
	return summary
}

// RunFile reads and runs one script file. A file that cannot be read yields a
// summary with Err set.
func (r *Runner) RunFile(ctx context.Context, path string) *Summary {
	data, err := os.ReadFile(path) // #nosec G304 - user supplied script path
	if err != nil {
		code := errors.ErrCodeFileOperation
		msg := fmt.Sprintf("Error reading SQL file '%s'", path)
		if os.IsNotExist(err) {
			code = errors.ErrCodeFileNotFound
			msg = fmt.Sprintf("SQL file '%s' not found", path)
		}
		summary := &Summary{
			Name: path,
			Err:  errors.Wrap(err, code, msg).WithContext("file", path),
		}
		if r.Observer != nil {
			r.Observer.FileFinished(summary)
		}
		return summary
	}
	return r.RunScript(ctx, path, string(data))
}

// RunFiles runs the files in order. Under StopOnError the first failed file
// stops the remaining ones.
func (r *Runner) RunFiles(ctx context.Context, paths []string) *FilesSummary {
	start := time.Now()
	result := &FilesSummary{}

	for i, path := range paths {
		summary := r.RunFile(ctx, path)
		result.Files = append(result.Files, summary)

		if summary.OK() {
			result.Succeeded++
			continue
		}

		result.Failed++
		if r.Policy.StopOnError || ctx.Err() != nil {
			result.NotRun = len(paths) - (i + 1)
			break
		}
	}

	result.Duration = time.Since(start)
	return result
}
