package runner

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"tablekeeper/internal/snowflake"
	"tablekeeper/internal/ui"
)

// Printer reports a run on a terminal. It implements Observer.
type Printer struct {
	w              io.Writer
	ShowStatements bool
	ShowProgress   bool
	now            func() time.Time
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, showStatements, showProgress bool) *Printer {
	return &Printer{
		w:              w,
		ShowStatements: showStatements,
		ShowProgress:   showProgress,
		now:            time.Now,
	}
}

func (p *Printer) FileStarted(name string, statements int) {
	fmt.Fprintf(p.w, "\nExecuting file: %s\n", name)
	if statements == 0 {
		fmt.Fprintf(p.w, "%s No valid SQL statements found in %s\n", ui.ColorWarning("⚠"), name)
		return
	}
	fmt.Fprintf(p.w, "Found %d statements to execute\n", statements)
}

func (p *Printer) StatementStarted(name string, index, total int, stmt string) {
	if p.ShowProgress {
		p.progress(index, total, name, "RUNNING")
	}
	if p.ShowStatements {
		fmt.Fprintf(p.w, "\n=== Executing statement %d/%d ===\n", index, total)
		fmt.Fprintln(p.w, strings.TrimSpace(stmt))
		fmt.Fprintln(p.w, strings.Repeat("=", 40))
	}
}

func (p *Printer) StatementFinished(name string, total int, r StatementResult) {
	if r.Err != nil {
		if p.ShowProgress {
			p.progress(r.Index, total, name, "FAILED")
		}
		fmt.Fprintf(p.w, "%s Error executing statement %d: %v\n", ui.ColorError("✗"), r.Index, r.Err)
		return
	}

	RenderResult(p.w, r.Result, p.ShowStatements)
	if p.ShowProgress {
		p.progress(r.Index, total, name, "SUCCESS")
	}
}

func (p *Printer) FileFinished(s *Summary) {
	if s.Err != nil {
		fmt.Fprintf(p.w, "%s %v\n", ui.ColorError("✗"), s.Err)
		return
	}

	if s.Aborted && s.Skipped > 0 {
		fmt.Fprintf(p.w, "%s Stopping execution due to error, %d statements not run.\n",
			ui.ColorError("✗"), s.Skipped)
	}

	if len(s.Created) > 0 {
		fmt.Fprintf(p.w, "\nTables created or replaced (%d):\n", len(s.Created))
		for _, t := range s.Created {
			fmt.Fprintf(p.w, "  - %s\n", t)
		}
	}

	status := ui.ColorSuccess("SQL execution completed")
	if !s.OK() {
		status = ui.ColorError("SQL execution stopped")
		if !s.Aborted {
			status = ui.ColorWarning("SQL execution completed with errors")
		}
	}
	fmt.Fprintf(p.w, "\n%s: %d/%d statements successful in %s\n",
		status, s.Succeeded, s.Total, ui.FormatDuration(s.Duration))
}

// PrintFilesSummary writes the closing line of a multi-file run.
func (p *Printer) PrintFilesSummary(s *FilesSummary) {
	if s.NotRun > 0 {
		fmt.Fprintf(p.w, "\n%s Stopped after a failed file; %d files not run.\n", ui.ColorError("✗"), s.NotRun)
	}
	fmt.Fprintf(p.w, "\nAll SQL files processed: %d/%d files successful in %s\n",
		s.Succeeded, len(s.Files)+s.NotRun, ui.FormatDuration(s.Duration))
}

func (p *Printer) progress(current, total int, name, status string) {
	const width = 40
	filled := 0
	if total > 0 {
		filled = width * current / total
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("-", width-filled)

	switch status {
	case "SUCCESS":
		status = ui.ColorSuccess("[" + status + "]")
	case "FAILED":
		status = ui.ColorError("[" + status + "]")
	default:
		status = ui.ColorWarning("[" + status + "]")
	}

	fmt.Fprintf(p.w, "[%s] %d/%d %s |%s| %s\n",
		p.now().Format("15:04:05"), current, total, status, bar, filepath.Base(name))
}

// RenderResult prints the rows kept for a statement as a table, followed by
// a count of the rows that were not kept.
func RenderResult(w io.Writer, r *snowflake.Result, verbose bool) {
	if r == nil || len(r.Columns) == 0 {
		if verbose {
			fmt.Fprintln(w, "Statement executed successfully.")
		}
		return
	}
	if r.RowCount == 0 {
		fmt.Fprintln(w, "Query executed successfully, but no results were returned.")
		return
	}

	fmt.Fprintf(w, "\nResults (%d rows):\n", r.RowCount)
	if len(r.Rows) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(r.Columns))
	for i, c := range r.Columns {
		header[i] = c
	}
	t.AppendHeader(header)

	for _, row := range r.Rows {
		out := make(table.Row, len(row))
		for i, v := range row {
			if v.Valid {
				out[i] = v.String
			} else {
				out[i] = "NULL"
			}
		}
		t.AppendRow(out)
	}
	t.Render()

	if more := r.RowCount - len(r.Rows); more > 0 {
		fmt.Fprintf(w, "... and %d more rows\n", more)
	}
}
