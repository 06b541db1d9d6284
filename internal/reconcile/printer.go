package reconcile

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"tablekeeper/internal/catalog"
)

// Printer renders reports for the terminal.
type Printer struct {
	useColor bool
	verbose  bool
}

// NewPrinter creates a printer. Verbose output also lists verified tables.
func NewPrinter(useColor, verbose bool) *Printer {
	return &Printer{useColor: useColor, verbose: verbose}
}

func (p *Printer) paint(fn func(string, ...interface{}) string, s string) string {
	if !p.useColor {
		return s
	}
	return fn("%s", s)
}

// PrintReport writes the verification summary, the tier distribution and the
// unverified and repository-only tables.
func (p *Printer) PrintReport(w io.Writer, r *Report) {
	fmt.Fprintln(w, "Verification Results:")
	fmt.Fprintf(w, "  Total tables in allowlist: %d\n", r.Total)
	fmt.Fprintf(w, "  Verified tables (exist in repository): %s\n",
		p.paint(color.GreenString, fmt.Sprint(len(r.Verified))))
	fmt.Fprintf(w, "  Unverified tables (not in repository): %s\n",
		p.paint(color.YellowString, fmt.Sprint(len(r.Unverified))))
	if r.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped allowlist entries (missing schema or table): %s\n",
			p.paint(color.RedString, fmt.Sprint(r.Skipped)))
	}
	if r.SkippedRepository > 0 {
		fmt.Fprintf(w, "  Skipped repository entries (missing schema or table): %s\n",
			p.paint(color.RedString, fmt.Sprint(r.SkippedRepository)))
	}

	fmt.Fprintln(w, "\nTier Distribution:")
	for tier := catalog.MinTier; tier <= catalog.MaxTier; tier++ {
		fmt.Fprintf(w, "  Tier %d: %d tables\n", tier, r.Tiers[tier])
	}

	if p.verbose && len(r.Verified) > 0 {
		fmt.Fprintln(w, "\nVerified tables:")
		p.statusTable(w, r.Verified, p.paint(color.GreenString, "verified"))
	}

	if len(r.Unverified) > 0 {
		fmt.Fprintln(w, "\nUnverified tables:")
		p.statusTable(w, r.Unverified, p.paint(color.YellowString, "unverified"))
	}

	fmt.Fprintf(w, "\nTables in repository not in allowlist: %d\n", len(r.RepoOnly))
	if p.verbose {
		for _, key := range r.RepoOnly {
			fmt.Fprintf(w, "  %s\n", key)
		}
	}
}

func (p *Printer) statusTable(w io.Writer, rows []TableStatus, status string) {
	var buf strings.Builder

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"#", "Tier", "Table", "Status"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for i, row := range rows {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%d", row.Tier),
			row.Key.String(),
			status,
		})
	}

	table.Render()
	fmt.Fprint(w, buf.String())
}

// PrintValidation writes the warehouse validation summary.
func (p *Printer) PrintValidation(w io.Writer, v *Validation) {
	fmt.Fprintln(w, "Validation Results:")
	fmt.Fprintf(w, "  Total tables in allowlist: %d\n", v.Total)
	fmt.Fprintf(w, "  Valid tables (exist in database): %s\n",
		p.paint(color.GreenString, fmt.Sprint(len(v.Existing))))
	fmt.Fprintf(w, "  Invalid tables (don't exist in database): %s\n",
		p.paint(color.RedString, fmt.Sprint(len(v.Missing))))
	fmt.Fprintf(w, "  Tables missing from repository but exist in database: %s\n",
		p.paint(color.YellowString, fmt.Sprint(len(v.MissingFromRepository))))
	if v.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped allowlist entries (missing schema or table): %d\n", v.Skipped)
	}

	if len(v.Missing) > 0 {
		fmt.Fprintln(w, "\nInvalid tables:")
		for _, key := range v.Missing {
			line := "  " + key.String()
			if err, ok := v.Failures[key.String()]; ok {
				line += p.paint(color.RedString, fmt.Sprintf(" (lookup failed: %v)", err))
			}
			fmt.Fprintln(w, line)
		}
	}

	if len(v.MissingFromRepository) > 0 {
		fmt.Fprintln(w, "\nTables missing from repository:")
		for _, key := range v.MissingFromRepository {
			fmt.Fprintf(w, "  %s\n", key)
		}
	}
}
