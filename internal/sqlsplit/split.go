// Package sqlsplit breaks a SQL script into executable statements.
//
// Splitting is line oriented. Quote balance is tracked per line only, so a
// string literal that spans lines, or one containing escaped quotes, can be
// split in the wrong place. Scripts run through this tool are expected to keep
// literals on one line.
package sqlsplit

import (
	"regexp"
	"strings"
)

const (
	terminator = ";"
	sentinel   = "@@SEMICOLON@@"
)

var (
	// first terminator after a line comment marker
	commentTerminator = regexp.MustCompile(`--.*?;`)

	createOrReplace = regexp.MustCompile(`(?i)create\s+or\s+replace\s+table\s+(\w+\.\w+\.\w+)`)
)

// Split returns the statements of script in order. Each statement keeps its
// trailing terminator, and blank or comment lines stay attached to the
// statement that follows them, so concatenating the result gives back the
// script. A script without any statement is returned unchanged as the single
// element.
func Split(script string) []string {
	masked := commentTerminator.ReplaceAllStringFunc(script, func(m string) string {
		return strings.Replace(m, terminator, sentinel, 1)
	})

	var statements []string
	var pending []string

	flush := func() {
		statements = append(statements, strings.Join(pending, "\n"))
		pending = pending[:0]
	}

	for _, line := range strings.Split(masked, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			pending = append(pending, line)
			continue
		}

		cuts := terminators(line)
		if len(cuts) == 0 {
			pending = append(pending, line)
			continue
		}

		start := 0
		for _, pos := range cuts {
			pending = append(pending, line[start:pos+1])
			flush()
			start = pos + 1
		}
		pending = append(pending, line[start:])
	}

	if len(pending) > 0 && strings.Join(pending, "\n") != "" {
		flush()
	}

	if len(statements) == 0 {
		return []string{script}
	}

	for i, stmt := range statements {
		statements[i] = strings.ReplaceAll(stmt, sentinel, terminator)
	}

	return statements
}

// terminators returns the byte offsets of every ';' on line that has an even
// number of single quotes and of double quotes to its left.
func terminators(line string) []int {
	var cuts []int
	single, double := 0, 0

	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\'':
			single++
		case '"':
			double++
		case ';':
			if single%2 == 0 && double%2 == 0 {
				cuts = append(cuts, i)
			}
		}
	}

	return cuts
}

// IsBlank reports whether stmt holds nothing but whitespace, line comments and
// terminators.
func IsBlank(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		if strings.Trim(trimmed, "; \t") != "" {
			return false
		}
	}
	return true
}

// CreatedTables returns the fully qualified names of tables created with
// CREATE OR REPLACE TABLE in stmt.
func CreatedTables(stmt string) []string {
	var names []string
	for _, m := range createOrReplace.FindAllStringSubmatch(stmt, -1) {
		names = append(names, m[1])
	}
	return names
}
