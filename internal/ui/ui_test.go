package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// capture redirects Output and disables color for the test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevColor := Output, supportsColor
	Output = &buf
	SetColor(false)
	t.Cleanup(func() {
		Output = prevOut
		supportsColor = prevColor
	})
	return &buf
}

func TestMessages(t *testing.T) {
	buf := capture(t)

	ShowSuccess("Added EDW.CNG.ORDERS")
	ShowWarning("Allowlist file not found")
	ShowInfo("Connecting")
	PrintKeyValue("Account", "xy12345")

	out := buf.String()
	assert.Contains(t, out, "SUCCESS: Added EDW.CNG.ORDERS")
	assert.Contains(t, out, "WARNING: Allowlist file not found")
	assert.Contains(t, out, "INFO: Connecting")
	assert.Contains(t, out, "Account:")
	assert.Contains(t, out, "xy12345")
}

func TestShowErrorSuggestion(t *testing.T) {
	buf := capture(t)

	ShowError(errors.New("SQL compilation error: Object 'X' does not exist\nline 1"))

	out := buf.String()
	assert.Contains(t, out, "ERROR: SQL compilation error")
	assert.Contains(t, out, "  line 1")
	assert.Contains(t, out, "TIP: Verify the database objects exist")
}

func TestGetSuggestion(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"Authentication failed for user", "auth set-password"},
		{"dial tcp: connection refused", "network connectivity"},
		{"Insufficient privileges to operate on schema", "privileges"},
		{"something else", ""},
	}

	for _, tt := range tests {
		got := getSuggestion(tt.message)
		if tt.want == "" {
			assert.Empty(t, got)
			continue
		}
		assert.Contains(t, got, tt.want)
	}
}

func TestPrintTally(t *testing.T) {
	buf := capture(t)

	PrintTally(3, 1, 0)
	assert.Contains(t, buf.String(), "Summary: 3 succeeded, 1 failed, 0 skipped")
}

func TestQuietUI(t *testing.T) {
	buf := capture(t)

	u := NewUI(false, true)
	u.Printf("hidden %d\n", 1)
	u.Info("hidden")
	u.VerbosePrintf("hidden")
	u.Error("shown")

	assert.Equal(t, "✗ shown\n", buf.String())
}

func TestVerboseUI(t *testing.T) {
	buf := capture(t)

	NewUI(true, false).VerbosePrintf("detail %s\n", "x")
	NewUI(false, false).VerbosePrintf("not shown\n")

	assert.Equal(t, "detail x\n", buf.String())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{2500 * time.Millisecond, "2.5s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 15*time.Minute, "2h15m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatDuration(tt.duration))
	}
}

func TestFormatRelativeTime(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected string
	}{
		{"just now", time.Now().Add(-30 * time.Second), "just now"},
		{"one minute", time.Now().Add(-90 * time.Second), "1 minute ago"},
		{"minutes ago", time.Now().Add(-5 * time.Minute), "5 minutes ago"},
		{"hours ago", time.Now().Add(-3 * time.Hour), "3 hours ago"},
		{"days ago", time.Now().Add(-2 * 24 * time.Hour), "2 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatRelativeTime(tt.time))
		})
	}

	old := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2023-01-15", FormatRelativeTime(old))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}
