package errors

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "basic error",
			err:      New(ErrCodeConnectionFailed, "Connection failed"),
			expected: "[TK1001] ERROR: Connection failed",
		},
		{
			name: "error with suggestions",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithSuggestions("Check network", "Verify credentials"),
			expected: "[TK1001] ERROR: Connection failed\nSuggestions:\n  1. Check network\n  2. Verify credentials",
		},
		{
			name: "context is not rendered",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithContext("account", "xy12345"),
			expected: "[TK1001] ERROR: Connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
			assert.Equal(t, ErrCodeConnectionFailed, tt.err.Code)
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := fmt.Errorf("database connection refused")

	appErr := Wrap(baseErr, ErrCodeConnectionFailed, "Failed to connect to Snowflake")

	assert.Equal(t, baseErr, appErr.Cause)
	assert.ErrorIs(t, appErr, baseErr)
	assert.Equal(t, ErrCodeConnectionFailed, GetErrorCode(appErr))
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
}

func TestWrapInheritsContext(t *testing.T) {
	inner := New(ErrCodeStoreLoad, "bad json").WithContext("path", "table_allowlist.json")
	outer := Wrap(inner, ErrCodeInternal, "load failed")

	assert.Equal(t, "table_allowlist.json", outer.Context["path"])
	assert.True(t, HasCode(outer, ErrCodeStoreLoad))
	assert.True(t, HasCode(outer, ErrCodeInternal))
	assert.False(t, HasCode(outer, ErrCodeStoreSave))
	assert.False(t, HasCode(fmt.Errorf("plain"), ErrCodeInternal))
}

func TestSQLErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		code  ErrorCode
	}{
		{"missing object", fmt.Errorf("Object 'EDW.X.Y' does not exist or not authorized."), ErrCodeSQLPermission},
		{"missing table", fmt.Errorf("Table 'FOO' does not exist"), ErrCodeSQLObjectNotFound},
		{"syntax", fmt.Errorf("SQL compilation error: syntax error line 1"), ErrCodeSQLSyntax},
		{"timeout", fmt.Errorf("context deadline exceeded"), ErrCodeSQLTimeout},
		{"other", fmt.Errorf("boom"), ErrCodeSQLExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SQLError("Query failed", "SELECT 1", tt.cause)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, "SELECT 1", err.Context["query"])
		})
	}
}

func TestConfigMissingError(t *testing.T) {
	err := ConfigMissingError([]string{"SNOWFLAKE_USER", "SNOWFLAKE_ACCOUNT"})

	assert.Equal(t, ErrCodeConfigMissing, err.Code)
	assert.Contains(t, err.Message, "SNOWFLAKE_USER, SNOWFLAKE_ACCOUNT")
	assert.Equal(t, SeverityCritical, err.Severity)
}

func TestRetryLogic(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	config := &RetryConfig{
		MaxRetries:     maxAttempts - 1,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2.0,
		RetryableError: func(err error) bool { return true },
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		attempts++
		if attempts < maxAttempts {
			return New(ErrCodeConnectionTimeout, "Timeout").AsRecoverable()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, maxAttempts, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig()
	config.InitialDelay = time.Millisecond

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		attempts++
		return New(ErrCodeAuthenticationFailed, "bad password")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, ErrCodeAuthenticationFailed, GetErrorCode(err))
}

func TestRetryExhausted(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:     1,
		InitialDelay:   time.Millisecond,
		MaxDelay:       time.Millisecond,
		Multiplier:     1,
		RetryableError: func(error) bool { return true },
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		return fmt.Errorf("still down")
	})

	assert.Equal(t, ErrCodeResourceExhausted, GetErrorCode(err))
}

func TestHandler(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	h := NewHandler(&buf, nil, true)

	code := h.Handle(New(ErrCodeEntryNotFound, "Table EDW.S.T not found").
		WithContext("table", "EDW.S.T").
		WithSuggestions("add it first"))

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "[TK3003] Table EDW.S.T not found")
	assert.Contains(t, buf.String(), "table: EDW.S.T")
	assert.Contains(t, buf.String(), "1. add it first")
	assert.Equal(t, 0, h.Handle(nil))
}
