package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "TK1001"
	ErrCodeConnectionTimeout    ErrorCode = "TK1002"
	ErrCodeAuthenticationFailed ErrorCode = "TK1003"
	ErrCodeNetworkUnavailable   ErrorCode = "TK1004"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound ErrorCode = "TK2001"
	ErrCodeConfigInvalid  ErrorCode = "TK2002"
	ErrCodeConfigMissing  ErrorCode = "TK2003"

	// Store errors (3xxx)
	ErrCodeStoreLoad      ErrorCode = "TK3001"
	ErrCodeStoreSave      ErrorCode = "TK3002"
	ErrCodeEntryNotFound  ErrorCode = "TK3003"
	ErrCodeDuplicateEntry ErrorCode = "TK3004"
	ErrCodeInvalidEntry   ErrorCode = "TK3005"

	// SQL execution errors (4xxx)
	ErrCodeSQLSyntax         ErrorCode = "TK4001"
	ErrCodeSQLPermission     ErrorCode = "TK4002"
	ErrCodeSQLTimeout        ErrorCode = "TK4003"
	ErrCodeSQLObjectNotFound ErrorCode = "TK4005"
	ErrCodeSQLExecution      ErrorCode = "TK4006"
	ErrCodeInvalidIdentifier ErrorCode = "TK4007"

	// File system errors (5xxx)
	ErrCodeFileNotFound   ErrorCode = "TK5001"
	ErrCodeFilePermission ErrorCode = "TK5002"
	ErrCodeFileOperation  ErrorCode = "TK5005"

	// Validation errors (6xxx)
	ErrCodeValidationFailed ErrorCode = "TK6001"
	ErrCodeInvalidInput     ErrorCode = "TK6002"
	ErrCodeUserInput        ErrorCode = "TK6004"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "TK9001"
	ErrCodeTimeout            ErrorCode = "TK9002"
	ErrCodeResourceExhausted  ErrorCode = "TK9003"
	ErrCodeServiceUnavailable ErrorCode = "TK9004"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // Command cannot continue
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation continued with a fallback
	SeverityInfo     ErrorSeverity = "INFO"
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError with the same code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// Inherit context from a wrapped AppError
	var ae *AppError
	if errors.As(err, &ae) {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates a connection-related error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSuggestions(
			"Check your network connection",
			"Verify SNOWFLAKE_ACCOUNT points at the right account locator",
			"Run 'tablekeeper connection test' to inspect the parameters in use",
		)
}

// ConfigMissingError reports required configuration values that are not set.
func ConfigMissingError(missing []string) *AppError {
	return New(ErrCodeConfigMissing,
		fmt.Sprintf("Missing required Snowflake credentials: %s", strings.Join(missing, ", "))).
		WithContext("missing", missing).
		WithSeverity(SeverityCritical).
		WithSuggestions(
			"Check your .env file and ensure all required variables are set",
			"Or store the password with 'tablekeeper auth set-password'",
		)
}

// SQLError creates an SQL execution error and classifies it from the driver message
func SQLError(message string, query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeSQLExecution, message).
		WithContext("query", truncateString(query, 200))

	text := strings.ToLower(message)
	if cause != nil {
		text += " " + strings.ToLower(cause.Error())
	}

	switch {
	case strings.Contains(text, "permission") || strings.Contains(text, "access denied") ||
		strings.Contains(text, "insufficient privileges") || strings.Contains(text, "not authorized"):
		err.Code = ErrCodeSQLPermission
		_ = err.WithSuggestions(
			"Check that the role has USAGE on the database and schema",
			"Set SNOWFLAKE_ROLE to a role with the required privileges",
		)
	case strings.Contains(text, "does not exist") || strings.Contains(text, "not found"):
		err.Code = ErrCodeSQLObjectNotFound
		_ = err.WithSuggestions(
			"Verify the object exists in the target database/schema",
			"Check for typos in object names",
		)
	case strings.Contains(text, "syntax error"):
		err.Code = ErrCodeSQLSyntax
		_ = err.WithSuggestions("Check SQL syntax near the error location")
	case strings.Contains(text, "timeout") || strings.Contains(text, "deadline exceeded"):
		err.Code = ErrCodeSQLTimeout
		_ = err.WithSuggestions("Increase snowflake.timeout or use a larger warehouse")
	}

	return err
}

// EntryNotFound reports an allowlist entry that does not exist.
func EntryNotFound(name string) *AppError {
	return New(ErrCodeEntryNotFound, fmt.Sprintf("Table %s not found in the allowlist", name)).
		WithContext("table", name).
		WithSeverity(SeverityWarning).
		WithSuggestions("Use 'tablekeeper allowlist add' to create the entry first")
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning).
		AsRecoverable()
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
