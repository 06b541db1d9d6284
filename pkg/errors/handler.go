package errors

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"

	"github.com/fatih/color"
)

// Handler renders command failures for the terminal and records them in the
// structured log.
type Handler struct {
	out     io.Writer
	logger  *slog.Logger
	verbose bool
}

// NewHandler creates a handler writing to out. A nil logger discards records.
func NewHandler(out io.Writer, logger *slog.Logger, verbose bool) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return &Handler{out: out, logger: logger, verbose: verbose}
}

// Handle prints err and returns the process exit code it maps to.
func (h *Handler) Handle(err error) int {
	if err == nil {
		return 0
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = Wrap(err, ErrCodeInternal, err.Error())
	}

	h.logger.Error("command failed",
		"code", string(appErr.Code),
		"severity", string(appErr.Severity),
		"message", appErr.Message,
		"cause", appErr.Cause)

	h.display(appErr)
	return 1
}

func (h *Handler) display(err *AppError) {
	var paint *color.Color
	switch err.Severity {
	case SeverityCritical:
		paint = color.New(color.FgRed, color.Bold)
	case SeverityWarning:
		paint = color.New(color.FgYellow)
	case SeverityInfo:
		paint = color.New(color.FgCyan)
	default:
		paint = color.New(color.FgHiRed)
	}

	fmt.Fprintf(h.out, "\n%s\n", paint.Sprintf("[%s] %s", err.Code, err.Message))

	if err.Cause != nil && err.Cause.Error() != err.Message {
		fmt.Fprintf(h.out, "  cause: %v\n", err.Cause)
	}

	if h.verbose && len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for k := range err.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(h.out, "\nContext:")
		for _, k := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", k, err.Context[k])
		}
	}

	if len(err.Suggestions) > 0 {
		fmt.Fprintln(h.out, "\nSuggestions:")
		for i, s := range err.Suggestions {
			fmt.Fprintf(h.out, "  %d. %s\n", i+1, s)
		}
	}
}
