package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gosuri/uiprogress"
)

// Bar is a progress bar for batch commands. A disabled bar prints nothing,
// which keeps piped output and --quiet runs clean.
type Bar struct {
	progress *uiprogress.Progress
	bar      *uiprogress.Bar
	enabled  bool

	mu      sync.Mutex
	current string
	done    int
	total   int
}

// NewBar creates a bar over total steps.
func NewBar(total int, label string, enabled bool) *Bar {
	b := &Bar{enabled: enabled && total > 0, total: total}
	if !b.enabled {
		return b
	}

	b.progress = uiprogress.New()
	b.bar = b.progress.AddBar(total).AppendCompleted().PrependElapsed()
	b.bar.PrependFunc(func(*uiprogress.Bar) string {
		return label + ": "
	})
	b.bar.AppendFunc(func(*uiprogress.Bar) string {
		b.mu.Lock()
		defer b.mu.Unlock()
		return " " + Truncate(b.current, 40)
	})
	return b
}

// Start begins rendering.
func (b *Bar) Start() {
	if b.enabled {
		b.progress.Start()
	}
}

// Step marks one item done and shows name as the current item.
func (b *Bar) Step(name string) {
	b.mu.Lock()
	b.current = name
	b.done++
	b.mu.Unlock()

	if b.enabled {
		b.bar.Incr()
	}
}

// Done returns the number of completed steps.
func (b *Bar) Done() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Stop stops rendering.
func (b *Bar) Stop() {
	if b.enabled {
		b.progress.Stop()
	}
}

// Spinner represents an animated spinner for long operations
type Spinner struct {
	frames  []string
	current int
	message string
	stop    chan bool
	stopped bool
	mu      sync.Mutex
}

// NewSpinner creates a new spinner
func NewSpinner(message string) *Spinner {
	return &Spinner{
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		current: 0,
		message: message,
		stop:    make(chan bool),
	}
}

// Start begins the spinner animation
func (s *Spinner) Start() {
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				if !s.stopped {
					fmt.Fprintf(Output, "\r%s %s %s",
						ColorProgress(s.frames[s.current]),
						s.message,
						strings.Repeat(" ", 20), // Clear extra characters
					)
					s.current = (s.current + 1) % len(s.frames)
				}
				s.mu.Unlock()
			}
		}
	}()
}

// Stop stops the spinner
func (s *Spinner) Stop(success bool, message string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stop)

	// Clear line and print final status
	fmt.Fprint(Output, "\r\033[K")

	if success {
		fmt.Fprintf(Output, "%s %s\n", ColorSuccess("✓"), message)
	} else {
		fmt.Fprintf(Output, "%s %s\n", ColorError("✗"), message)
	}
}
