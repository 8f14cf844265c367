package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner shows an animated message while an operation runs
type Spinner struct {
	writer   io.Writer
	interval time.Duration
	noColor  bool

	mu      sync.Mutex
	message string
	done    chan struct{}
	stopped chan struct{}
}

// NewSpinner creates a new spinner. A zero interval means 100ms.
func NewSpinner(w io.Writer, message string, interval time.Duration, noColor bool) *Spinner {
	if interval == 0 {
		interval = 100 * time.Millisecond
	}
	return &Spinner{
		writer:   w,
		message:  message,
		interval: interval,
		noColor:  noColor,
	}
}

// Start begins the spinner animation
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.animate(s.done, s.stopped)
}

// Stop stops the spinner and clears the line
func (s *Spinner) Stop() {
	s.mu.Lock()
	done, stopped := s.done, s.stopped
	s.done, s.stopped = nil, nil
	s.mu.Unlock()

	if done == nil {
		return
	}
	close(done)
	<-stopped
	fmt.Fprint(s.writer, "\r\033[K")
}

// Success stops the spinner and shows a success message
func (s *Spinner) Success(message string) {
	s.Stop()
	WriteSuccess(s.writer, message, s.noColor)
}

// Error stops the spinner and shows an error message
func (s *Spinner) Error(message string) {
	s.Stop()
	paint(s.noColor, color.FgRed, color.Bold).Fprintf(s.writer, "❌ %s\n", message)
}

// UpdateMessage changes the spinner message
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

func (s *Spinner) animate(done, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	cyan := paint(s.noColor, color.FgCyan)
	for frame := 0; ; frame = (frame + 1) % len(spinnerFrames) {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			cyan.Fprintf(s.writer, "\r%s %s", spinnerFrames[frame], msg)
		}
	}
}

// WithSpinner runs fn with a spinner showing message. On success the
// message fn returns is reported; on failure "<message> failed".
func WithSpinner(w io.Writer, message string, noColor bool, fn func() (string, error)) error {
	spinner := NewSpinner(w, message, 0, noColor)
	spinner.Start()

	done, err := fn()
	if err != nil {
		spinner.Error(fmt.Sprintf("%s failed", message))
		return err
	}
	spinner.Success(done)
	return nil
}

// ProgressBar shows progress through a known number of steps
type ProgressBar struct {
	writer  io.Writer
	total   int
	current int
	width   int
	message string
	noColor bool
}

// NewProgressBar creates a new progress bar 40 cells wide
func NewProgressBar(w io.Writer, total int, message string, noColor bool) *ProgressBar {
	return &ProgressBar{
		writer:  w,
		total:   total,
		width:   40,
		message: message,
		noColor: noColor,
	}
}

// Add increments the progress by n, capped at the total
func (p *ProgressBar) Add(n int) {
	p.current = min(p.current+n, p.total)
	p.render()
}

// Finish completes the progress bar with a success message
func (p *ProgressBar) Finish(message string) {
	p.current = p.total
	p.render()
	fmt.Fprintln(p.writer)
	WriteSuccess(p.writer, message, p.noColor)
}

func (p *ProgressBar) render() {
	if p.total == 0 {
		return
	}
	percent := float64(p.current) / float64(p.total)
	filled := int(float64(p.width) * percent)

	var bar strings.Builder
	bar.WriteString("[")
	paint(p.noColor, color.FgCyan).Fprint(&bar, strings.Repeat("█", filled))
	paint(p.noColor, color.FgHiBlack).Fprint(&bar, strings.Repeat("░", p.width-filled))
	bar.WriteString("]")

	message := ""
	if p.message != "" {
		message = " " + p.message
	}
	fmt.Fprintf(p.writer, "\r%s %3d%% (%d/%d)%s", bar.String(), int(percent*100), p.current, p.total, message)
}
