// Package ui renders terminal feedback for foreground commands
package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// JobProgress renders a job's 0-100 checkpoints as a progress bar whose
// description follows the current step message
type JobProgress struct {
	bar       *progressbar.ProgressBar
	current   int
	message   string
	startTime time.Time
}

// NewJobProgress creates a progress bar on stderr
func NewJobProgress(jobID string) *JobProgress {
	return NewJobProgressWithWriter(jobID, os.Stderr)
}

// NewJobProgressWithWriter creates a progress bar that writes to a specific writer
// Useful for testing with mock writers
func NewJobProgressWithWriter(jobID string, writer io.Writer) *JobProgress {
	bar := progressbar.NewOptions(
		100,
		progressbar.OptionSetDescription(shortID(jobID)),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(500*time.Millisecond),
		progressbar.OptionSetWriter(writer),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionEnableColorCodes(false),
	)

	return &JobProgress{
		bar:       bar,
		startTime: time.Now(),
	}
}

// Observe moves the bar to progress and shows message. It has the
// signature of a pipeline progress observer. Progress never moves back.
func (p *JobProgress) Observe(progress int, message string) {
	progress = max(0, min(progress, 100))
	if message != "" && message != p.message {
		p.message = message
		p.bar.Describe(message)
	}
	if progress > p.current {
		p.current = progress
		_ = p.bar.Set(progress)
	}
}

// Current returns the last rendered checkpoint
func (p *JobProgress) Current() int {
	return p.current
}

// Message returns the last rendered step message
func (p *JobProgress) Message() string {
	return p.message
}

// Finish completes the bar
func (p *JobProgress) Finish() error {
	return p.bar.Finish()
}

// Clear clears the progress bar from the terminal
func (p *JobProgress) Clear() error {
	return p.bar.Clear()
}

// GetElapsedTime returns time elapsed since the bar was created
func (p *JobProgress) GetElapsedTime() time.Duration {
	return time.Since(p.startTime)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Spinner provides visual feedback for operations with unknown duration
// such as reference preparation
type Spinner struct {
	description string
	startTime   time.Time
	active      bool
	out         io.Writer
}

// NewSpinner creates a spinner for unknown-duration operations
func NewSpinner(description string) *Spinner {
	return NewSpinnerWithWriter(description, os.Stdout)
}

// NewSpinnerWithWriter creates a spinner writing to writer
func NewSpinnerWithWriter(description string, writer io.Writer) *Spinner {
	return &Spinner{
		description: description,
		startTime:   time.Now(),
		out:         writer,
	}
}

// Start begins the spinner
func (s *Spinner) Start() {
	s.active = true
	s.startTime = time.Now()
	_, _ = fmt.Fprintf(s.out, "%s...\n", s.description)
}

// Stop ends the spinner
func (s *Spinner) Stop(success bool) {
	s.active = false
	elapsed := time.Since(s.startTime)

	if success {
		_, _ = fmt.Fprintf(s.out, "✓ %s (completed in %v)\n", s.description, elapsed.Round(time.Millisecond))
	} else {
		_, _ = fmt.Fprintf(s.out, "✗ %s (failed after %v)\n", s.description, elapsed.Round(time.Millisecond))
	}
}

// IsActive returns whether the spinner is currently running
func (s *Spinner) IsActive() bool {
	return s.active
}
