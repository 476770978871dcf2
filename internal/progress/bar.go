// Package progress draws a single-line progress bar for batch tagging.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const barWidth = 40

// Bar represents a simple progress bar
type Bar struct {
	w         io.Writer
	label     string
	total     int
	current   int
	mu        sync.Mutex
	startTime time.Time
	lastPrint time.Time
	done      bool
}

// IsTerminal reports whether f is an interactive terminal. A bar drawn to
// a pipe or a file only produces noise.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// New creates a progress bar drawn to w. total may be zero and set later
// with SetTotal.
func New(w io.Writer, label string, total int) *Bar {
	now := time.Now()
	return &Bar{
		w:         w,
		label:     label,
		total:     total,
		startTime: now,
		lastPrint: now,
	}
}

// SetTotal changes the number of expected steps and restarts the clock.
func (b *Bar) SetTotal(total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total = total
	b.startTime = time.Now()
}

// Increment increases the progress counter
func (b *Bar) Increment() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current++

	// Update display every 500ms or when complete
	now := time.Now()
	if now.Sub(b.lastPrint) > 500*time.Millisecond || b.current >= b.total {
		b.render()
		b.lastPrint = now
	}
}

// Finish marks the progress as complete
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.done {
		b.current = b.total
		b.render()
		fmt.Fprintln(b.w)
		b.done = true
	}
}

func (b *Bar) render() {
	if b.done || b.total <= 0 {
		return
	}
	current := min(b.current, b.total)

	percentage := float64(current) / float64(b.total) * 100
	elapsed := time.Since(b.startTime)

	var eta time.Duration
	if current > 0 {
		avgTime := elapsed / time.Duration(current)
		eta = avgTime * time.Duration(b.total-current)
	}

	filled := barWidth * current / b.total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	prefix := ""
	if b.label != "" {
		prefix = b.label + " "
	}
	fmt.Fprintf(b.w, "\r%s[%s] %d/%d (%.1f%%) - Elapsed: %s - ETA: %s   ",
		prefix,
		bar,
		current,
		b.total,
		percentage,
		formatDuration(elapsed),
		formatDuration(eta),
	)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
