// Package timing records how long each phase of a migration took.
package timing

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Timer tracks durations of named phases.
type Timer struct {
	title  string
	start  time.Time
	phases []Phase
}

// Phase represents a timed phase with name and duration.
type Phase struct {
	Name     string
	Duration time.Duration
	Failed   bool
}

// New creates a new Timer starting from now.
func New(title string) *Timer {
	return &Timer{title: title, start: time.Now()}
}

// Mark records a named phase ending now.
// Duration is time since last mark (or since start if first mark).
func (t *Timer) Mark(name string) {
	t.mark(name, false)
}

// MarkFailed records a phase that ended in failure.
func (t *Timer) MarkFailed(name string) {
	t.mark(name, true)
}

// Record adds a phase measured elsewhere, e.g. from a step event.
func (t *Timer) Record(name string, d time.Duration, failed bool) {
	t.phases = append(t.phases, Phase{Name: name, Duration: d, Failed: failed})
}

func (t *Timer) mark(name string, failed bool) {
	duration := time.Since(t.start) - t.totalDuration()
	t.phases = append(t.phases, Phase{Name: name, Duration: duration, Failed: failed})
}

// Total returns the total elapsed time since timer creation.
func (t *Timer) Total() time.Duration {
	return time.Since(t.start)
}

// Phases returns all recorded phases.
func (t *Timer) Phases() []Phase {
	return t.phases
}

// Report prints a timing report to the given writer.
func (t *Timer) Report(w io.Writer) {
	header := fmt.Sprintf("=== %s ===", t.title)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, header)
	for _, p := range t.phases {
		status := ""
		if p.Failed {
			status = " (failed)"
		}
		fmt.Fprintf(w, "  %-20s %s%s\n", p.Name+":", formatDuration(p.Duration), status)
	}
	fmt.Fprintf(w, "  %-20s %s\n", "TOTAL:", formatDuration(t.Total()))
	fmt.Fprintln(w, strings.Repeat("=", len(header)))
}

// totalDuration returns the sum of all phase durations.
func (t *Timer) totalDuration() time.Duration {
	var total time.Duration
	for _, p := range t.phases {
		total += p.Duration
	}
	return total
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
