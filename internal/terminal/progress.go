// Package terminal renders operator-facing progress on the console.
package terminal

import (
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

const clearLine = "\r\033[K"

// Progress prints one dot per polling attempt and wipes them once the
// wait is over. On a non-terminal writer the dots are terminated with a
// newline instead.
type Progress struct {
	mu   sync.Mutex
	w    io.Writer
	tty  bool
	dots int
}

// NewProgress wraps w. A nil writer discards everything.
func NewProgress(w io.Writer) *Progress {
	if w == nil {
		w = io.Discard
	}
	return &Progress{w: w, tty: IsTerminal(w)}
}

// IsTerminal returns true if w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Tick records one attempt.
func (p *Progress) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dots++
	io.WriteString(p.w, ".")
}

// Done ends the current run of dots.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dots == 0 {
		return
	}
	if p.tty {
		io.WriteString(p.w, clearLine)
	} else {
		io.WriteString(p.w, "\n")
	}
	p.dots = 0
}
