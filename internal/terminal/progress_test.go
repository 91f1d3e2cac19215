package terminal

import (
	"bytes"
	"testing"
)

func TestProgressNonTTY(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)

	p.Tick()
	p.Tick()
	if got := p.dots; got != 2 {
		t.Errorf("dots = %d, want 2", got)
	}
	p.Done()

	if got := buf.String(); got != "..\n" {
		t.Errorf("output = %q, want %q", got, "..\n")
	}
	if got := p.dots; got != 0 {
		t.Errorf("dots after Done = %d, want 0", got)
	}
}

func TestProgressDoneWithoutTicks(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	p.Done()
	if buf.Len() != 0 {
		t.Errorf("output = %q, want empty", buf.String())
	}
}

func TestProgressNilWriter(t *testing.T) {
	p := NewProgress(nil)
	p.Tick()
	p.Done()
}

func TestIsTerminalBuffer(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("IsTerminal(buffer) = true, want false")
	}
}
