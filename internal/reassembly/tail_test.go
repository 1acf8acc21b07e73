package reassembly

import (
	"strings"
	"testing"
)

func TestTailBufferKeepsLatestBytes(t *testing.T) {
	tail := newTailBuffer(16)
	tail.Write([]byte("0123456789"))
	tail.Write([]byte("abcdefghij"))
	if got := tail.String(); got != "456789abcdefghij" {
		t.Fatalf("expected oldest bytes dropped, got %q", got)
	}
}

func TestTailBufferOversizedWrite(t *testing.T) {
	tail := newTailBuffer(8)
	tail.Write([]byte(strings.Repeat("x", 100) + "tail-end"))
	if got := tail.String(); got != "tail-end" {
		t.Fatalf("expected only the final bytes of an oversized write, got %q", got)
	}
}

func TestTailBufferSmallWrites(t *testing.T) {
	tail := newTailBuffer(stderrTailLimit)
	tail.Write([]byte("engine: warning\n"))
	tail.Write([]byte("engine: fatal error\n"))
	if got := tail.String(); !strings.Contains(got, "fatal error") {
		t.Fatalf("expected full content under the cap, got %q", got)
	}
}
