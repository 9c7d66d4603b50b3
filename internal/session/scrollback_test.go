package session

import (
	"bytes"
	"strings"
	"testing"
)

func TestScrollbackTrimsOldestPastCap(t *testing.T) {
	b := NewScrollbackBuffer(10)
	b.Write([]byte("0123456789"))
	b.Write([]byte("abcde"))

	if got := string(b.Snapshot()); got != "56789abcde" {
		t.Errorf("snapshot = %q, want oldest bytes trimmed", got)
	}
	if b.Len() != 10 {
		t.Errorf("len = %d, want 10", b.Len())
	}
}

func TestScrollbackSingleOversizedWrite(t *testing.T) {
	b := NewScrollbackBuffer(4)
	b.Write([]byte("overflowing"))
	if got := string(b.Snapshot()); got != "wing" {
		t.Errorf("snapshot = %q, want tail of the write", got)
	}
}

func TestScrollbackSnapshotIsCopy(t *testing.T) {
	b := NewScrollbackBuffer(0)
	b.Write([]byte("stable"))
	snap := b.Snapshot()
	snap[0] = 'X'
	if string(b.Snapshot()) != "stable" {
		t.Error("snapshot aliases internal buffer")
	}
}

func TestScrollbackReset(t *testing.T) {
	b := NewScrollbackBuffer(0)
	b.Write([]byte(strings.Repeat("x", 100)))
	b.Reset()
	if b.Len() != 0 || !bytes.Equal(b.Snapshot(), nil) {
		t.Errorf("buffer not empty after reset: %d bytes", b.Len())
	}
}
