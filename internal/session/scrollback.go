package session

import "sync"

// defaultScrollbackSize caps retained output at 1 MB per session.
const defaultScrollbackSize = 1024 * 1024

// ScrollbackBuffer retains terminal output so a surface attaching later can
// replay what it missed. Oldest bytes are trimmed once maxLen is exceeded.
// Contents live and die with the session; nothing is persisted.
type ScrollbackBuffer struct {
	mu     sync.Mutex
	data   []byte
	maxLen int
}

func NewScrollbackBuffer(maxLen int) *ScrollbackBuffer {
	if maxLen <= 0 {
		maxLen = defaultScrollbackSize
	}
	return &ScrollbackBuffer{maxLen: maxLen}
}

// Write appends output, trimming from the front past maxLen.
func (b *ScrollbackBuffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if len(b.data) > b.maxLen {
		b.data = b.data[len(b.data)-b.maxLen:]
	}
}

// Snapshot returns a copy of the retained output.
func (b *ScrollbackBuffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Len returns the retained byte count.
func (b *ScrollbackBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Reset discards all retained output. Used on reconnect, matching the
// client clearing its screen before a fresh connection.
func (b *ScrollbackBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
}
