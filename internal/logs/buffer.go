package logs

import (
	"sync"

	"github.com/charliek/minerd/internal/constants"
	"github.com/charliek/minerd/internal/domain"
)

// RingBuffer keeps the most recent worker output lines. Writes never block
// on readers; once full, the oldest line is overwritten.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []domain.LogEntry
	next    int // slot the next write goes to
	full    bool
}

// NewRingBuffer creates a new ring buffer with the given capacity
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = constants.DefaultLogBufferSize
	}
	return &RingBuffer{entries: make([]domain.LogEntry, capacity)}
}

// Write adds a new entry to the buffer
func (b *RingBuffer) Write(entry domain.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = entry
	b.next++
	if b.next == len(b.entries) {
		b.next = 0
		b.full = true
	}
}

// Read returns all entries, oldest first
func (b *RingBuffer) Read() []domain.LogEntry {
	return b.ReadLast(0)
}

// ReadLast returns the newest n entries, oldest first. n <= 0 means all.
func (b *RingBuffer) ReadLast(n int) []domain.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.countLocked()
	if count == 0 {
		return nil
	}
	if n <= 0 || n > count {
		n = count
	}

	out := make([]domain.LogEntry, 0, n)
	start := b.next - n
	if start < 0 {
		start += len(b.entries)
	}
	for i := 0; i < n; i++ {
		out = append(out, b.entries[(start+i)%len(b.entries)])
	}
	return out
}

// Count returns the current number of entries in the buffer
func (b *RingBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.countLocked()
}

func (b *RingBuffer) countLocked() int {
	if b.full {
		return len(b.entries)
	}
	return b.next
}

// Capacity returns the maximum capacity of the buffer
func (b *RingBuffer) Capacity() int {
	return len(b.entries)
}
