package session

import (
	"sync"

	"github.com/seedhantkalra/caremind/internal/protocol"
)

// DefaultBufferCapacity holds five user+assistant exchange pairs.
const DefaultBufferCapacity = 10

// Buffer is the short-term conversation log for one session: insertion
// ordered, capacity bounded, oldest-evicted. It is volatile; ending the
// session destroys it. Safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	capacity int
	turns    []protocol.Turn
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{capacity: capacity}
}

// Append records a turn, evicting the oldest turn first once the buffer is
// at capacity. Every append is retained until evicted; no deduplication.
func (b *Buffer) Append(turn protocol.Turn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = append(b.turns, turn)
	if len(b.turns) > b.capacity {
		over := len(b.turns) - b.capacity
		b.turns = append(b.turns[:0:0], b.turns[over:]...)
	}
}

// Snapshot returns a copy of the buffered turns in insertion order.
func (b *Buffer) Snapshot() []protocol.Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]protocol.Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

// Len reports the number of buffered turns.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.turns)
}
