package session

import (
	"fmt"
	"testing"

	"github.com/seedhantkalra/caremind/internal/protocol"
)

func TestBufferKeepsInsertionOrder(t *testing.T) {
	b := NewBuffer(10)
	b.Append(protocol.UserTurn("first"))
	b.Append(protocol.AssistantTurn("second"))
	b.Append(protocol.UserTurn("third"))

	snap := b.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3", len(snap))
	}
	for i, want := range []string{"first", "second", "third"} {
		if snap[i].Text != want {
			t.Fatalf("snap[%d].Text = %q, want %q", i, snap[i].Text, want)
		}
	}
}

func TestBufferEvictsOldestFirst(t *testing.T) {
	const capacity = 4
	b := NewBuffer(capacity)
	for i := 0; i < 25; i++ {
		b.Append(protocol.UserTurn(fmt.Sprintf("turn-%d", i)))
		if got := b.Len(); got > capacity {
			t.Fatalf("after %d appends len = %d, want <= %d", i+1, got, capacity)
		}
	}

	snap := b.Snapshot()
	if len(snap) != capacity {
		t.Fatalf("len = %d, want %d", len(snap), capacity)
	}
	// Most recent N turns, relative order preserved.
	for i := 0; i < capacity; i++ {
		want := fmt.Sprintf("turn-%d", 25-capacity+i)
		if snap[i].Text != want {
			t.Fatalf("snap[%d].Text = %q, want %q", i, snap[i].Text, want)
		}
	}
}

func TestBufferSnapshotIsACopy(t *testing.T) {
	b := NewBuffer(4)
	b.Append(protocol.UserTurn("original"))
	snap := b.Snapshot()
	snap[0].Text = "mutated"
	if got := b.Snapshot()[0].Text; got != "original" {
		t.Fatalf("buffer content = %q after mutating a snapshot, want original", got)
	}
}

func TestBufferRetainsDuplicates(t *testing.T) {
	b := NewBuffer(6)
	for i := 0; i < 3; i++ {
		b.Append(protocol.UserTurn("same text"))
	}
	if got := b.Len(); got != 3 {
		t.Fatalf("len = %d, want 3 (no dedup)", got)
	}
}
