package chat

import (
	"context"
	"testing"

	"github.com/veilchat/anonbot/internal/presence"
)

func TestSweepNothingRecorded(t *testing.T) {
	tr := newTransport()
	s := NewSweeper(tr, presence.NewCache())

	s.Sweep(context.Background(), 1)
	if len(tr.deleted(1)) != 0 {
		t.Fatalf("deletes = %v, want none", tr.deleted(1))
	}
}

func TestSweepDeletesRecordedNotice(t *testing.T) {
	tr := newTransport()
	s := NewSweeper(tr, presence.NewCache())

	s.RecordNotice(1, 42)
	s.Sweep(context.Background(), 1)

	deleted := tr.deleted(1)
	if len(deleted) != 1 || deleted[0] != 42 {
		t.Fatalf("deleted = %v, want [42]", deleted)
	}

	// The record is consumed; a second sweep is a no-op.
	s.Sweep(context.Background(), 1)
	if len(tr.deleted(1)) != 1 {
		t.Fatalf("second sweep re-deleted: %v", tr.deleted(1))
	}
}

func TestSweepProbesAfterPin(t *testing.T) {
	tr := newTransport()
	s := NewSweeper(tr, presence.NewCache())

	s.RecordPinned(1, 100)
	s.Sweep(context.Background(), 1)

	deleted := tr.deleted(1)
	want := []int{101, 102, 103, 104}
	if len(deleted) != len(want) {
		t.Fatalf("deleted = %v, want %v", deleted, want)
	}
	for i, id := range want {
		if deleted[i] != id {
			t.Fatalf("deleted = %v, want %v", deleted, want)
		}
	}
}

func TestSweepSkippedWhileInitializing(t *testing.T) {
	tr := newTransport()
	cache := presence.NewCache()
	s := NewSweeper(tr, cache)

	s.RecordNotice(1, 42)
	cache.BeginInitializing(1)
	s.Sweep(context.Background(), 1)

	if len(tr.deleted(1)) != 0 {
		t.Fatalf("sweep ran during the initializing window")
	}

	// The record survives for the next sweep.
	cache.EndInitializing(1)
	s.Sweep(context.Background(), 1)
	if d := tr.deleted(1); len(d) != 1 || d[0] != 42 {
		t.Fatalf("deleted = %v, want [42] after the window closed", d)
	}
}
