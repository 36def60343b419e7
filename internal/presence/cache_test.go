package presence

import (
	"testing"

	"github.com/veilchat/anonbot/internal/domain"
)

func TestStateTransitions(t *testing.T) {
	c := NewCache()

	if got := c.State(1); got != StateIdle {
		t.Fatalf("unknown user state = %v, want idle", got)
	}

	c.SetSearching(1)
	if got := c.State(1); got != StateSearching {
		t.Fatalf("state after SetSearching = %v, want searching", got)
	}

	c.ClearSearching(1)
	if got := c.State(1); got != StateIdle {
		t.Fatalf("state after ClearSearching = %v, want idle", got)
	}
}

func TestClearSearchingLeavesPairedAlone(t *testing.T) {
	c := NewCache()
	c.SetPaired(1, 2)

	c.ClearSearching(1)
	if got := c.State(1); got != StatePaired {
		t.Fatalf("state = %v, want paired", got)
	}
}

func TestSetPairedBothDirections(t *testing.T) {
	c := NewCache()
	c.SetPaired(1, 2)

	if p, ok := c.Partner(1); !ok || p != 2 {
		t.Fatalf("Partner(1) = %d, %v, want 2, true", p, ok)
	}
	if p, ok := c.Partner(2); !ok || p != 1 {
		t.Fatalf("Partner(2) = %d, %v, want 1, true", p, ok)
	}
}

func TestClearPairResetsBothSides(t *testing.T) {
	c := NewCache()
	c.SetPaired(1, 2)
	c.AppendOutstanding(1, 100)
	c.AppendOutstanding(2, 200)
	c.MarkProtected(1, 100)

	c.ClearPair(1)

	for _, id := range []int64{1, 2} {
		if got := c.State(id); got != StateIdle {
			t.Errorf("State(%d) = %v, want idle", id, got)
		}
		if out := c.Outstanding(id); out != nil {
			t.Errorf("Outstanding(%d) = %v, want nil", id, out)
		}
	}
	if _, ok := c.Protected(1); ok {
		t.Errorf("protected message survived ClearPair")
	}
}

func TestClearPairUnpairedNoop(t *testing.T) {
	c := NewCache()
	c.SetSearching(1)

	c.ClearPair(1)
	if got := c.State(1); got != StateSearching {
		t.Fatalf("state = %v, want searching", got)
	}
}

func TestOutstandingCopy(t *testing.T) {
	c := NewCache()
	c.AppendOutstanding(1, 10)
	c.AppendOutstanding(1, 11)

	out := c.Outstanding(1)
	out[0] = 999

	if got := c.Outstanding(1); got[0] != 10 || got[1] != 11 {
		t.Fatalf("Outstanding mutated through returned slice: %v", got)
	}
}

func TestMarkProtectedFirstWins(t *testing.T) {
	c := NewCache()
	c.MarkProtected(1, 10)
	c.MarkProtected(1, 20)

	if got, ok := c.Protected(1); !ok || got != 10 {
		t.Fatalf("Protected = %d, %v, want 10, true", got, ok)
	}
}

func TestClearOutstandingFull(t *testing.T) {
	c := NewCache()
	c.AppendOutstanding(1, 10)
	c.MarkProtected(1, 10)

	c.ClearOutstanding(1, false)
	if _, ok := c.Protected(1); !ok {
		t.Fatalf("partial clear dropped the protected message")
	}

	c.ClearOutstanding(1, true)
	if _, ok := c.Protected(1); ok {
		t.Fatalf("full clear kept the protected message")
	}
	// A later message may become the new protected one.
	c.MarkProtected(1, 20)
	if got, _ := c.Protected(1); got != 20 {
		t.Fatalf("Protected after full clear = %d, want 20", got)
	}
}

func TestInitializingHolds(t *testing.T) {
	c := NewCache()
	if c.Initializing(1) {
		t.Fatalf("fresh user reported initializing")
	}
	c.BeginInitializing(1)
	if !c.Initializing(1) {
		t.Fatalf("hold not taken")
	}
	c.EndInitializing(1)
	if c.Initializing(1) {
		t.Fatalf("hold not released")
	}
}

func TestInitializingHoldsNest(t *testing.T) {
	c := NewCache()
	c.BeginInitializing(1)
	c.BeginInitializing(1)

	c.EndInitializing(1)
	if !c.Initializing(1) {
		t.Fatalf("releasing one hold released both")
	}
	c.EndInitializing(1)
	if c.Initializing(1) {
		t.Fatalf("holds not fully released")
	}

	// A stray release must not go negative.
	c.EndInitializing(1)
	c.BeginInitializing(1)
	if !c.Initializing(1) {
		t.Fatalf("hold count went negative")
	}
}

func TestRebuild(t *testing.T) {
	c := NewCache()
	c.SetSearching(99) // stale entry, must be dropped

	sessions := []domain.ChatSession{{ID: "s1", UserA: 1, UserB: 2}}
	queue := []domain.QueueEntry{
		{UserID: 3},
		{UserID: 1}, // stale queue row for a paired user
	}
	c.Rebuild(sessions, queue)

	if p, ok := c.Partner(1); !ok || p != 2 {
		t.Errorf("Partner(1) = %d, %v, want 2, true", p, ok)
	}
	if got := c.State(3); got != StateSearching {
		t.Errorf("State(3) = %v, want searching", got)
	}
	if got := c.State(1); got != StatePaired {
		t.Errorf("queued row demoted a paired user: %v", got)
	}
	if got := c.State(99); got != StateIdle {
		t.Errorf("stale entry survived rebuild: %v", got)
	}

	searching, paired := c.Counts()
	if searching != 1 || paired != 2 {
		t.Errorf("Counts = %d searching, %d paired, want 1, 2", searching, paired)
	}
}
