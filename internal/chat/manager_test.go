package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/veilchat/anonbot/internal/domain"
	"github.com/veilchat/anonbot/internal/match"
	"github.com/veilchat/anonbot/internal/presence"
)

// newManager builds a manager with a zero settle delay so the
// initializing window closes within the call.
func newManager(store *fakeStore, cache *presence.Cache, tr *fakeTransport,
	finder PartnerFinder, events Events) *Manager {
	sweeper := NewSweeper(tr, cache)
	return NewManager(store, cache, tr, sweeper, finder, events, 0)
}

func TestCreatePairsBothSides(t *testing.T) {
	store := newStore()
	cache := presence.NewCache()
	tr := newTransport()
	events := &recordingEvents{}
	m := newManager(store, cache, tr, staticFinder{}, events)

	store.Enqueue(context.Background(), 1)

	chatID, err := m.Create(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if chatID == "" {
		t.Fatalf("empty chat id")
	}

	if p, ok := cache.Partner(1); !ok || p != 2 {
		t.Errorf("Partner(1) = %d, %v, want 2, true", p, ok)
	}
	if p, ok := cache.Partner(2); !ok || p != 1 {
		t.Errorf("Partner(2) = %d, %v, want 1, true", p, ok)
	}
	if len(store.queue) != 0 {
		t.Errorf("queue = %v, want both participants dequeued", store.queue)
	}
	if store.activeCount() != 1 {
		t.Errorf("active sessions = %d, want 1", store.activeCount())
	}
	if len(events.matches) != 1 || events.matches[0] != chatID {
		t.Errorf("match events = %v, want [%s]", events.matches, chatID)
	}
	// Zero settle delay clears the initializing window before returning.
	if cache.Initializing(1) || cache.Initializing(2) {
		t.Errorf("initializing flags still set after Create")
	}
}

func TestCreateDeliversPinnedIntro(t *testing.T) {
	store := newStore()
	cache := presence.NewCache()
	tr := newTransport()
	m := newManager(store, cache, tr, staticFinder{}, nil)

	store.Enqueue(context.Background(), 1)
	store.SetProfile(context.Background(), domain.Profile{
		UserID: 2, Gender: domain.GenderFemale, LookingFor: domain.PrefAny, Age: 25,
	})
	store.SetInterests(context.Background(), 1, []string{"music", "hiking"})
	store.SetInterests(context.Background(), 2, []string{"music"})

	if _, err := m.Create(context.Background(), 1, 2); err != nil {
		t.Fatalf("Create: %v", err)
	}

	intro := tr.sentTo(1)
	if len(intro) != 1 {
		t.Fatalf("sends to 1 = %d, want 1 intro", len(intro))
	}
	text := intro[0].content.Text
	for _, want := range []string{"Partner found", "female", "25", "music"} {
		if !strings.Contains(text, want) {
			t.Errorf("intro missing %q:\n%s", want, text)
		}
	}
	if pins := tr.pins[1]; len(pins) != 1 || pins[0] != intro[0].msgID {
		t.Errorf("pins for 1 = %v, want the intro message", pins)
	}
	if out := cache.Outstanding(1); len(out) != 1 || out[0] != intro[0].msgID {
		t.Errorf("outstanding for 1 = %v, want the intro message", out)
	}
}

func TestCreateStoreFailureTouchesNothing(t *testing.T) {
	store := newStore()
	store.failCreate = true
	cache := presence.NewCache()
	tr := newTransport()
	m := newManager(store, cache, tr, staticFinder{}, nil)

	store.Enqueue(context.Background(), 1)

	if _, err := m.Create(context.Background(), 1, 2); err == nil {
		t.Fatalf("Create succeeded with a failing store")
	}
	if _, ok := cache.Partner(1); ok {
		t.Errorf("cache was paired despite store failure")
	}
	if len(tr.sends) != 0 {
		t.Errorf("intros sent despite store failure: %v", tr.sends)
	}
	// Both participants go back into the queue.
	if len(store.queue) != 2 {
		t.Errorf("queue after rollback = %v, want both participants", store.queue)
	}
}

func TestCreateIntroFailureKeepsSession(t *testing.T) {
	store := newStore()
	cache := presence.NewCache()
	tr := newTransport()
	tr.failSendTo[2] = true
	m := newManager(store, cache, tr, staticFinder{}, nil)

	store.Enqueue(context.Background(), 1)

	if _, err := m.Create(context.Background(), 1, 2); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if store.activeCount() != 1 {
		t.Errorf("session rolled back over a failed intro")
	}
	if _, ok := cache.Partner(2); !ok {
		t.Errorf("pairing dropped over a failed intro")
	}
}

func TestCreatePinFailureContinuesUnpinned(t *testing.T) {
	store := newStore()
	cache := presence.NewCache()
	tr := newTransport()
	tr.failPin = true
	m := newManager(store, cache, tr, staticFinder{}, nil)

	store.Enqueue(context.Background(), 1)

	if _, err := m.Create(context.Background(), 1, 2); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(tr.pins[1]) != 0 || len(tr.pins[2]) != 0 {
		t.Errorf("pins recorded despite pin failures")
	}
	if len(tr.sentTo(1)) != 1 || len(tr.sentTo(2)) != 1 {
		t.Errorf("intros not delivered")
	}
}

func TestCreateRequesterClaimLost(t *testing.T) {
	// The requester's queue entry was claimed by a concurrent match
	// between selection and commit. Create must abort and release the
	// partner it was handed.
	store := newStore()
	cache := presence.NewCache()
	tr := newTransport()
	m := newManager(store, cache, tr, staticFinder{}, nil)

	_, err := m.Create(context.Background(), 1, 2)
	if !errors.Is(err, domain.ErrAlreadyPaired) {
		t.Fatalf("Create = %v, want ErrAlreadyPaired", err)
	}
	if store.activeCount() != 0 {
		t.Errorf("session created despite lost requester claim")
	}
	if len(store.queue) != 1 || store.queue[0] != 2 {
		t.Errorf("queue = %v, want the partner released back", store.queue)
	}
	if got := cache.State(2); got != presence.StateSearching {
		t.Errorf("State(2) = %v, want searching", got)
	}
	if len(tr.sends) != 0 {
		t.Errorf("intros sent for an aborted pairing: %v", tr.sends)
	}
}

func TestCreateMutualSearchRace(t *testing.T) {
	// Users 1 and 2 search at the same time: both selection passes run
	// before either commit, each claiming the other out of the queue. At
	// most one session may come out of it, and neither user may end up in
	// two active sessions.
	store := newStore()
	cache := presence.NewCache()
	tr := newTransport()
	m := newManager(store, cache, tr, staticFinder{}, nil)
	mm := match.New(store, cache)

	store.Enqueue(context.Background(), 1)
	store.Enqueue(context.Background(), 2)
	cache.SetSearching(1)
	cache.SetSearching(2)

	p1, found1, err := mm.FindMatch(context.Background(), 1)
	if err != nil || !found1 || p1 != 2 {
		t.Fatalf("FindMatch(1) = %d, %v, %v", p1, found1, err)
	}
	p2, found2, err := mm.FindMatch(context.Background(), 2)
	if err != nil || !found2 || p2 != 1 {
		t.Fatalf("FindMatch(2) = %d, %v, %v", p2, found2, err)
	}

	_, err1 := m.Create(context.Background(), 1, p1)
	_, err2 := m.Create(context.Background(), 2, p2)

	if store.activeCount() > 1 {
		t.Fatalf("active sessions = %d, want at most 1", store.activeCount())
	}
	// Exactly one commit may win; this replay loses the first and lets
	// the second claim the partner the first released.
	if !errors.Is(err1, domain.ErrAlreadyPaired) {
		t.Errorf("first commit = %v, want ErrAlreadyPaired", err1)
	}
	if err2 != nil {
		t.Errorf("second commit = %v, want success", err2)
	}
	if p, ok := cache.Partner(1); !ok || p != 2 {
		t.Errorf("Partner(1) = %d, %v, want 2, true", p, ok)
	}
	if p, ok := cache.Partner(2); !ok || p != 1 {
		t.Errorf("Partner(2) = %d, %v, want 1, true", p, ok)
	}
}

func TestEndUnpairsBothAndEndsSession(t *testing.T) {
	store := newStore()
	cache := presence.NewCache()
	tr := newTransport()
	events := &recordingEvents{}
	m := newManager(store, cache, tr, staticFinder{}, events)

	store.Enqueue(context.Background(), 1)

	chatID, err := m.Create(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.End(context.Background(), 2); err != nil {
		t.Fatalf("End: %v", err)
	}

	if _, ok := cache.Partner(1); ok {
		t.Errorf("user 1 still paired")
	}
	if _, ok := cache.Partner(2); ok {
		t.Errorf("user 2 still paired")
	}
	if store.activeCount() != 0 {
		t.Errorf("session still active in store")
	}
	if tr.unpins[1] != 1 || tr.unpins[2] != 1 {
		t.Errorf("unpins = %v, want one per side", tr.unpins)
	}
	if len(events.ended) != 1 || events.ended[0] != chatID {
		t.Errorf("end events = %v, want [%s]", events.ended, chatID)
	}
}

func TestEndNotInSession(t *testing.T) {
	m := newManager(newStore(), presence.NewCache(), newTransport(), staticFinder{}, nil)

	if err := m.End(context.Background(), 1); !errors.Is(err, domain.ErrNotInSession) {
		t.Fatalf("End = %v, want ErrNotInSession", err)
	}
}

func TestEndDriftClearsCache(t *testing.T) {
	store := newStore()
	cache := presence.NewCache()
	// Cache believes in a pairing the store has no record of.
	cache.SetPaired(1, 2)
	m := newManager(store, cache, newTransport(), staticFinder{}, nil)

	if err := m.End(context.Background(), 1); !errors.Is(err, domain.ErrStateDrift) {
		t.Fatalf("End = %v, want ErrStateDrift", err)
	}
	if _, ok := cache.Partner(1); ok {
		t.Errorf("stale pairing survived drift detection")
	}
}

func TestEndStoreFailureKeepsCache(t *testing.T) {
	store := newStore()
	cache := presence.NewCache()
	m := newManager(store, cache, newTransport(), staticFinder{}, nil)

	store.Enqueue(context.Background(), 1)

	if _, err := m.Create(context.Background(), 1, 2); err != nil {
		t.Fatalf("Create: %v", err)
	}
	store.failEnd = true

	if err := m.End(context.Background(), 1); err == nil {
		t.Fatalf("End succeeded with a failing store")
	}
	// Store stays authoritative: the cache must not be cleared ahead of it.
	if _, ok := cache.Partner(1); !ok {
		t.Errorf("cache cleared although the store still holds the session")
	}
}

func TestSkipRematchesImmediately(t *testing.T) {
	store := newStore()
	cache := presence.NewCache()
	tr := newTransport()
	m := newManager(store, cache, tr, staticFinder{partner: 3, found: true}, nil)

	store.Enqueue(context.Background(), 1)

	if _, err := m.Create(context.Background(), 1, 2); err != nil {
		t.Fatalf("Create: %v", err)
	}

	chatID, matched, err := m.Skip(context.Background(), 1)
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if !matched || chatID == "" {
		t.Fatalf("Skip = %q, %v, want a new session", chatID, matched)
	}
	if p, ok := cache.Partner(1); !ok || p != 3 {
		t.Errorf("Partner(1) = %d, %v, want 3, true", p, ok)
	}
	if _, ok := cache.Partner(2); ok {
		t.Errorf("old partner still paired")
	}
	if store.activeCount() != 1 {
		t.Errorf("active sessions = %d, want 1", store.activeCount())
	}
}

func TestSkipNoCandidateLeavesSearching(t *testing.T) {
	store := newStore()
	cache := presence.NewCache()
	m := newManager(store, cache, newTransport(), staticFinder{}, nil)

	store.Enqueue(context.Background(), 1)

	if _, err := m.Create(context.Background(), 1, 2); err != nil {
		t.Fatalf("Create: %v", err)
	}

	chatID, matched, err := m.Skip(context.Background(), 1)
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if matched || chatID != "" {
		t.Fatalf("Skip = %q, %v, want no match", chatID, matched)
	}
	if got := cache.State(1); got != presence.StateSearching {
		t.Errorf("State(1) = %v, want searching", got)
	}
	if len(store.queue) != 1 || store.queue[0] != 1 {
		t.Errorf("queue = %v, want [1]", store.queue)
	}
}
