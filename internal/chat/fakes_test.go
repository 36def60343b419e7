package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/veilchat/anonbot/internal/domain"
)

var errStore = errors.New("store down")

// fakeStore is an in-memory domain.Store with per-operation failure
// switches for lifecycle tests.
type fakeStore struct {
	mu        sync.Mutex
	queue     []int64
	profiles  map[int64]*domain.Profile
	interests map[int64][]string
	sessions  map[string]*domain.ChatSession
	messages  []domain.Message

	failCreate bool
	failEnd    bool
	failSave   bool
}

func newStore() *fakeStore {
	return &fakeStore{
		profiles:  make(map[int64]*domain.Profile),
		interests: make(map[int64][]string),
		sessions:  make(map[string]*domain.ChatSession),
	}
}

func (f *fakeStore) EnsureUser(context.Context, domain.User) error { return nil }

func (f *fakeStore) GetProfile(_ context.Context, userID int64) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles[userID], nil
}

func (f *fakeStore) GetInterests(_ context.Context, userID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interests[userID], nil
}

func (f *fakeStore) Enqueue(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.queue {
		if id == userID {
			return nil
		}
	}
	f.queue = append(f.queue, userID)
	return nil
}

func (f *fakeStore) Dequeue(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range f.queue {
		if id == userID {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) ClaimSearching(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, id := range f.queue {
		if id == userID {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListQueue(context.Context) ([]domain.QueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.QueueEntry, 0, len(f.queue))
	for _, id := range f.queue {
		out = append(out, domain.QueueEntry{UserID: id})
	}
	return out, nil
}

func (f *fakeStore) CreateSession(_ context.Context, s domain.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return errStore
	}
	f.sessions[s.ID] = &s
	return nil
}

func (f *fakeStore) ActiveSessionFor(_ context.Context, userID int64) (*domain.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.EndedAt.IsZero() && s.IsParticipant(userID) {
			dup := *s
			return &dup, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) EndSession(_ context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEnd {
		return errStore
	}
	s, ok := f.sessions[chatID]
	if !ok || !s.EndedAt.IsZero() {
		return domain.ErrNotFound
	}
	s.EndedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) ActiveSessions(context.Context) ([]domain.ChatSession, error) {
	return nil, nil
}

func (f *fakeStore) SaveMessage(_ context.Context, msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errStore
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeStore) SetProfile(_ context.Context, p domain.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.UserID] = &p
	return nil
}

func (f *fakeStore) SetInterests(_ context.Context, userID int64, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interests[userID] = tags
	return nil
}

func (f *fakeStore) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sessions {
		if s.EndedAt.IsZero() {
			n++
		}
	}
	return n
}

// sent is one delivered transport message.
type sent struct {
	userID  int64
	content domain.Content
	msgID   int
}

// fakeTransport records everything sent, pinned and deleted, with
// per-operation failure switches.
type fakeTransport struct {
	mu      sync.Mutex
	nextID  int
	sends   []sent
	pins    map[int64][]int
	unpins  map[int64]int
	deletes map[int64][]int

	failSendTo map[int64]bool
	failPin    bool
}

func newTransport() *fakeTransport {
	return &fakeTransport{
		nextID:     100,
		pins:       make(map[int64][]int),
		unpins:     make(map[int64]int),
		deletes:    make(map[int64][]int),
		failSendTo: make(map[int64]bool),
	}
}

func (t *fakeTransport) Send(_ context.Context, userID int64, content domain.Content) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSendTo[userID] {
		return 0, errors.New("send failed")
	}
	t.nextID++
	t.sends = append(t.sends, sent{userID: userID, content: content, msgID: t.nextID})
	return t.nextID, nil
}

func (t *fakeTransport) Edit(context.Context, int64, int, string) error { return nil }

func (t *fakeTransport) Delete(_ context.Context, userID int64, messageID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deletes[userID] = append(t.deletes[userID], messageID)
	return nil
}

func (t *fakeTransport) Pin(_ context.Context, userID int64, messageID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failPin {
		return errors.New("pin failed")
	}
	t.pins[userID] = append(t.pins[userID], messageID)
	return nil
}

func (t *fakeTransport) UnpinAll(_ context.Context, userID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unpins[userID]++
	return nil
}

func (t *fakeTransport) Download(context.Context, domain.FileRef) ([]byte, string, error) {
	return []byte("payload"), "image/jpeg", nil
}

func (t *fakeTransport) sentTo(userID int64) []sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []sent
	for _, s := range t.sends {
		if s.userID == userID {
			out = append(out, s)
		}
	}
	return out
}

func (t *fakeTransport) deleted(userID int64) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int, len(t.deletes[userID]))
	copy(out, t.deletes[userID])
	return out
}

// staticFinder returns a fixed matchmaking result.
type staticFinder struct {
	partner int64
	found   bool
}

func (s staticFinder) FindMatch(context.Context, int64) (int64, bool, error) {
	return s.partner, s.found, nil
}

// recordingEvents captures lifecycle notifications.
type recordingEvents struct {
	mu      sync.Mutex
	matches []string
	ended   []string
	relayed []domain.ContentKind
}

func (e *recordingEvents) MatchFound(chatID string, _, _ int64) {
	e.mu.Lock()
	e.matches = append(e.matches, chatID)
	e.mu.Unlock()
}

func (e *recordingEvents) SessionEnded(chatID string) {
	e.mu.Lock()
	e.ended = append(e.ended, chatID)
	e.mu.Unlock()
}

func (e *recordingEvents) MessageRelayed(kind domain.ContentKind) {
	e.mu.Lock()
	e.relayed = append(e.relayed, kind)
	e.mu.Unlock()
}

// wordFilter blocks exact text matches.
type wordFilter struct{ blocked string }

func (w wordFilter) Match(text string) (string, bool) {
	if w.blocked != "" && text == w.blocked {
		return w.blocked, true
	}
	return "", false
}

// memArchive records archived files in memory.
type memArchive struct {
	mu    sync.Mutex
	saved []string
	fail  bool
}

func (a *memArchive) Save(_ domain.ContentKind, ref domain.FileRef, _ []byte, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return "", errors.New("disk full")
	}
	path := "/archive/" + ref.FileID
	a.saved = append(a.saved, path)
	return path, nil
}
