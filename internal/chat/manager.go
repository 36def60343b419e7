// Package chat orchestrates the chat-session lifecycle: creating and ending
// pairings, relaying content between partners, and best-effort cleanup of
// platform state. The store is mutated first and the presence cache second,
// so a failure between the two leaves the authoritative state intact and
// the cache self-heals on the next operation.
package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veilchat/anonbot/internal/domain"
	"github.com/veilchat/anonbot/internal/metrics"
	"github.com/veilchat/anonbot/internal/presence"
)

// pinAttempts bounds the best-effort retries around pin/unpin calls.
// Pinning is never on the critical path; after the budget is spent the
// session proceeds unpinned.
const pinAttempts = 2

// Events receives lifecycle notifications. Implementations must not block;
// delivery is best effort.
type Events interface {
	MatchFound(chatID string, userA, userB int64)
	SessionEnded(chatID string)
	MessageRelayed(kind domain.ContentKind)
}

// PartnerFinder selects and claims a partner for a searching user.
type PartnerFinder interface {
	FindMatch(ctx context.Context, userID int64) (int64, bool, error)
}

// Manager drives session creation and termination.
type Manager struct {
	store     domain.Store
	cache     *presence.Cache
	transport domain.Transport
	sweeper   *Sweeper
	finder    PartnerFinder
	events    Events // may be nil

	// settle is how long the initializing flag stays set after a pairing
	// is created, suppressing cleanup sweeps while introductions land.
	settle time.Duration
}

// NewManager wires a session manager. events may be nil.
func NewManager(store domain.Store, cache *presence.Cache, transport domain.Transport,
	sweeper *Sweeper, finder PartnerFinder, events Events, settle time.Duration) *Manager {
	return &Manager{
		store:     store,
		cache:     cache,
		transport: transport,
		sweeper:   sweeper,
		finder:    finder,
		events:    events,
		settle:    settle,
	}
}

// Create persists a new session between a and b. The requester a must hold
// a live search queue entry; it is claimed here, making the commit atomic
// against a concurrent match that selected a in the meantime. Losing that
// claim aborts with ErrAlreadyPaired and releases b back into the queue.
// If the store write fails the pairing is rolled back entirely. If an
// introduction fails the session still stands; the affected user just gets
// no pin.
func (m *Manager) Create(ctx context.Context, a, b int64) (string, error) {
	// b was claimed by matchmaking; a's entry is still live and a
	// concurrent search may have committed a to another session between
	// the queue read and now.
	won, err := m.store.ClaimSearching(ctx, a)
	if err != nil {
		m.release(ctx, b)
		return "", fmt.Errorf("chat: claim requester %d: %w", a, err)
	}
	if !won {
		m.release(ctx, b)
		log.Printf("[session] requester %d claimed by a concurrent match, releasing %d", a, b)
		return "", fmt.Errorf("chat: requester %d: %w", a, domain.ErrAlreadyPaired)
	}

	sess := domain.ChatSession{
		ID:        uuid.NewString(),
		UserA:     a,
		UserB:     b,
		StartedAt: time.Now().UTC(),
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		m.release(ctx, a)
		m.release(ctx, b)
		return "", fmt.Errorf("chat: create session: %w", err)
	}

	m.cache.SetPaired(a, b)
	m.cache.BeginInitializing(a)
	m.cache.BeginInitializing(b)

	m.deliverIntro(ctx, a, b, sess.ID)
	m.deliverIntro(ctx, b, a, sess.ID)

	metrics.ActiveSessions.Inc()
	metrics.SessionsTotal.Inc()
	if m.events != nil {
		m.events.MatchFound(sess.ID, a, b)
	}

	if m.settle <= 0 {
		m.cache.EndInitializing(a)
		m.cache.EndInitializing(b)
	} else {
		time.AfterFunc(m.settle, func() {
			m.cache.EndInitializing(a)
			m.cache.EndInitializing(b)
		})
	}

	log.Printf("[session] created %s: %d <-> %d", sess.ID, a, b)
	return sess.ID, nil
}

// End terminates the session containing userID. Platform cleanup is best
// effort and never blocks success. When the cache claims a pairing the
// store does not have, the stale entry is cleared and ErrStateDrift is
// returned so the caller does not assume a partner exists.
func (m *Manager) End(ctx context.Context, userID int64) error {
	if _, ok := m.cache.Partner(userID); !ok {
		return domain.ErrNotInSession
	}

	sess, err := m.store.ActiveSessionFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("chat: resolve session: %w", err)
	}
	if sess == nil {
		m.cache.ClearPair(userID)
		log.Printf("[session] drift: cache had a pairing for %d, store did not", userID)
		return domain.ErrStateDrift
	}

	if err := m.store.EndSession(ctx, sess.ID); err != nil {
		return fmt.Errorf("chat: end session %s: %w", sess.ID, err)
	}

	partner := sess.Partner(userID)
	for _, uid := range []int64{userID, partner} {
		m.unpin(ctx, uid)
		m.sweeper.Sweep(ctx, uid)
	}

	m.cache.ClearPair(userID)

	metrics.ActiveSessions.Dec()
	if m.events != nil {
		m.events.SessionEnded(sess.ID)
	}
	log.Printf("[session] ended %s: %d <-> %d", sess.ID, userID, partner)
	return nil
}

// Skip ends the current session and immediately re-enters matchmaking for
// userID. When another user is already waiting, the new session is created
// within the same call.
func (m *Manager) Skip(ctx context.Context, userID int64) (string, bool, error) {
	if err := m.End(ctx, userID); err != nil {
		return "", false, err
	}

	if err := m.store.Enqueue(ctx, userID); err != nil {
		return "", false, fmt.Errorf("chat: re-enqueue after skip: %w", err)
	}
	m.cache.SetSearching(userID)

	partner, found, err := m.finder.FindMatch(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}

	chatID, err := m.Create(ctx, userID, partner)
	if err != nil {
		return "", false, err
	}
	return chatID, true, nil
}

// release puts a claimed user back into the search queue so an aborted
// pairing strands nobody. Re-enqueueing is idempotent.
func (m *Manager) release(ctx context.Context, userID int64) {
	if err := m.store.Enqueue(ctx, userID); err != nil {
		log.Printf("[session] release %d back to queue: %v", userID, err)
		return
	}
	m.cache.SetSearching(userID)
}

// deliverIntro sends the partner introduction to userID and pins it.
// Failures degrade: a failed send means no introduction, a failed pin
// means an unpinned one. The session is never rolled back here.
func (m *Manager) deliverIntro(ctx context.Context, userID, partnerID int64, chatID string) {
	text := m.introText(ctx, userID, partnerID)

	msgID, err := m.transport.Send(ctx, userID, domain.TextContent(text))
	if err != nil {
		log.Printf("[session] intro for %d in %s failed, continuing unpinned: %v", userID, chatID, err)
		return
	}
	m.cache.AppendOutstanding(userID, msgID)

	for attempt := 0; attempt < pinAttempts; attempt++ {
		if err = m.transport.Pin(ctx, userID, msgID); err == nil {
			m.sweeper.RecordPinned(userID, msgID)
			return
		}
	}
	log.Printf("[session] pin for %d in %s failed, continuing unpinned: %v", userID, chatID, err)
}

// introText builds the partner introduction shown to userID.
func (m *Manager) introText(ctx context.Context, userID, partnerID int64) string {
	var b strings.Builder
	b.WriteString("Partner found! You are now chatting anonymously.")

	profile, err := m.store.GetProfile(ctx, partnerID)
	if err != nil {
		log.Printf("[session] partner profile for intro: %v", err)
		return b.String()
	}
	if profile != nil {
		if profile.Gender != "" {
			fmt.Fprintf(&b, "\nGender: %s", profile.Gender)
		}
		if profile.Age > 0 {
			fmt.Fprintf(&b, "\nAge: %d", profile.Age)
		}
	}

	partnerTags, err := m.store.GetInterests(ctx, partnerID)
	if err != nil || len(partnerTags) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "\nInterests: %s", strings.Join(partnerTags, ", "))

	ownTags, err := m.store.GetInterests(ctx, userID)
	if err == nil {
		if shared := intersect(ownTags, partnerTags); len(shared) > 0 {
			fmt.Fprintf(&b, "\nShared interests: %s", strings.Join(shared, ", "))
		}
	}
	return b.String()
}

// unpin removes all pins for a user with a bounded retry budget.
func (m *Manager) unpin(ctx context.Context, userID int64) {
	var err error
	for attempt := 0; attempt < pinAttempts; attempt++ {
		if err = m.transport.UnpinAll(ctx, userID); err == nil {
			return
		}
	}
	log.Printf("[session] unpin for %d: %v", userID, err)
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, tag := range a {
		set[tag] = true
	}
	var out []string
	for _, tag := range b {
		if set[tag] {
			out = append(out, tag)
		}
	}
	return out
}
