// Package presence holds the in-process mirror of per-user chat state: who
// is searching, who is paired with whom, which platform messages are
// outstanding, and the short-lived flags that suppress cleanup during
// in-flight operations. The durable store stays authoritative; this cache
// is a read optimization rebuilt from the store at boot and cleared
// whenever drift is detected.
package presence

import (
	"sync"

	"github.com/veilchat/anonbot/internal/domain"
)

// State is a user's cached presence state.
type State int

const (
	StateIdle State = iota
	StateSearching
	StatePaired
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StatePaired:
		return "paired"
	}
	return "idle"
}

type record struct {
	state        State
	partner      int64
	outstanding  []int
	protected    int
	hasProtected bool
	initializing int // cleanup-suppression holds currently open
}

// Cache is the process-wide presence mirror. All mutation goes through its
// methods; the underlying maps are never exposed.
type Cache struct {
	mu    sync.Mutex
	users map[int64]*record
}

// NewCache returns an empty presence cache.
func NewCache() *Cache {
	return &Cache{users: make(map[int64]*record)}
}

func (c *Cache) get(userID int64) *record {
	r, ok := c.users[userID]
	if !ok {
		r = &record{}
		c.users[userID] = r
	}
	return r
}

// State returns the user's cached state.
func (c *Cache) State(userID int64) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.users[userID]; ok {
		return r.state
	}
	return StateIdle
}

// SetSearching marks the user as waiting in the search queue.
func (c *Cache) SetSearching(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.get(userID)
	r.state = StateSearching
	r.partner = 0
}

// ClearSearching moves a searching user back to idle. Paired users are
// left untouched.
func (c *Cache) ClearSearching(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.users[userID]; ok && r.state == StateSearching {
		r.state = StateIdle
	}
}

// SetPaired records the pairing in both directions as a single unit.
func (c *Cache) SetPaired(a, b int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ra, rb := c.get(a), c.get(b)
	ra.state, ra.partner = StatePaired, b
	rb.state, rb.partner = StatePaired, a
}

// Partner returns the user's cached partner id.
func (c *Cache) Partner(userID int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.users[userID]; ok && r.state == StatePaired {
		return r.partner, true
	}
	return 0, false
}

// ClearPair removes the pairing in both directions and drops both sides'
// outstanding-message and protected-message tracking. Clearing an unpaired
// user is a no-op.
func (c *Cache) ClearPair(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.users[userID]
	if !ok || r.state != StatePaired {
		return
	}
	partner := r.partner
	c.reset(r)
	if rp, ok := c.users[partner]; ok && rp.state == StatePaired && rp.partner == userID {
		c.reset(rp)
	}
}

func (c *Cache) reset(r *record) {
	r.state = StateIdle
	r.partner = 0
	r.outstanding = nil
	r.protected = 0
	r.hasProtected = false
}

// AppendOutstanding records a platform message delivered to the user so a
// later history clear can remove it.
func (c *Cache) AppendOutstanding(userID int64, messageID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.get(userID)
	r.outstanding = append(r.outstanding, messageID)
}

// Outstanding returns a copy of the user's outstanding platform message ids.
func (c *Cache) Outstanding(userID int64) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.users[userID]
	if !ok || len(r.outstanding) == 0 {
		return nil
	}
	out := make([]int, len(r.outstanding))
	copy(out, r.outstanding)
	return out
}

// ClearOutstanding drops the user's outstanding list. With full set, the
// protected first message loses its exemption as well.
func (c *Cache) ClearOutstanding(userID int64, full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.users[userID]
	if !ok {
		return
	}
	r.outstanding = nil
	if full {
		r.protected = 0
		r.hasProtected = false
	}
}

// MarkProtected records the user's protected first message. Only the first
// call per pairing takes effect; later calls are no-ops until the pairing
// ends or a full clear resets it.
func (c *Cache) MarkProtected(userID int64, messageID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.get(userID)
	if !r.hasProtected {
		r.protected = messageID
		r.hasProtected = true
	}
}

// Protected returns the user's protected first message id.
func (c *Cache) Protected(userID int64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.users[userID]; ok && r.hasProtected {
		return r.protected, true
	}
	return 0, false
}

// BeginInitializing opens a cleanup-suppression hold for the user. Holds
// nest: the session settle window and an in-flight relay each take their
// own, so one finishing never releases the other's.
func (c *Cache) BeginInitializing(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.get(userID).initializing++
}

// EndInitializing releases one hold. Releasing with none open is a no-op.
func (c *Cache) EndInitializing(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.users[userID]; ok && r.initializing > 0 {
		r.initializing--
	}
}

// Initializing reports whether cleanup for the user is suppressed.
func (c *Cache) Initializing(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.users[userID]; ok {
		return r.initializing > 0
	}
	return false
}

// Rebuild resets the cache from the store's view of the world: one entry
// per active session participant and one per queued user. Called once at
// process start, before any event is handled.
func (c *Cache) Rebuild(sessions []domain.ChatSession, queue []domain.QueueEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = make(map[int64]*record)
	for _, s := range sessions {
		ra, rb := c.get(s.UserA), c.get(s.UserB)
		ra.state, ra.partner = StatePaired, s.UserB
		rb.state, rb.partner = StatePaired, s.UserA
	}
	for _, e := range queue {
		r := c.get(e.UserID)
		if r.state == StateIdle {
			r.state = StateSearching
		}
	}
}

// Counts returns the number of searching and paired users, for metrics.
func (c *Cache) Counts() (searching, paired int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.users {
		switch r.state {
		case StateSearching:
			searching++
		case StatePaired:
			paired++
		}
	}
	return searching, paired
}
