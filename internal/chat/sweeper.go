package chat

import (
	"context"
	"sync"

	"github.com/veilchat/anonbot/internal/domain"
	"github.com/veilchat/anonbot/internal/metrics"
	"github.com/veilchat/anonbot/internal/presence"
)

// noticeProbeWindow is how many message ids after the last pinned message
// the sweeper probes for the platform's "message pinned" service notice.
// The platform does not report the notice's id, so the sweep guesses: the
// notice usually lands within a few ids of the pin. This is a best-effort
// nicety, never a correctness requirement.
const noticeProbeWindow = 4

// Sweeper removes platform-generated pin notices from users' chats. Every
// delete may fail silently; a sweep never raises to the caller and is
// skipped entirely while the user's initializing flag is set.
type Sweeper struct {
	transport domain.Transport
	cache     *presence.Cache

	mu      sync.Mutex
	pinned  map[int64]int // last message id this bot pinned per user
	notices map[int64]int // observed pin-notice message ids per user
}

// NewSweeper creates a sweeper over the given transport and cache.
func NewSweeper(transport domain.Transport, cache *presence.Cache) *Sweeper {
	return &Sweeper{
		transport: transport,
		cache:     cache,
		pinned:    make(map[int64]int),
		notices:   make(map[int64]int),
	}
}

// RecordPinned notes the message id the bot just pinned in the user's chat.
func (s *Sweeper) RecordPinned(userID int64, messageID int) {
	s.mu.Lock()
	s.pinned[userID] = messageID
	s.mu.Unlock()
}

// RecordNotice notes an observed pin-notice service message, so a later
// sweep can delete it directly instead of guessing.
func (s *Sweeper) RecordNotice(userID int64, messageID int) {
	s.mu.Lock()
	s.notices[userID] = messageID
	s.mu.Unlock()
}

// Sweep deletes the recorded pin notice if known and probes the id window
// after the last pinned message for unrecorded ones.
func (s *Sweeper) Sweep(ctx context.Context, userID int64) {
	if s.cache.Initializing(userID) {
		return
	}

	s.mu.Lock()
	notice, hasNotice := s.notices[userID]
	pinned, hasPinned := s.pinned[userID]
	delete(s.notices, userID)
	delete(s.pinned, userID)
	s.mu.Unlock()

	if !hasNotice && !hasPinned {
		return
	}
	if hasNotice {
		_ = s.transport.Delete(ctx, userID, notice)
	}
	if hasPinned {
		for i := 1; i <= noticeProbeWindow; i++ {
			_ = s.transport.Delete(ctx, userID, pinned+i)
		}
	}
	metrics.SweepsTotal.Inc()
}
