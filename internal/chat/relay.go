package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/veilchat/anonbot/internal/domain"
	"github.com/veilchat/anonbot/internal/metrics"
	"github.com/veilchat/anonbot/internal/presence"
)

// Outcome is the result of a relay attempt.
type Outcome int

const (
	// OutcomeDelivered means the content was persisted and forwarded.
	OutcomeDelivered Outcome = iota
	// OutcomeSuppressed means the content was intentionally not relayed
	// (unsupported kind or blocked term) and the sender was notified.
	// This is a defined no-op, not an error.
	OutcomeSuppressed
	// OutcomeFailed means the operation aborted partway.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeSuppressed:
		return "suppressed"
	}
	return "failed"
}

// MediaArchive persists a downloaded platform file and returns the storage
// path recorded on the message row.
type MediaArchive interface {
	Save(kind domain.ContentKind, ref domain.FileRef, data []byte, declaredMime string) (string, error)
}

// TermFilter screens relayed text for prohibited terms.
type TermFilter interface {
	Match(text string) (term string, found bool)
}

const (
	unsupportedNotice = "That message type can't be forwarded to your partner."
	blockedNotice     = "Your message was not delivered: it contains a prohibited term."
)

// Relay dispatches inbound content units to the sender's partner.
type Relay struct {
	store     domain.Store
	cache     *presence.Cache
	transport domain.Transport
	media     MediaArchive // may be nil: no archive copies are kept
	filter    TermFilter   // may be nil: no term screening
	events    Events       // may be nil
}

// NewRelay wires a message relay. media, filter and events may be nil.
func NewRelay(store domain.Store, cache *presence.Cache, transport domain.Transport,
	media MediaArchive, filter TermFilter, events Events) *Relay {
	return &Relay{
		store:     store,
		cache:     cache,
		transport: transport,
		media:     media,
		filter:    filter,
		events:    events,
	}
}

// Relay persists the content unit and forwards it to the sender's partner.
// Membership is confirmed against the store, not the cache alone; a cache
// entry with no backing session is cleared and the call fails with
// ErrNotInSession. While the operation is in flight the sender holds a
// cleanup-suppression hold; it is released unconditionally on the way out
// without disturbing a still-open session settle window.
func (r *Relay) Relay(ctx context.Context, userID int64, content domain.Content) (Outcome, error) {
	sess, err := r.store.ActiveSessionFor(ctx, userID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("chat: confirm session: %w", err)
	}
	if sess == nil {
		if _, ok := r.cache.Partner(userID); ok {
			r.cache.ClearPair(userID)
			log.Printf("[relay] drift: cache had a pairing for %d, store did not", userID)
		}
		return OutcomeFailed, domain.ErrNotInSession
	}

	if content.Kind == domain.KindUnsupported {
		// Defined no-op: notify the sender, never touch store or partner.
		r.notify(ctx, userID, unsupportedNotice)
		metrics.MessagesSuppressed.Inc()
		return OutcomeSuppressed, nil
	}

	if r.filter != nil && content.Text != "" {
		if term, found := r.filter.Match(content.Text); found {
			log.Printf("[relay] blocked term %q from %d", term, userID)
			r.notify(ctx, userID, blockedNotice)
			metrics.MessagesSuppressed.Inc()
			return OutcomeSuppressed, nil
		}
	}

	r.cache.BeginInitializing(userID)
	defer r.cache.EndInitializing(userID)

	mediaPath := ""
	if content.Kind.Media() && r.media != nil {
		mediaPath = r.archive(ctx, content)
	}

	msg := domain.Message{
		ChatID:    sess.ID,
		SenderID:  userID,
		Kind:      content.Kind,
		Body:      content.Text,
		MediaPath: mediaPath,
		SentAt:    time.Now().UTC(),
	}
	if err := r.store.SaveMessage(ctx, msg); err != nil {
		return OutcomeFailed, fmt.Errorf("chat: persist message: %w", err)
	}

	partner := sess.Partner(userID)
	fwdID, err := r.transport.Send(ctx, partner, content)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("chat: forward to %d: %w", partner, err)
	}

	r.cache.AppendOutstanding(partner, fwdID)
	r.cache.MarkProtected(partner, fwdID)
	if content.SourceID != 0 {
		r.cache.MarkProtected(userID, content.SourceID)
	}

	metrics.MessagesRelayed.WithLabelValues(string(content.Kind)).Inc()
	if r.events != nil {
		r.events.MessageRelayed(content.Kind)
	}
	return OutcomeDelivered, nil
}

// ClearHistory deletes the user's outstanding platform messages. A non-full
// clear spares the protected first message; a full clear removes it and
// drops its exemption. Deletes are best effort. The clear is skipped while
// the user's initializing flag is set.
func (r *Relay) ClearHistory(ctx context.Context, userID int64, full bool) {
	if r.cache.Initializing(userID) {
		log.Printf("[relay] history clear for %d skipped, operation in flight", userID)
		return
	}

	protected, hasProtected := r.cache.Protected(userID)
	for _, id := range r.cache.Outstanding(userID) {
		if !full && hasProtected && id == protected {
			continue
		}
		_ = r.transport.Delete(ctx, userID, id)
	}
	r.cache.ClearOutstanding(userID, full)
}

// archive downloads and stores a copy of the referenced file. The archive
// copy is an audit artifact: failures are logged and the relay proceeds,
// forwarding by platform file reference as usual.
func (r *Relay) archive(ctx context.Context, content domain.Content) string {
	data, mime, err := r.transport.Download(ctx, content.File)
	if err != nil {
		log.Printf("[relay] download %s: %v", content.File.FileID, err)
		return ""
	}
	if mime == "" {
		mime = content.File.MimeType
	}
	path, err := r.media.Save(content.Kind, content.File, data, mime)
	if err != nil {
		log.Printf("[relay] archive %s: %v", content.File.FileID, err)
		return ""
	}
	return path
}

func (r *Relay) notify(ctx context.Context, userID int64, text string) {
	if _, err := r.transport.Send(ctx, userID, domain.TextContent(text)); err != nil {
		log.Printf("[relay] notify %d: %v", userID, err)
	}
}
