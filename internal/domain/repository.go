package domain

import "context"

// Store is the durable source of truth for users, profiles, the search
// queue, chat sessions and message history. It survives process restarts;
// the presence cache is rebuilt from it at boot and reconciled against it
// whenever drift is detected.
type Store interface {
	// EnsureUser creates the user on first contact and is a no-op after.
	EnsureUser(ctx context.Context, user User) error

	// GetProfile returns the user's profile, or nil when none exists.
	GetProfile(ctx context.Context, userID int64) (*Profile, error)

	// GetInterests returns the user's interest tags.
	GetInterests(ctx context.Context, userID int64) ([]string, error)

	// Enqueue adds the user to the search queue. Re-enqueueing an already
	// queued user is a no-op that preserves the original queue position.
	Enqueue(ctx context.Context, userID int64) error

	// Dequeue removes the user from the search queue if present.
	Dequeue(ctx context.Context, userID int64) error

	// ClaimSearching atomically removes the user from the search queue and
	// reports whether this call won the removal. A false result means a
	// concurrent match already claimed the user; it is not an error.
	ClaimSearching(ctx context.Context, userID int64) (bool, error)

	// ListQueue returns all queue entries ordered by enqueue time,
	// earliest first.
	ListQueue(ctx context.Context) ([]QueueEntry, error)

	// CreateSession persists a new active chat session.
	CreateSession(ctx context.Context, session ChatSession) error

	// ActiveSessionFor resolves the active session containing the user,
	// or nil when the user is not paired.
	ActiveSessionFor(ctx context.Context, userID int64) (*ChatSession, error)

	// EndSession moves an active session to the ended set, preserving
	// participants and start time. Ending an already ended or unknown
	// session returns ErrNotFound.
	EndSession(ctx context.Context, chatID string) error

	// ActiveSessions returns every active session, used for the boot-time
	// cache rebuild.
	ActiveSessions(ctx context.Context) ([]ChatSession, error)

	// SaveMessage appends a relayed message to the history.
	SaveMessage(ctx context.Context, msg Message) error

	// SetProfile creates or replaces the user's profile.
	SetProfile(ctx context.Context, profile Profile) error

	// SetInterests replaces the user's interest set.
	SetInterests(ctx context.Context, userID int64, tags []string) error
}

// Transport is the messaging platform boundary. Message ids are platform
// message ids scoped to the receiving user's chat.
type Transport interface {
	// Send delivers a content unit to the user and returns the platform
	// message id of the delivered copy.
	Send(ctx context.Context, userID int64, content Content) (int, error)

	// Edit replaces the text of a previously sent message.
	Edit(ctx context.Context, userID int64, messageID int, text string) error

	// Delete removes a previously sent message. Callers on best-effort
	// cleanup paths discard the error.
	Delete(ctx context.Context, userID int64, messageID int) error

	// Pin pins a message in the user's chat.
	Pin(ctx context.Context, userID int64, messageID int) error

	// UnpinAll removes every pin in the user's chat.
	UnpinAll(ctx context.Context, userID int64) error

	// Download fetches a platform file and returns its bytes and the
	// MIME type reported by the platform (may be empty).
	Download(ctx context.Context, ref FileRef) ([]byte, string, error)
}
