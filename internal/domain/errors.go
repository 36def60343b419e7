package domain

import "errors"

// Sentinel errors shared across the engine.
var (
	// ErrNotFound indicates a record the store does not have.
	ErrNotFound = errors.New("not found")

	// ErrNotInSession indicates an operation that requires an active
	// pairing was invoked for a user who has none.
	ErrNotInSession = errors.New("user not in an active session")

	// ErrAlreadyPaired indicates a pairing commit lost its claim on the
	// requester: a concurrent match already committed the user to another
	// session. The claimed partner has been released back into the queue.
	ErrAlreadyPaired = errors.New("user already in an active session")

	// ErrStateDrift indicates the presence cache claimed a pairing the
	// store does not have. The stale cache entry has been cleared; the
	// caller must not assume a partner exists.
	ErrStateDrift = errors.New("presence cache out of sync with store")
)
