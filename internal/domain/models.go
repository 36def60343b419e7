// Package domain defines the core entities of the anonymous chat engine and
// the contracts it consumes: the durable session store and the messaging
// platform transport. All other packages depend on this one and never on
// each other's concrete types.
package domain

import "time"

// Gender preference values stored on a profile. An empty or "any" preference
// matches every gender.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	PrefAny      = "any"
)

// User is a platform identity. Created on first contact, never deleted.
type User struct {
	ID        int64 // platform chat id
	Username  string
	FirstName string
	CreatedAt time.Time
}

// Profile holds the optional matchmaking attributes of a user. A profile
// with both Gender and LookingFor set is considered complete and
// participates in preference-aware matching.
type Profile struct {
	UserID     int64
	Gender     string
	LookingFor string
	Age        int
}

// Complete reports whether the profile carries enough data for
// preference-aware matching.
func (p *Profile) Complete() bool {
	return p != nil && p.Gender != "" && p.LookingFor != ""
}

// Accepts reports whether this profile's preference is satisfied by the
// given gender. An unset or "any" preference accepts everyone.
func (p *Profile) Accepts(gender string) bool {
	if p == nil || p.LookingFor == "" || p.LookingFor == PrefAny {
		return true
	}
	return p.LookingFor == gender
}

// QueueEntry is a user waiting in the search queue.
type QueueEntry struct {
	UserID     int64
	EnqueuedAt time.Time
}

// ChatSession is a pairing between two users. EndedAt is zero while the
// session is active.
type ChatSession struct {
	ID        string
	UserA     int64
	UserB     int64
	StartedAt time.Time
	EndedAt   time.Time
}

// Partner returns the other participant, or 0 if userID is not a member.
func (s *ChatSession) Partner(userID int64) int64 {
	switch userID {
	case s.UserA:
		return s.UserB
	case s.UserB:
		return s.UserA
	}
	return 0
}

// IsParticipant reports whether userID is one of the two participants.
func (s *ChatSession) IsParticipant(userID int64) bool {
	return userID == s.UserA || userID == s.UserB
}

// Message is one relayed content unit, retained after session end for audit
// regardless of what later happens to the platform copy.
type Message struct {
	ID        int64
	ChatID    string
	SenderID  int64
	Kind      ContentKind
	Body      string
	MediaPath string
	SentAt    time.Time
}
