// Package ban provides user-id keyed ban management backed by Redis. Ban
// records are simple key-value pairs with TTL-based expiry:
//
//	Key:   ban:<user_id>
//	Value: <reason>
//	TTL:   ban duration
package ban

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// BanPrefix is the Redis key prefix for ban records.
	BanPrefix = "ban:"

	// ReportsPrefix is the Redis key prefix for report counters.
	ReportsPrefix = "reports:"

	// Escalating ban durations by offense count.
	Ban15Min  = 15 * time.Minute // 1st offense
	Ban1Hour  = 1 * time.Hour    // 2nd offense
	Ban24Hour = 24 * time.Hour   // 3rd+ offense

	// ReportsTTL is how long the report counter lives. After 24h with no
	// new reports the counter resets to zero.
	ReportsTTL = 24 * time.Hour

	// AutoBanThreshold is the number of reports within ReportsTTL that
	// triggers an automatic ban.
	AutoBanThreshold = 3
)

// Store manages ban records in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a ban store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func banKey(userID int64) string {
	return BanPrefix + strconv.FormatInt(userID, 10)
}

func reportsKey(userID int64) string {
	return ReportsPrefix + strconv.FormatInt(userID, 10)
}

// IsBanned checks whether the user is currently banned. Returns the ban
// state, the remaining seconds, and the recorded reason. Redis errors are
// returned so callers can decide; the recommended policy is fail-open.
func (s *Store) IsBanned(ctx context.Context, userID int64) (bool, int, string, error) {
	reason, err := s.client.Get(ctx, banKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, "", nil
	}
	if err != nil {
		return false, 0, "", err
	}

	ttl, err := s.client.TTL(ctx, banKey(userID)).Result()
	if err != nil {
		// The ban exists but the TTL is unreadable. Report banned with 0
		// remaining rather than swallowing the ban.
		return true, 0, reason, nil
	}

	remaining := 0
	if ttl > 0 {
		remaining = int(ttl.Seconds())
	}
	return true, remaining, reason, nil
}

// Ban bans the user for the given duration. The ban expires automatically.
func (s *Store) Ban(ctx context.Context, userID int64, duration time.Duration, reason string) error {
	return s.client.Set(ctx, banKey(userID), reason, duration).Err()
}

// Unban lifts the user's ban immediately.
func (s *Store) Unban(ctx context.Context, userID int64) error {
	return s.client.Del(ctx, banKey(userID)).Err()
}

// escalationDuration returns the ban duration for a given offense count.
func escalationDuration(offenseCount int) time.Duration {
	switch {
	case offenseCount <= 1:
		return Ban15Min
	case offenseCount == 2:
		return Ban1Hour
	default:
		return Ban24Hour
	}
}

// ReportAndCheck increments the user's report counter and, once the
// auto-ban threshold is reached within the counter's window, applies a ban
// whose duration escalates with the count:
//
//	1st offense  -> 15 minutes
//	2nd offense  -> 1 hour
//	3rd+ offense -> 24 hours
//
// Returns whether a ban was applied and for how long.
func (s *Store) ReportAndCheck(ctx context.Context, userID int64, reason string) (bool, time.Duration, error) {
	count, err := s.client.Incr(ctx, reportsKey(userID)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ban: report incr: %w", err)
	}

	// Set the TTL only on the first increment so the window doesn't slide.
	if count == 1 {
		if err := s.client.Expire(ctx, reportsKey(userID), ReportsTTL).Err(); err != nil {
			return false, 0, fmt.Errorf("ban: report expire: %w", err)
		}
	}

	if count >= AutoBanThreshold {
		duration := escalationDuration(int(count))
		if err := s.Ban(ctx, userID, duration, reason); err != nil {
			return false, 0, fmt.Errorf("ban: report ban: %w", err)
		}
		return true, duration, nil
	}
	return false, 0, nil
}
