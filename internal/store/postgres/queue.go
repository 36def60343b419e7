package postgres

import (
	"context"
	"fmt"

	"github.com/veilchat/anonbot/internal/domain"
)

// Enqueue adds the user to the search queue. An already queued user keeps
// the original enqueue time, so re-requesting a search never loses queue
// position.
func (s *Store) Enqueue(ctx context.Context, userID int64) error {
	const query = `
		INSERT INTO search_queue (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("store: enqueue %d: %w", userID, err)
	}
	return nil
}

// Dequeue removes the user from the search queue if present.
func (s *Store) Dequeue(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM search_queue WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("store: dequeue %d: %w", userID, err)
	}
	return nil
}

// ClaimSearching atomically removes the user from the queue and reports
// whether this call performed the removal. The row delete is the claim:
// exactly one of two concurrent callers observes an affected row.
func (s *Store) ClaimSearching(ctx context.Context, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM search_queue WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("store: claim %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: claim %d: %w", userID, err)
	}
	return n == 1, nil
}

// ListQueue returns every queue entry, earliest enqueued first.
func (s *Store) ListQueue(ctx context.Context) ([]domain.QueueEntry, error) {
	const query = `
		SELECT user_id, enqueued_at
		FROM search_queue
		ORDER BY enqueued_at, user_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list queue: %w", err)
	}
	defer rows.Close()

	var entries []domain.QueueEntry
	for rows.Next() {
		var e domain.QueueEntry
		if err := rows.Scan(&e.UserID, &e.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("store: list queue: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
