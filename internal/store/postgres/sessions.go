package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/veilchat/anonbot/internal/domain"
)

// CreateSession persists a new active chat session.
func (s *Store) CreateSession(ctx context.Context, session domain.ChatSession) error {
	const query = `
		INSERT INTO chat_sessions (id, user_a, user_b, started_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.UserA, session.UserB, session.StartedAt)
	if err != nil {
		return fmt.Errorf("store: create session %s: %w", session.ID, err)
	}
	return nil
}

// ActiveSessionFor resolves the active session containing the user, or nil
// when the user is not paired.
func (s *Store) ActiveSessionFor(ctx context.Context, userID int64) (*domain.ChatSession, error) {
	const query = `
		SELECT id, user_a, user_b, started_at
		FROM chat_sessions
		WHERE ended_at IS NULL AND (user_a = $1 OR user_b = $1)
		LIMIT 1`

	var sess domain.ChatSession
	err := s.db.QueryRowContext(ctx, query, userID).
		Scan(&sess.ID, &sess.UserA, &sess.UserB, &sess.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: active session for %d: %w", userID, err)
	}
	return &sess, nil
}

// EndSession moves an active session to the ended set. The participants
// and start time are preserved; only ended_at is written. Ending a session
// that is not active returns ErrNotFound.
func (s *Store) EndSession(ctx context.Context, chatID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET ended_at = now() WHERE id = $1 AND ended_at IS NULL`,
		chatID)
	if err != nil {
		return fmt.Errorf("store: end session %s: %w", chatID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: end session %s: %w", chatID, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ActiveSessions returns every active session, for the boot-time cache
// rebuild.
func (s *Store) ActiveSessions(ctx context.Context) ([]domain.ChatSession, error) {
	const query = `
		SELECT id, user_a, user_b, started_at
		FROM chat_sessions
		WHERE ended_at IS NULL`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.ChatSession
	for rows.Next() {
		var sess domain.ChatSession
		if err := rows.Scan(&sess.ID, &sess.UserA, &sess.UserB, &sess.StartedAt); err != nil {
			return nil, fmt.Errorf("store: active sessions: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SaveMessage appends a relayed message to the audit history.
func (s *Store) SaveMessage(ctx context.Context, msg domain.Message) error {
	const query = `
		INSERT INTO messages (chat_id, sender_id, kind, body, media_path, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		msg.ChatID, msg.SenderID, string(msg.Kind), msg.Body, msg.MediaPath, msg.SentAt)
	if err != nil {
		return fmt.Errorf("store: save message in %s: %w", msg.ChatID, err)
	}
	return nil
}
