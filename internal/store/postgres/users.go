package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/veilchat/anonbot/internal/domain"
)

// EnsureUser inserts the user on first contact; later calls are no-ops.
func (s *Store) EnsureUser(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, username, first_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, user.ID, user.Username, user.FirstName); err != nil {
		return fmt.Errorf("store: ensure user %d: %w", user.ID, err)
	}
	return nil
}

// GetProfile returns the user's profile, or nil when none exists.
func (s *Store) GetProfile(ctx context.Context, userID int64) (*domain.Profile, error) {
	const query = `
		SELECT gender, looking_for, age
		FROM profiles WHERE user_id = $1`

	p := domain.Profile{UserID: userID}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&p.Gender, &p.LookingFor, &p.Age)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: profile %d: %w", userID, err)
	}
	return &p, nil
}

// SetProfile creates or replaces the user's profile.
func (s *Store) SetProfile(ctx context.Context, profile domain.Profile) error {
	const query = `
		INSERT INTO profiles (user_id, gender, looking_for, age)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET gender = EXCLUDED.gender,
		    looking_for = EXCLUDED.looking_for,
		    age = EXCLUDED.age`

	_, err := s.db.ExecContext(ctx, query,
		profile.UserID, profile.Gender, profile.LookingFor, profile.Age)
	if err != nil {
		return fmt.Errorf("store: set profile %d: %w", profile.UserID, err)
	}
	return nil
}

// GetInterests returns the user's interest tags, alphabetically.
func (s *Store) GetInterests(ctx context.Context, userID int64) ([]string, error) {
	const query = `SELECT tag FROM interests WHERE user_id = $1 ORDER BY tag`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: interests %d: %w", userID, err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("store: interests %d: %w", userID, err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// SetInterests replaces the user's interest set in one transaction.
func (s *Store) SetInterests(ctx context.Context, userID int64, tags []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: set interests %d: %w", userID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM interests WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("store: set interests %d: %w", userID, err)
	}
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO interests (user_id, tag) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			userID, tag); err != nil {
			return fmt.Errorf("store: set interests %d: %w", userID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: set interests %d: %w", userID, err)
	}
	return nil
}
