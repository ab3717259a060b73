package database

import (
	"context"
	"database/sql"
	"errors"
)

// EnsureProfile creates an empty profile for userID if none exists yet.
func (q *queries) EnsureProfile(ctx context.Context, userID string) error {
	now := Now()
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO profiles (user_id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID, now, now,
	)
	return err
}

// GetProfile returns the profile for userID, or nil if none exists.
func (q *queries) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT user_id, display_name, reputation_score, daily_streak, last_login_date,
		total_badges, created_at, updated_at
		FROM profiles WHERE user_id = ?`, userID,
	)
	var p Profile
	if err := row.Scan(&p.UserID, &p.DisplayName, &p.ReputationScore, &p.DailyStreak,
		&p.LastLoginDate, &p.TotalBadges, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// SetDisplayName sets the display name, creating the profile if needed.
func (q *queries) SetDisplayName(ctx context.Context, userID, name string) error {
	now := Now()
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO profiles (user_id, display_name, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET display_name = excluded.display_name, updated_at = excluded.updated_at`,
		userID, name, now, now,
	)
	return err
}

// AddReputation adjusts a user's reputation score by delta. The score may go negative.
func (q *queries) AddReputation(ctx context.Context, userID string, delta int) error {
	if err := q.EnsureProfile(ctx, userID); err != nil {
		return err
	}
	_, err := q.q.ExecContext(ctx,
		`UPDATE profiles SET reputation_score = reputation_score + ?, updated_at = ? WHERE user_id = ?`,
		delta, Now(), userID,
	)
	return err
}

// UpdateStreak stores a new streak value and the date it was counted on.
func (q *queries) UpdateStreak(ctx context.Context, userID string, streak int, loginDate string) error {
	_, err := q.q.ExecContext(ctx,
		`UPDATE profiles SET daily_streak = ?, last_login_date = ?, updated_at = ? WHERE user_id = ?`,
		streak, loginDate, Now(), userID,
	)
	return err
}
