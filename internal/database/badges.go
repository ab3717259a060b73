package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

const badgeColumns = `id, name, description, icon, color, requirement_type, requirement_value`

// GetBadgeByName returns a catalog badge by its unique name, or nil.
func (q *queries) GetBadgeByName(ctx context.Context, name string) (*Badge, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+badgeColumns+` FROM badges WHERE name = ?`, name)
	var b Badge
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &b.Color,
		&b.RequirementType, &b.RequirementValue); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// GetAllBadges returns the whole badge catalog.
func (q *queries) GetAllBadges(ctx context.Context) ([]Badge, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+badgeColumns+` FROM badges ORDER BY requirement_type, requirement_value`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var badges []Badge
	for rows.Next() {
		var b Badge
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &b.Color,
			&b.RequirementType, &b.RequirementValue); err != nil {
			return nil, err
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// GrantBadge awards a badge to a user. It reports whether a new award row was
// written; granting a badge the user already holds is a no-op. The
// profile's total_badges counter moves only when a row is written.
func (q *queries) GrantBadge(ctx context.Context, userID, badgeID string) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO user_badges (id, user_id, badge_id, earned_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, badge_id) DO NOTHING`,
		uuid.NewString(), userID, badgeID, Now(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if err := q.EnsureProfile(ctx, userID); err != nil {
		return true, err
	}
	_, err = q.q.ExecContext(ctx,
		`UPDATE profiles SET total_badges = total_badges + 1, updated_at = ? WHERE user_id = ?`,
		Now(), userID,
	)
	return true, err
}

// ListUserBadges returns a user's earned badges with catalog metadata, newest first.
func (q *queries) ListUserBadges(ctx context.Context, userID string) ([]UserBadge, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT ub.id, ub.user_id, ub.badge_id, ub.earned_at,
			b.id, b.name, b.description, b.icon, b.color, b.requirement_type, b.requirement_value
		FROM user_badges ub
		JOIN badges b ON b.id = ub.badge_id
		WHERE ub.user_id = ?
		ORDER BY ub.earned_at DESC, ub.rowid DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserBadge
	for rows.Next() {
		var ub UserBadge
		if err := rows.Scan(&ub.ID, &ub.UserID, &ub.BadgeID, &ub.EarnedAt,
			&ub.Badge.ID, &ub.Badge.Name, &ub.Badge.Description, &ub.Badge.Icon, &ub.Badge.Color,
			&ub.Badge.RequirementType, &ub.Badge.RequirementValue); err != nil {
			return nil, err
		}
		out = append(out, ub)
	}
	return out, rows.Err()
}

// CountUserBadgeRows returns the number of award rows for (user, badge).
func (q *queries) CountUserBadgeRows(ctx context.Context, userID, badgeID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_badges WHERE user_id = ? AND badge_id = ?`, userID, badgeID,
	).Scan(&n)
	return n, err
}
