package database

import (
	"context"
	"database/sql"
	"errors"
)

// InsertAPIToken stores a hashed bearer token for a user.
func (q *queries) InsertAPIToken(ctx context.Context, tokenHash, userID, label string) error {
	var l *string
	if label != "" {
		l = &label
	}
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO api_tokens (token_hash, user_id, label, created_at) VALUES (?, ?, ?, ?)`,
		tokenHash, userID, l, Now(),
	)
	return err
}

// LookupAPIToken returns the token row for a hash and stamps last_used_at.
// Returns nil if the hash is unknown.
func (q *queries) LookupAPIToken(ctx context.Context, tokenHash string) (*APIToken, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT token_hash, user_id, label, created_at, last_used_at FROM api_tokens WHERE token_hash = ?`,
		tokenHash,
	)
	var t APIToken
	if err := row.Scan(&t.TokenHash, &t.UserID, &t.Label, &t.CreatedAt, &t.LastUsedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if _, err := q.q.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = ? WHERE token_hash = ?`, Now(), tokenHash); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListAPITokens returns all tokens, newest first.
func (q *queries) ListAPITokens(ctx context.Context) ([]APIToken, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT token_hash, user_id, label, created_at, last_used_at FROM api_tokens ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []APIToken
	for rows.Next() {
		var t APIToken
		if err := rows.Scan(&t.TokenHash, &t.UserID, &t.Label, &t.CreatedAt, &t.LastUsedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
