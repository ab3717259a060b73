package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// GetVote returns the live vote a user holds on an article, or nil.
func (q *queries) GetVote(ctx context.Context, articleID, userID string) (*Vote, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT id, article_id, user_id, vote_type, created_at, updated_at
		FROM article_votes WHERE article_id = ? AND user_id = ?`,
		articleID, userID,
	)
	var v Vote
	if err := row.Scan(&v.ID, &v.ArticleID, &v.UserID, &v.VoteType, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// InsertVote creates a vote. The (article_id, user_id) unique constraint
// rejects a second live vote for the same pair.
func (q *queries) InsertVote(ctx context.Context, articleID, userID string, voteType VoteType) (*Vote, error) {
	now := Now()
	v := &Vote{
		ID:        uuid.NewString(),
		ArticleID: articleID,
		UserID:    userID,
		VoteType:  voteType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO article_votes (id, article_id, user_id, vote_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.ArticleID, v.UserID, v.VoteType, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting vote: %w", err)
	}
	return v, nil
}

// UpdateVoteType changes the direction of an existing vote in place.
func (q *queries) UpdateVoteType(ctx context.Context, voteID string, voteType VoteType) error {
	_, err := q.q.ExecContext(ctx,
		`UPDATE article_votes SET vote_type = ?, updated_at = ? WHERE id = ?`,
		voteType, Now(), voteID,
	)
	return err
}

// DeleteVote removes a vote (toggle off).
func (q *queries) DeleteVote(ctx context.Context, voteID string) error {
	_, err := q.q.ExecContext(ctx, `DELETE FROM article_votes WHERE id = ?`, voteID)
	return err
}

// CountVotesByUser returns how many live votes a user holds across all articles.
func (q *queries) CountVotesByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM article_votes WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// GetVoteCounts recomputes upvote/downvote totals for an article from the ledger.
func (q *queries) GetVoteCounts(ctx context.Context, articleID string) (VoteCounts, error) {
	var c VoteCounts
	var up, down sql.NullInt64
	err := q.q.QueryRowContext(ctx,
		`SELECT
			SUM(CASE WHEN vote_type = 'upvote' THEN 1 ELSE 0 END),
			SUM(CASE WHEN vote_type = 'downvote' THEN 1 ELSE 0 END)
		FROM article_votes WHERE article_id = ?`, articleID,
	).Scan(&up, &down)
	if err != nil {
		return c, err
	}
	c.Upvotes = int(up.Int64)
	c.Downvotes = int(down.Int64)
	return c, nil
}

// GetVoteCountsMap returns vote totals keyed by article ID for a set of articles.
// Articles without votes are absent from the map.
func (q *queries) GetVoteCountsMap(ctx context.Context, articleIDs []string) (map[string]VoteCounts, error) {
	m := make(map[string]VoteCounts)
	if len(articleIDs) == 0 {
		return m, nil
	}

	query, args, err := sq.Select(
		"article_id",
		"SUM(CASE WHEN vote_type = 'upvote' THEN 1 ELSE 0 END)",
		"SUM(CASE WHEN vote_type = 'downvote' THEN 1 ELSE 0 END)",
	).From("article_votes").
		Where(sq.Eq{"article_id": articleIDs}).
		GroupBy("article_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building vote count query: %w", err)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var c VoteCounts
		if err := rows.Scan(&id, &c.Upvotes, &c.Downvotes); err != nil {
			return nil, err
		}
		m[id] = c
	}
	return m, rows.Err()
}

// GetUserVotesMap returns a map of article_id → vote type for one user.
func (q *queries) GetUserVotesMap(ctx context.Context, userID string, articleIDs []string) (map[string]VoteType, error) {
	m := make(map[string]VoteType)
	if len(articleIDs) == 0 {
		return m, nil
	}

	query, args, err := sq.Select("article_id", "vote_type").
		From("article_votes").
		Where(sq.Eq{"user_id": userID, "article_id": articleIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user vote query: %w", err)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var vt VoteType
		if err := rows.Scan(&id, &vt); err != nil {
			return nil, err
		}
		m[id] = vt
	}
	return m, rows.Err()
}
