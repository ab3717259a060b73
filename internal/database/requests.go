package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// InsertAnalysisRequest records a pending analysis submission and returns its ID.
func (q *queries) InsertAnalysisRequest(ctx context.Context, userID *string, inputType, inputContent string) (string, error) {
	id := uuid.NewString()
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO analysis_requests (id, user_id, input_type, input_content, status, created_at)
		VALUES (?, ?, ?, ?, 'pending', ?)`,
		id, userID, inputType, inputContent, Now(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CompleteAnalysisRequest marks a request completed and links the stored article.
func (q *queries) CompleteAnalysisRequest(ctx context.Context, id, articleID string) error {
	_, err := q.q.ExecContext(ctx,
		`UPDATE analysis_requests SET status = 'completed', article_id = ?, completed_at = ? WHERE id = ?`,
		articleID, Now(), id,
	)
	return err
}

// FailAnalysisRequest marks a request failed with a message.
func (q *queries) FailAnalysisRequest(ctx context.Context, id, message string) error {
	_, err := q.q.ExecContext(ctx,
		`UPDATE analysis_requests SET status = 'failed', error_message = ?, completed_at = ? WHERE id = ?`,
		message, Now(), id,
	)
	return err
}

// GetAnalysisRequest returns a request by ID, or nil.
func (q *queries) GetAnalysisRequest(ctx context.Context, id string) (*AnalysisRequest, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT id, user_id, input_type, input_content, status, error_message, article_id, created_at, completed_at
		FROM analysis_requests WHERE id = ?`, id,
	)
	var r AnalysisRequest
	if err := row.Scan(&r.ID, &r.UserID, &r.InputType, &r.InputContent, &r.Status,
		&r.ErrorMessage, &r.ArticleID, &r.CreatedAt, &r.CompletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}
