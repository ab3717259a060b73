package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const articleColumns = `id, headline, content, url, source_name, published_at, bias_score, bias_label,
	sentiment_score, sentiment_label, fact_check_score, credibility_score, fact_check_explanation,
	ai_explanation, analyzed_at, created_at`

const (
	defaultRelatedLimit = 5
	maxRelatedLimit     = 50
)

// InsertArticle stores an analyzed article and returns it with its new ID.
func (q *queries) InsertArticle(ctx context.Context, in NewArticle) (*Article, error) {
	var detailJSON *string
	if in.FactCheck != nil {
		data, err := json.Marshal(in.FactCheck)
		if err != nil {
			return nil, fmt.Errorf("encoding fact check detail: %w", err)
		}
		s := string(data)
		detailJSON = &s
	}

	id := uuid.NewString()
	now := Now()
	_, err := q.q.ExecContext(ctx,
		`INSERT INTO articles (id, headline, content, url, source_name, published_at,
		bias_score, bias_label, sentiment_score, sentiment_label, fact_check_score,
		credibility_score, fact_check_explanation, ai_explanation, analyzed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.Headline, in.Content, in.URL, in.SourceName, in.PublishedAt,
		in.BiasScore, in.BiasLabel, in.SentimentScore, in.SentimentLabel, in.FactCheckScore,
		in.CredibilityScore, detailJSON, in.AIExplanation, now, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting article: %w", err)
	}
	return q.GetArticle(ctx, id)
}

// GetArticle returns a single article by ID, or nil if it does not exist.
func (q *queries) GetArticle(ctx context.Context, id string) (*Article, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ArticleExists reports whether an article with the given ID is stored.
func (q *queries) ArticleExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE id = ?`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindArticleByURL returns the most recent article analyzed from url, or nil.
func (q *queries) FindArticleByURL(ctx context.Context, articleURL string) (*Article, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE url = ? ORDER BY analyzed_at DESC LIMIT 1`, articleURL)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListRecentArticles returns the most recently analyzed articles.
func (q *queries) ListRecentArticles(ctx context.Context, limit int) ([]Article, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles ORDER BY analyzed_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// DeleteArticle removes an article. Its votes and similarity links cascade.
func (q *queries) DeleteArticle(ctx context.Context, id string) error {
	_, err := q.q.ExecContext(ctx, `DELETE FROM articles WHERE id = ?`, id)
	return err
}

// ClampRelatedLimit applies the default and upper bound to a listing limit.
func ClampRelatedLimit(limit int) int {
	if limit <= 0 {
		return defaultRelatedLimit
	}
	if limit > maxRelatedLimit {
		return maxRelatedLimit
	}
	return limit
}

// RelatedArticles returns the most recently analyzed articles, optionally
// excluding one article and filtering by bias label. When userID is set,
// each result carries that user's vote.
func (q *queries) RelatedArticles(ctx context.Context, rq RelatedQuery, userID string) ([]RelatedArticle, error) {
	builder := sq.Select(articleColumns).
		From("articles").
		OrderBy("analyzed_at DESC", "rowid DESC").
		Limit(uint64(ClampRelatedLimit(rq.Limit)))
	if rq.ExcludeID != "" {
		builder = builder.Where(sq.NotEq{"id": rq.ExcludeID})
	}
	if rq.BiasLabel != "" {
		builder = builder.Where(sq.Eq{"bias_label": rq.BiasLabel})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building related query: %w", err)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	articles, err := scanArticles(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}

	counts, err := q.GetVoteCountsMap(ctx, ids)
	if err != nil {
		return nil, err
	}

	var userVotes map[string]VoteType
	if userID != "" {
		userVotes, err = q.GetUserVotesMap(ctx, userID, ids)
		if err != nil {
			return nil, err
		}
	}

	related := make([]RelatedArticle, len(articles))
	for i, a := range articles {
		c := counts[a.ID]
		related[i] = RelatedArticle{Article: a, Upvotes: c.Upvotes, Downvotes: c.Downvotes}
		if vt, ok := userVotes[a.ID]; ok {
			related[i].UserVote = &vt
		}
	}
	return related, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func scanArticle(row rowScanner) (*Article, error) {
	var a Article
	var detailJSON *string
	if err := row.Scan(&a.ID, &a.Headline, &a.Content, &a.URL, &a.SourceName, &a.PublishedAt,
		&a.BiasScore, &a.BiasLabel, &a.SentimentScore, &a.SentimentLabel, &a.FactCheckScore,
		&a.CredibilityScore, &detailJSON, &a.AIExplanation, &a.AnalyzedAt, &a.CreatedAt); err != nil {
		return nil, err
	}

	if detailJSON != nil {
		var detail FactCheckDetail
		if err := json.Unmarshal([]byte(*detailJSON), &detail); err == nil {
			a.FactCheck = &detail
		}
	}
	return &a, nil
}
