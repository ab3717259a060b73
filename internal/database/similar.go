package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ReplaceSimilarArticles replaces the stored similarity links of an article.
func (q *queries) ReplaceSimilarArticles(ctx context.Context, originalID string, links []SimilarLink) error {
	if _, err := q.q.ExecContext(ctx,
		`DELETE FROM similar_articles WHERE original_article_id = ?`, originalID); err != nil {
		return fmt.Errorf("clearing similar articles: %w", err)
	}

	now := Now()
	for _, l := range links {
		_, err := q.q.ExecContext(ctx,
			`INSERT INTO similar_articles (id, original_article_id, similar_article_id, similarity_score, comparison_type, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(original_article_id, similar_article_id) DO NOTHING`,
			uuid.NewString(), originalID, l.SimilarArticleID, l.SimilarityScore, l.ComparisonType, now,
		)
		if err != nil {
			return fmt.Errorf("inserting similar article: %w", err)
		}
	}
	return nil
}

// GetSimilarArticles returns stored similar articles, highest similarity first.
func (q *queries) GetSimilarArticles(ctx context.Context, articleID string, limit int) ([]SimilarArticle, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT a.id, a.headline, a.content, a.url, a.source_name, a.published_at, a.bias_score, a.bias_label,
			a.sentiment_score, a.sentiment_label, a.fact_check_score, a.credibility_score, a.fact_check_explanation,
			a.ai_explanation, a.analyzed_at, a.created_at, s.similarity_score, s.comparison_type
		FROM similar_articles s
		JOIN articles a ON a.id = s.similar_article_id
		WHERE s.original_article_id = ?
		ORDER BY s.similarity_score DESC
		LIMIT ?`, articleID, ClampRelatedLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SimilarArticle
	for rows.Next() {
		var s SimilarArticle
		a := &s.Article
		var detailJSON *string
		if err := rows.Scan(&a.ID, &a.Headline, &a.Content, &a.URL, &a.SourceName, &a.PublishedAt,
			&a.BiasScore, &a.BiasLabel, &a.SentimentScore, &a.SentimentLabel, &a.FactCheckScore,
			&a.CredibilityScore, &detailJSON, &a.AIExplanation, &a.AnalyzedAt, &a.CreatedAt,
			&s.SimilarityScore, &s.ComparisonType); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
