package database

import "context"

// GetStats returns aggregate counts across all tables.
func (q *queries) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM articles", &s.Articles},
		{"SELECT COUNT(*) FROM article_votes", &s.Votes},
		{"SELECT COUNT(*) FROM profiles", &s.Profiles},
		{"SELECT COUNT(*) FROM user_badges", &s.BadgesAwarded},
		{"SELECT COUNT(*) FROM analysis_requests", &s.Requests},
		{"SELECT COUNT(*) FROM analysis_requests WHERE status = 'failed'", &s.FailedRequests},
		{"SELECT COUNT(*) FROM api_tokens", &s.Tokens},
	}
	for _, c := range counts {
		if err := q.q.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}
