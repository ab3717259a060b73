package analyze

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/BiasLens/internal/apperr"
	"github.com/TobiSchelling/BiasLens/internal/database"
	"github.com/TobiSchelling/BiasLens/internal/scrape"
)

const goodResponse = "```json\n" + `{
  "bias_score": -35,
  "bias_label": "Center-Left",
  "sentiment_score": -0.4,
  "sentiment_label": "negative",
  "fact_check_score": 82,
  "credibility_score": 7.5,
  "explanation": "Framing favors one side.",
  "key_findings": ["loaded language", "single source"],
  "methodology": "Language analysis",
  "limitations": "Short excerpt",
  "confidence": 70
}` + "\n```"

type mockProvider struct {
	response string
	err      error
	delay    time.Duration
	prompts  []string
}

func (m *mockProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

type mockScraper struct {
	page *scrape.Page
	err  error
	urls []string
}

func (m *mockScraper) Scrape(ctx context.Context, url string) (*scrape.Page, error) {
	m.urls = append(m.urls, url)
	return m.page, m.err
}

type mockLinker struct {
	linked []string
	err    error
}

func (m *mockLinker) Link(ctx context.Context, a *database.Article) error {
	m.linked = append(m.linked, a.ID)
	return m.err
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAnalyzeText(t *testing.T) {
	db := openTestDB(t)
	provider := &mockProvider{response: goodResponse}
	linker := &mockLinker{}
	a := NewAnalyzer(db, provider, Options{Linker: linker})
	ctx := context.Background()

	res, err := a.Analyze(ctx, Submission{
		UserID:   "u1",
		Headline: "Budget talks collapse",
		Content:  "Lawmakers walked out on Friday.",
	})
	require.NoError(t, err)

	assert.Equal(t, "center-left", res.Analysis.BiasLabel)
	require.NotNil(t, res.Article)
	assert.Equal(t, "Budget talks collapse", res.Article.Headline)
	require.NotNil(t, res.Article.FactCheck)
	assert.Equal(t, []string{"loaded language", "single source"}, res.Article.FactCheck.KeyFindings)
	assert.Equal(t, []string{res.Article.ID}, linker.linked)

	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "Article Headline: Budget talks collapse")
	assert.Contains(t, provider.prompts[0], "Lawmakers walked out")

	req, err := db.GetAnalysisRequest(ctx, res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "completed", req.Status)
	assert.Equal(t, "text", req.InputType)
	require.NotNil(t, req.UserID)
	assert.Equal(t, "u1", *req.UserID)
	require.NotNil(t, req.ArticleID)
	assert.Equal(t, res.Article.ID, *req.ArticleID)
}

func TestAnalyzeURLScrapes(t *testing.T) {
	db := openTestDB(t)
	scraper := &mockScraper{page: &scrape.Page{
		Headline:   "Scraped headline",
		Content:    "Scraped body",
		SourceName: "example.com",
	}}
	a := NewAnalyzer(db, &mockProvider{response: goodResponse}, Options{Scraper: scraper})

	res, err := a.Analyze(context.Background(), Submission{URL: "https://www.example.com/a"})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://www.example.com/a"}, scraper.urls)
	assert.Equal(t, "Scraped headline", res.Article.Headline)
	require.NotNil(t, res.Article.SourceName)
	assert.Equal(t, "example.com", *res.Article.SourceName)

	req, _ := db.GetAnalysisRequest(context.Background(), res.RequestID)
	assert.Equal(t, "url", req.InputType)
	assert.Equal(t, "https://www.example.com/a", req.InputContent)
	assert.Nil(t, req.UserID)
}

func TestAnalyzeURLWithContentSkipsScrape(t *testing.T) {
	db := openTestDB(t)
	scraper := &mockScraper{}
	a := NewAnalyzer(db, &mockProvider{response: goodResponse}, Options{Scraper: scraper})

	res, err := a.Analyze(context.Background(), Submission{
		Headline: "Given",
		Content:  "Given body",
		URL:      "https://www.example.org/b",
	})
	require.NoError(t, err)
	assert.Empty(t, scraper.urls)
	assert.Equal(t, "example.org", *res.Article.SourceName)
}

func TestAnalyzeValidation(t *testing.T) {
	db := openTestDB(t)
	a := NewAnalyzer(db, &mockProvider{response: goodResponse}, Options{})

	_, err := a.Analyze(context.Background(), Submission{Content: "no headline"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "headline is required", apperr.Message(err))

	_, err = a.Analyze(context.Background(), Submission{Headline: "x", URL: "not a url", Content: "c"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = a.Analyze(context.Background(), Submission{Headline: "x", InputType: "fax"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	stats, _ := db.GetStats(context.Background())
	assert.Equal(t, 0, stats.Requests, "invalid submissions are not audited")
}

func TestAnalyzeUpstreamFailures(t *testing.T) {
	cases := []struct {
		name     string
		provider *mockProvider
		message  string
	}{
		{"provider error", &mockProvider{err: errors.New("502 bad gateway")}, "analysis service error"},
		{"bad json", &mockProvider{response: "I cannot help with that."}, "invalid JSON response from AI analysis"},
		{"out of range", &mockProvider{response: strings.Replace(goodResponse, `"bias_score": -35`, `"bias_score": -350`, 1)}, "AI analysis returned invalid values"},
		{"unknown label", &mockProvider{response: strings.Replace(goodResponse, "Center-Left", "far-left", 1)}, "AI analysis returned invalid values"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			db := openTestDB(t)
			a := NewAnalyzer(db, c.provider, Options{})
			ctx := context.Background()

			_, err := a.Analyze(ctx, Submission{Headline: "h", Content: "c"})
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrUpstream)
			assert.Equal(t, c.message, apperr.Message(err))

			stats, _ := db.GetStats(ctx)
			assert.Equal(t, 0, stats.Articles)
			assert.Equal(t, 1, stats.FailedRequests)
		})
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	db := openTestDB(t)
	a := NewAnalyzer(db, &mockProvider{response: goodResponse, delay: time.Second}, Options{Timeout: 20 * time.Millisecond})

	_, err := a.Analyze(context.Background(), Submission{Headline: "h"})
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Equal(t, "analysis timed out", apperr.Message(err))
}

func TestAnalyzeWithoutProvider(t *testing.T) {
	db := openTestDB(t)
	a := NewAnalyzer(db, nil, Options{})

	_, err := a.Analyze(context.Background(), Submission{Headline: "h"})
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestAnalyzeScrapeFailureIsAudited(t *testing.T) {
	db := openTestDB(t)
	scraper := &mockScraper{err: apperr.Upstream("failed to fetch webpage: Not Found", errors.New("404"))}
	a := NewAnalyzer(db, &mockProvider{response: goodResponse}, Options{Scraper: scraper})
	ctx := context.Background()

	_, err := a.Analyze(ctx, Submission{URL: "https://example.com/missing"})
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	stats, _ := db.GetStats(ctx)
	assert.Equal(t, 1, stats.FailedRequests)
}

func TestLinkerFailureDoesNotFailAnalysis(t *testing.T) {
	db := openTestDB(t)
	linker := &mockLinker{err: errors.New("embedding service down")}
	a := NewAnalyzer(db, &mockProvider{response: goodResponse}, Options{Linker: linker})

	res, err := a.Analyze(context.Background(), Submission{Headline: "h", Content: "c"})
	require.NoError(t, err)
	assert.NotNil(t, res.Article)
	assert.Len(t, linker.linked, 1)
}
