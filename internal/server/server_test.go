package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/BiasLens/internal/analyze"
	"github.com/TobiSchelling/BiasLens/internal/apperr"
	"github.com/TobiSchelling/BiasLens/internal/auth"
	"github.com/TobiSchelling/BiasLens/internal/database"
	"github.com/TobiSchelling/BiasLens/internal/scrape"
)

type fakeAnalyzer struct {
	got analyze.Submission
	err error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, sub analyze.Submission) (*analyze.Result, error) {
	f.got = sub
	if f.err != nil {
		return nil, f.err
	}
	label := "center"
	return &analyze.Result{
		RequestID: "req-1",
		Article:   &database.Article{ID: "art-1", Headline: sub.Headline, BiasLabel: &label},
		Analysis:  analyze.Analysis{BiasLabel: "center", Explanation: "balanced"},
	}, nil
}

type fakeScraper struct{}

func (fakeScraper) Scrape(_ context.Context, url string) (*scrape.Page, error) {
	if !strings.HasPrefix(url, "http") {
		return nil, apperr.Validation("Invalid URL provided")
	}
	return &scrape.Page{Headline: "Scraped", Content: "Body text", SourceName: "example.com", URL: url}, nil
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T, db *database.DB, opts Options) *Server {
	t.Helper()
	srv, err := New(db, opts)
	require.NoError(t, err)
	return srv
}

func issueToken(t *testing.T, db *database.DB) *auth.Issued {
	t.Helper()
	issued, err := auth.NewTokenStore(db).Issue(context.Background(), "", "Tester", "test")
	require.NoError(t, err)
	return issued
}

func insertArticle(t *testing.T, db *database.DB, headline, label string) *database.Article {
	t.Helper()
	a, err := db.InsertArticle(context.Background(), database.NewArticle{
		Headline:         headline,
		BiasLabel:        label,
		CredibilityScore: 7,
		AIExplanation:    "The piece is **mostly** balanced.",
		FactCheck:        &database.FactCheckDetail{KeyFindings: []string{"Quotes both parties"}},
	})
	require.NoError(t, err)
	return a
}

func do(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	insertArticle(t, db, "Senate passes budget", "center-left")
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, "GET", "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Analyzed Articles")
	assert.Contains(t, rec.Body.String(), "Senate passes budget")

	rec = do(t, srv, "GET", "/?bias=right", "", nil)
	assert.NotContains(t, rec.Body.String(), "Senate passes budget")
}

func TestArticlePage(t *testing.T) {
	db := openTestDB(t)
	a := insertArticle(t, db, "Tax plan unveiled", "right")
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, "GET", "/articles/"+a.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Tax plan unveiled")
	assert.Contains(t, body, "<strong>mostly</strong>")
	assert.Contains(t, body, "Quotes both parties")

	rec = do(t, srv, "GET", "/articles/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVoteRequiresAuth(t *testing.T) {
	db := openTestDB(t)
	a := insertArticle(t, db, "A", "center")
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, "POST", "/api/votes", "", map[string]string{"articleId": a.ID, "voteType": "upvote"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, false, out["success"])
	assert.NotEmpty(t, out["error"])

	rec = do(t, srv, "POST", "/api/votes", "bogus", map[string]string{"articleId": a.ID, "voteType": "upvote"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVoteToggleAndBadges(t *testing.T) {
	db := openTestDB(t)
	a := insertArticle(t, db, "A", "center")
	user := issueToken(t, db)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, "POST", "/api/votes", user.Token, map[string]string{"articleId": a.ID, "voteType": "upvote"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "new", out["operation"])
	assert.Equal(t, float64(1), out["upvotes"])
	assert.Equal(t, float64(0), out["downvotes"])
	assert.Equal(t, "upvote", out["userVote"])
	assert.Equal(t, []any{"First Vote"}, out["awardedBadges"])

	rec = do(t, srv, "POST", "/api/votes", user.Token, map[string]string{"articleId": a.ID, "voteType": "upvote"})
	out = decode(t, rec)
	assert.Equal(t, "removed", out["operation"])
	assert.Nil(t, out["userVote"])
	assert.Equal(t, float64(0), out["upvotes"])

	rec = do(t, srv, "GET", "/api/me/badges", user.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out = decode(t, rec)
	badges := out["badges"].([]any)
	require.Len(t, badges, 1)
	assert.Equal(t, "First Vote", badges[0].(map[string]any)["name"])
	profile := out["profile"].(map[string]any)
	assert.Equal(t, float64(5), profile["reputation_score"])
	assert.Equal(t, float64(1), profile["total_badges"])
}

func TestVoteErrors(t *testing.T) {
	db := openTestDB(t)
	a := insertArticle(t, db, "A", "center")
	user := issueToken(t, db)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, "POST", "/api/votes", user.Token, map[string]string{"articleId": a.ID, "voteType": "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, "POST", "/api/votes", user.Token, map[string]string{"voteType": "upvote"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, "POST", "/api/votes", user.Token, map[string]string{"articleId": "nope", "voteType": "upvote"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest("POST", "/api/votes", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+user.Token)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionRecordsStreak(t *testing.T) {
	db := openTestDB(t)
	user := issueToken(t, db)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, "POST", "/api/session", user.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.UserID, decode(t, rec)["userId"])

	srv.Wait()
	p, err := db.GetProfile(context.Background(), user.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.DailyStreak)
	assert.NotNil(t, p.LastLoginDate)

	rec = do(t, srv, "POST", "/api/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRelatedArticles(t *testing.T) {
	db := openTestDB(t)
	a := insertArticle(t, db, "Left one", "left")
	b := insertArticle(t, db, "Left two", "left")
	insertArticle(t, db, "Right one", "right")
	user := issueToken(t, db)
	srv := newTestServer(t, db, Options{})

	do(t, srv, "POST", "/api/votes", user.Token, map[string]string{"articleId": a.ID, "voteType": "downvote"})

	rec := do(t, srv, "GET", "/api/articles/related?biasLabel=left&excludeArticleId="+b.ID, user.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	articles := decode(t, rec)["articles"].([]any)
	require.Len(t, articles, 1)
	first := articles[0].(map[string]any)
	assert.Equal(t, a.ID, first["id"])
	assert.Equal(t, float64(1), first["downvotes"])
	assert.Equal(t, "downvote", first["userVote"])

	rec = do(t, srv, "GET", "/api/articles/related?limit=2", "", nil)
	articles = decode(t, rec)["articles"].([]any)
	assert.Len(t, articles, 2)
	assert.Nil(t, articles[0].(map[string]any)["userVote"])

	rec = do(t, srv, "GET", "/api/articles/related?biasLabel=purple", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, srv, "GET", "/api/articles/related?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetArticleAndSimilar(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	a := insertArticle(t, db, "Original", "left")
	b := insertArticle(t, db, "Other side", "right")
	require.NoError(t, db.ReplaceSimilarArticles(ctx, a.ID, []database.SimilarLink{
		{SimilarArticleID: b.ID, SimilarityScore: 0.91, ComparisonType: "opposite_bias"},
	}))
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, "GET", "/api/articles/"+a.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	art := decode(t, rec)["article"].(map[string]any)
	assert.Equal(t, "Original", art["headline"])
	assert.Equal(t, "left", art["bias_label"])

	rec = do(t, srv, "GET", "/api/articles/"+a.ID+"/similar", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sim := decode(t, rec)["articles"].([]any)
	require.Len(t, sim, 1)
	assert.Equal(t, "opposite_bias", sim[0].(map[string]any)["comparison_type"])

	assert.Equal(t, http.StatusNotFound, do(t, srv, "GET", "/api/articles/nope", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, "GET", "/api/articles/nope/similar", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, "GET", "/api/articles/"+a.ID+"/similar?limit=0", "", nil).Code)
}

func TestAnalyzeJSON(t *testing.T) {
	db := openTestDB(t)
	user := issueToken(t, db)
	fa := &fakeAnalyzer{}
	srv := newTestServer(t, db, Options{Analyzer: fa})

	rec := do(t, srv, "POST", "/api/analyze", user.Token, map[string]string{"headline": "Budget", "content": "Text"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "req-1", out["requestId"])
	assert.Equal(t, "Budget", out["article"].(map[string]any)["headline"])
	assert.Equal(t, user.UserID, fa.got.UserID)
	assert.Equal(t, analyze.InputText, fa.got.InputType)

	rec = do(t, srv, "POST", "/api/analyze", "", map[string]string{"url": "https://example.com/a"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, analyze.InputURL, fa.got.InputType)
	assert.Empty(t, fa.got.UserID)
}

func TestAnalyzeErrors(t *testing.T) {
	db := openTestDB(t)

	srv := newTestServer(t, db, Options{})
	rec := do(t, srv, "POST", "/api/analyze", "", map[string]string{"headline": "x"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "analysis service is not configured", decode(t, rec)["error"])

	fa := &fakeAnalyzer{err: apperr.Validation("headline is required")}
	srv = newTestServer(t, db, Options{Analyzer: fa})
	rec = do(t, srv, "POST", "/api/analyze", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "headline is required", decode(t, rec)["error"])
}

func TestAnalyzeFileUpload(t *testing.T) {
	db := openTestDB(t)
	fa := &fakeAnalyzer{}
	srv := newTestServer(t, db, Options{Analyzer: fa})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "story.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("Storm hits coast\nThe storm made landfall overnight."))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, analyze.InputFile, fa.got.InputType)
	assert.Equal(t, "Storm hits coast", fa.got.Headline)
	assert.Equal(t, "story.txt", fa.got.InputContent)
	assert.Equal(t, "Uploaded file", fa.got.SourceName)
}

func TestScrapeAndRateLimit(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, Options{Scraper: fakeScraper{}, AnalyzePerMinute: 1, AnalyzeBurst: 1})

	rec := do(t, srv, "POST", "/api/scrape", "", map[string]string{"url": "https://example.com/a"})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "Scraped", out["headline"])
	assert.Equal(t, "example.com", out["source_name"])

	rec = do(t, srv, "POST", "/api/scrape", "", map[string]string{"url": "https://example.com/b"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestScrapeValidation(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Options{Scraper: fakeScraper{}})

	assert.Equal(t, http.StatusBadRequest, do(t, srv, "POST", "/api/scrape", "", map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, "POST", "/api/scrape", "", map[string]string{"url": "ftp:/x"}).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Options{})
	rec := do(t, srv, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaticFiles(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Options{})
	rec := do(t, srv, "GET", "/static/style.css", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ".article-list")
}

func TestClientLimiter(t *testing.T) {
	var none *clientLimiter
	assert.True(t, none.allow("x"))
	assert.Nil(t, newClientLimiter(0, 5))

	l := newClientLimiter(60, 2)
	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))
}
