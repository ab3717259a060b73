package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/BiasLens/internal/apperr"
)

const articleHTML = `<html><head>
<title>  Senate Passes Budget Bill </title>
<meta name="description" content="The vote was 51 to 49.">
</head><body>
<h1>Ignored heading</h1>
<p>Short.</p>
<p>The Senate narrowly approved the spending package late on Tuesday after hours of debate.</p>
<p>Supporters said the bill would fund infrastructure projects across all fifty states.</p>
<p>Critics argued that the measure adds billions to the deficit over the next decade.</p>
<p>This fourth long paragraph should not be included in the extracted content at all.</p>
</body></html>`

func TestScrapeExtractsArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	s := New(5*time.Second, "test-agent", 0)
	page, err := s.Scrape(context.Background(), srv.URL+"/news/1")
	require.NoError(t, err)

	assert.Equal(t, "Senate Passes Budget Bill", page.Headline)
	assert.True(t, strings.HasPrefix(page.Content, "The vote was 51 to 49.\n\n"))
	assert.Contains(t, page.Content, "narrowly approved")
	assert.Contains(t, page.Content, "Critics argued")
	assert.NotContains(t, page.Content, "fourth long paragraph")
	assert.NotContains(t, page.Content, "Short.")
	assert.Equal(t, srv.URL+"/news/1", page.URL)
}

func TestScrapeFallsBackToH1(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>Heading Only</h1></body></html>`))
	}))
	defer srv.Close()

	page, err := New(0, "", 0).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Heading Only", page.Headline)
	assert.Equal(t, noContent, page.Content)
}

func TestScrapeUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(0, "", 0).Scrape(context.Background(), srv.URL)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Contains(t, apperr.Message(err), "Forbidden")
}

func TestScrapeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := New(20*time.Millisecond, "", 0).Scrape(context.Background(), srv.URL)
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestScrapeInvalidURL(t *testing.T) {
	s := New(0, "", 0)
	for _, raw := range []string{"", "not a url", "ftp://example.com/x", "/relative/path"} {
		_, err := s.Scrape(context.Background(), raw)
		assert.ErrorIs(t, err, apperr.ErrValidation, raw)
	}
}

func TestSourceName(t *testing.T) {
	u, _ := url.Parse("https://www.NYTimes.com/2026/01/01/story.html")
	assert.Equal(t, "nytimes.com", SourceName(u))

	u, _ = url.Parse("https://news.bbc.co.uk/x")
	assert.Equal(t, "news.bbc.co.uk", SourceName(u))

	assert.Equal(t, "Unknown Source", SourceName(nil))
}

func TestExtractFileText(t *testing.T) {
	page, err := ExtractFile("story.txt", "text/plain; charset=utf-8", []byte("\nCity Council Votes\nThe council met on Monday."))
	require.NoError(t, err)
	assert.Equal(t, "City Council Votes", page.Headline)
	assert.Contains(t, page.Content, "met on Monday")
}

func TestExtractFileHTML(t *testing.T) {
	page, err := ExtractFile("page.html", "", []byte(articleHTML))
	require.NoError(t, err)
	assert.Equal(t, "Senate Passes Budget Bill", page.Headline)
	assert.Contains(t, page.Content, "narrowly approved")
}

func TestExtractFileRejects(t *testing.T) {
	_, err := ExtractFile("report.pdf", "application/pdf", []byte("%PDF-1.4"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ExtractFile("image.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ExtractFile("big.txt", "text/plain", make([]byte, MaxFileBytes+1))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ExtractFile("empty.txt", "text/plain", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
