// Package scrape turns a news URL or an uploaded file into a headline and
// body text ready for analysis.
package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/BiasLens/internal/apperr"
)

const (
	// MaxFileBytes is the largest accepted upload.
	MaxFileBytes = 5 << 20

	minParagraphLen = 50
	maxParagraphs   = 3

	noHeadline = "No headline found"
	noContent  = "No content extracted"
)

// Page is the extracted article data.
type Page struct {
	Headline   string `json:"headline"`
	Content    string `json:"content"`
	SourceName string `json:"source_name"`
	URL        string `json:"url,omitempty"`
}

// Scraper fetches article pages over HTTP.
type Scraper struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// New creates a Scraper. Zero values fall back to defaults.
func New(timeout time.Duration, userAgent string, maxBody int64) *Scraper {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; BiasLens/1.0)"
	}
	if maxBody <= 0 {
		maxBody = MaxFileBytes
	}
	return &Scraper{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: userAgent,
		maxBody:   maxBody,
	}
}

// ParseURL validates an article URL. Only absolute http(s) URLs are accepted.
func ParseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, apperr.Validation("Invalid URL provided")
	}
	return u, nil
}

// Scrape fetches rawURL and extracts its headline and content.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Page, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.Validation("Invalid URL provided")
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Upstream("timed out fetching webpage", err)
		}
		return nil, apperr.Upstream("failed to fetch webpage", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Upstream(
			fmt.Sprintf("failed to fetch webpage: %s", http.StatusText(resp.StatusCode)),
			fmt.Errorf("GET %s returned %d", u, resp.StatusCode),
		)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))
	if err != nil {
		return nil, apperr.Upstream("failed to read webpage", err)
	}

	page, err := extractHTML(body, u)
	if err != nil {
		return nil, apperr.Upstream("failed to parse webpage", err)
	}
	page.URL = u.String()
	slog.Debug("scraped article", "url", page.URL, "headline", page.Headline, "content_len", len(page.Content))
	return page, nil
}

// extractHTML pulls the headline and content out of an HTML document.
// The headline is the <title>, else the first <h1>. The content is the meta
// description followed by the first few substantial paragraphs; when the page
// has none, readability's main-text extraction is used instead.
func extractHTML(body []byte, pageURL *url.URL) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	headline := normalizeSpace(doc.Find("title").First().Text())
	if headline == "" {
		headline = normalizeSpace(doc.Find("h1").First().Text())
	}

	description, _ := doc.Find(`meta[name="description"]`).Attr("content")
	description = strings.TrimSpace(description)

	var paragraphs []string
	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := normalizeSpace(p.Text())
		if len([]rune(text)) > minParagraphLen {
			paragraphs = append(paragraphs, text)
		}
		return len(paragraphs) < maxParagraphs
	})

	var parts []string
	if description != "" {
		parts = append(parts, description)
	}
	if len(paragraphs) > 0 {
		parts = append(parts, paragraphs...)
	} else if text, title := readable(body, pageURL); text != "" {
		parts = append(parts, text)
		if headline == "" {
			headline = title
		}
	}

	page := &Page{
		Headline:   headline,
		Content:    strings.Join(parts, "\n\n"),
		SourceName: SourceName(pageURL),
	}
	if page.Headline == "" {
		page.Headline = noHeadline
	}
	if page.Content == "" {
		page.Content = noContent
	}
	return page, nil
}

func readable(body []byte, pageURL *url.URL) (text, title string) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", ""
	}
	return strings.TrimSpace(article.TextContent), normalizeSpace(article.Title)
}

// SourceName is the page host without a leading "www.".
func SourceName(u *url.URL) string {
	if u == nil || u.Hostname() == "" {
		return "Unknown Source"
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// ExtractFile reads an uploaded file. Plain text and HTML are accepted; the
// headline is the document title, or the first line for plain text, or the
// file name.
func ExtractFile(name, contentType string, data []byte) (*Page, error) {
	if len(data) == 0 {
		return nil, apperr.Validation("uploaded file is empty")
	}
	if len(data) > MaxFileBytes {
		return nil, apperr.Validation("file exceeds the 5 MB limit")
	}

	fallback := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	switch fileKind(name, contentType) {
	case "text":
		text := strings.TrimSpace(string(data))
		headline, _, _ := strings.Cut(text, "\n")
		headline = truncate(normalizeSpace(headline), 200)
		if headline == "" {
			headline = fallback
		}
		return &Page{Headline: headline, Content: text, SourceName: "Uploaded file"}, nil
	case "html":
		page, err := extractHTML(data, &url.URL{Scheme: "file", Path: "/" + filepath.Base(name)})
		if err != nil {
			return nil, apperr.Validation("could not parse HTML file")
		}
		if page.Headline == noHeadline && fallback != "" {
			page.Headline = fallback
		}
		page.SourceName = "Uploaded file"
		return page, nil
	case "pdf":
		return nil, apperr.Validation("PDF text extraction is not supported; upload a .txt or .html file")
	default:
		return nil, apperr.Validation("unsupported file type; upload a .txt or .html file")
	}
}

func fileKind(name, contentType string) string {
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	switch strings.TrimSpace(mediaType) {
	case "text/plain", "text/markdown":
		return "text"
	case "text/html", "application/xhtml+xml":
		return "html"
	case "application/pdf":
		return "pdf"
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".text":
		return "text"
	case ".html", ".htm":
		return "html"
	case ".pdf":
		return "pdf"
	}
	return ""
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
