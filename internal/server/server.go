// Package server exposes the JSON API and the HTML article pages.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/yuin/goldmark"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/BiasLens/internal/analyze"
	"github.com/TobiSchelling/BiasLens/internal/auth"
	"github.com/TobiSchelling/BiasLens/internal/database"
	"github.com/TobiSchelling/BiasLens/internal/metrics"
	"github.com/TobiSchelling/BiasLens/internal/reputation"
	"github.com/TobiSchelling/BiasLens/internal/scrape"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

const (
	loginTimeout    = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

// Analyzer runs an analysis submission.
type Analyzer interface {
	Analyze(ctx context.Context, sub analyze.Submission) (*analyze.Result, error)
}

// Scraper fetches an article page.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*scrape.Page, error)
}

// Options holds the collaborators of a Server.
type Options struct {
	Analyzer   Analyzer
	Scraper    Scraper
	Reputation *reputation.Service
	Tokens     *auth.TokenStore
	// AnalyzePerMinute and AnalyzeBurst limit analysis and scrape calls per
	// client. Zero disables the limit.
	AnalyzePerMinute int
	AnalyzeBurst     int
	Logger           *slog.Logger
}

// Server is the HTTP server for the API and article pages.
type Server struct {
	db       *database.DB
	analyzer Analyzer
	scraper  Scraper
	rep      *reputation.Service
	tokens   *auth.TokenStore
	limiter  *clientLimiter
	validate *validator.Validate
	logger   *slog.Logger
	pages    map[string]*template.Template
	mux      *http.ServeMux

	// background tracks fire-and-forget sign-in bookkeeping.
	background sync.WaitGroup
}

// New creates a new Server.
func New(db *database.DB, opts Options) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":      renderMarkdown,
		"formatDisplay": database.FormatDisplay,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"score": func(f *float64) string {
			if f == nil {
				return "n/a"
			}
			return fmt.Sprintf("%.0f", *f)
		},
		"sentiment": func(f *float64) string {
			if f == nil {
				return "n/a"
			}
			return fmt.Sprintf("%.2f", *f)
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of the base so {{define "content"}} does
	// not collide across pages.
	pageNames := []string{"index.html", "article.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rep := opts.Reputation
	if rep == nil {
		rep = reputation.NewService(db, reputation.WithLogger(logger))
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = auth.NewTokenStore(db)
	}

	s := &Server{
		db:       db,
		analyzer: opts.Analyzer,
		scraper:  opts.Scraper,
		rep:      rep,
		tokens:   tokens,
		limiter:  newClientLimiter(opts.AnalyzePerMinute, opts.AnalyzeBurst),
		validate: validator.New(),
		logger:   logger,
		pages:    pages,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))
	s.mux.Handle("GET /metrics", metrics.Handler())

	// Pages
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /articles/{id}", s.handleArticlePage)

	// API
	s.mux.Handle("POST /api/session", s.requireAuth(s.handleSession))
	s.mux.Handle("POST /api/scrape", s.rateLimited(s.optionalAuth(s.handleScrape)))
	s.mux.Handle("POST /api/analyze", s.rateLimited(s.optionalAuth(s.handleAnalyze)))
	s.mux.Handle("POST /api/votes", s.requireAuth(s.handleVote))
	s.mux.Handle("GET /api/me/badges", s.requireAuth(s.handleBadges))
	s.mux.Handle("GET /api/articles/related", s.optionalAuth(s.handleRelated))
	s.mux.Handle("GET /api/articles/{id}", s.optionalAuth(s.handleGetArticle))
	s.mux.HandleFunc("GET /api/articles/{id}/similar", s.handleSimilar)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", "name", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.logger.Error("rendering template", "name", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Wait blocks until background sign-in bookkeeping has finished.
func (s *Server) Wait() {
	s.background.Wait()
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and waits for background work.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening", "url", "http://"+addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		s.Wait()
		s.logger.Info("server stopped")
		return err
	})
	return g.Wait()
}
