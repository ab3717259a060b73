package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/TobiSchelling/BiasLens/internal/analyze"
	"github.com/TobiSchelling/BiasLens/internal/apperr"
	"github.com/TobiSchelling/BiasLens/internal/auth"
	"github.com/TobiSchelling/BiasLens/internal/database"
	"github.com/TobiSchelling/BiasLens/internal/scrape"
)

const (
	maxJSONBody      = 1 << 20
	maxMultipartBody = scrape.MaxFileBytes + 1<<20
	maxSimilarLimit  = 20
)

type articleJSON struct {
	ID                   string                    `json:"id"`
	Headline             string                    `json:"headline"`
	Content              *string                   `json:"content,omitempty"`
	URL                  *string                   `json:"url,omitempty"`
	SourceName           *string                   `json:"source_name,omitempty"`
	PublishedAt          *string                   `json:"published_at,omitempty"`
	BiasScore            *float64                  `json:"bias_score"`
	BiasLabel            *string                   `json:"bias_label"`
	SentimentScore       *float64                  `json:"sentiment_score"`
	SentimentLabel       *string                   `json:"sentiment_label"`
	FactCheckScore       *float64                  `json:"fact_check_score"`
	CredibilityScore     *float64                  `json:"credibility_score"`
	FactCheckExplanation *database.FactCheckDetail `json:"fact_check_explanation,omitempty"`
	AIExplanation        *string                   `json:"ai_explanation,omitempty"`
	AnalyzedAt           *string                   `json:"analyzed_at"`
	CreatedAt            string                    `json:"created_at"`
}

func toArticleJSON(a *database.Article) articleJSON {
	return articleJSON{
		ID:                   a.ID,
		Headline:             a.Headline,
		Content:              a.Content,
		URL:                  a.URL,
		SourceName:           a.SourceName,
		PublishedAt:          a.PublishedAt,
		BiasScore:            a.BiasScore,
		BiasLabel:            a.BiasLabel,
		SentimentScore:       a.SentimentScore,
		SentimentLabel:       a.SentimentLabel,
		FactCheckScore:       a.FactCheckScore,
		CredibilityScore:     a.CredibilityScore,
		FactCheckExplanation: a.FactCheck,
		AIExplanation:        a.AIExplanation,
		AnalyzedAt:           a.AnalyzedAt,
		CreatedAt:            a.CreatedAt,
	}
}

// decodeJSON reads a bounded JSON body into v and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid JSON body")
	}
	if err := s.validate.Struct(v); err != nil {
		return apperr.Validation(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	}
	return "invalid " + fe.Field()
}

// handleSession records a sign-in. Streak bookkeeping runs in the
// background and never fails the sign-in.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	ctx := context.WithoutCancel(r.Context())
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(ctx, loginTimeout)
		defer cancel()
		if _, err := s.rep.RecordLogin(ctx, userID); err != nil {
			s.logger.Warn("recording login failed", "user", userID, "error", err)
		}
	}()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "userId": userID})
}

type scrapeRequest struct {
	URL string `json:"url" validate:"required"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if s.scraper == nil {
		s.writeError(w, apperr.Upstream("scraping is not available", nil))
		return
	}
	var req scrapeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	page, err := s.scraper.Scrape(r.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"headline":    page.Headline,
		"content":     page.Content,
		"source_name": page.SourceName,
		"url":         page.URL,
	})
}

type analyzeRequest struct {
	Headline   string `json:"headline"`
	Content    string `json:"content"`
	URL        string `json:"url"`
	SourceName string `json:"source_name"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		s.writeError(w, apperr.Upstream("analysis service is not configured", analyze.ErrNotConfigured))
		return
	}

	sub, err := s.submission(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sub.UserID = auth.UserID(r.Context())

	res, err := s.analyzer.Analyze(r.Context(), sub)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"requestId": res.RequestID,
		"article":   toArticleJSON(res.Article),
		"analysis":  res.Analysis,
	})
}

// submission builds an analysis submission from a JSON body or a multipart
// upload with a "file" part.
func (s *Server) submission(w http.ResponseWriter, r *http.Request) (analyze.Submission, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req analyzeRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			return analyze.Submission{}, err
		}
		sub := analyze.Submission{
			InputType:  analyze.InputText,
			Headline:   req.Headline,
			Content:    req.Content,
			URL:        req.URL,
			SourceName: req.SourceName,
		}
		if strings.TrimSpace(req.URL) != "" && strings.TrimSpace(req.Content) == "" {
			sub.InputType = analyze.InputURL
		}
		return sub, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(maxMultipartBody); err != nil {
		return analyze.Submission{}, apperr.Validation("file exceeds the 5 MB limit or the form is malformed")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return analyze.Submission{}, apperr.Validation("file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, scrape.MaxFileBytes+1))
	if err != nil {
		return analyze.Submission{}, apperr.Validation("could not read uploaded file")
	}
	page, err := scrape.ExtractFile(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		return analyze.Submission{}, err
	}

	headline := strings.TrimSpace(r.FormValue("headline"))
	if headline == "" {
		headline = page.Headline
	}
	return analyze.Submission{
		InputType:    analyze.InputFile,
		Headline:     headline,
		Content:      page.Content,
		SourceName:   page.SourceName,
		InputContent: header.Filename,
	}, nil
}

type voteRequest struct {
	ArticleID string `json:"articleId" validate:"required"`
	VoteType  string `json:"voteType" validate:"required,oneof=upvote downvote"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.rep.CastVote(r.Context(), auth.UserID(r.Context()), req.ArticleID, database.VoteType(req.VoteType))
	if err != nil {
		s.writeError(w, err)
		return
	}
	badges := res.AwardedBadges
	if badges == nil {
		badges = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"operation":     res.Operation,
		"upvotes":       res.Upvotes,
		"downvotes":     res.Downvotes,
		"userVote":      res.UserVote,
		"awardedBadges": badges,
	})
}

type badgeJSON struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
	Color       *string `json:"color"`
	EarnedAt    string  `json:"earned_at"`
}

func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	summary, err := s.rep.Badges(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	badges := make([]badgeJSON, len(summary.Badges))
	for i, ub := range summary.Badges {
		badges[i] = badgeJSON{
			ID:          ub.Badge.ID,
			Name:        ub.Badge.Name,
			Description: ub.Badge.Description,
			Icon:        ub.Badge.Icon,
			Color:       ub.Badge.Color,
			EarnedAt:    ub.EarnedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"badges":  badges,
		"profile": map[string]int{
			"reputation_score": summary.Profile.ReputationScore,
			"total_badges":     summary.Profile.TotalBadges,
			"daily_streak":     summary.Profile.DailyStreak,
		},
	})
}

type relatedJSON struct {
	articleJSON
	Upvotes   int                `json:"upvotes"`
	Downvotes int                `json:"downvotes"`
	UserVote  *database.VoteType `json:"userVote"`
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rq := database.RelatedQuery{
		ExcludeID: strings.TrimSpace(q.Get("excludeArticleId")),
		BiasLabel: strings.TrimSpace(q.Get("biasLabel")),
	}
	if rq.BiasLabel != "" && !database.ValidBiasLabel(rq.BiasLabel) {
		s.writeError(w, apperr.Validation("biasLabel must be one of: "+strings.Join(database.BiasLabels, ", ")))
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, apperr.Validation("limit must be a number"))
			return
		}
		rq.Limit = n
	}

	related, err := s.db.RelatedArticles(r.Context(), rq, auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, apperr.Persistence("failed to load related articles", err))
		return
	}

	out := make([]relatedJSON, len(related))
	for i := range related {
		ra := &related[i]
		out[i] = relatedJSON{
			articleJSON: toArticleJSON(&ra.Article),
			Upvotes:     ra.Upvotes,
			Downvotes:   ra.Downvotes,
			UserVote:    ra.UserVote,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "articles": out})
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	article, err := s.db.GetArticle(ctx, id)
	if err != nil {
		s.writeError(w, apperr.Persistence("failed to load article", err))
		return
	}
	if article == nil {
		s.writeError(w, apperr.NotFound("article not found"))
		return
	}

	counts, err := s.db.GetVoteCounts(ctx, id)
	if err != nil {
		s.writeError(w, apperr.Persistence("failed to load votes", err))
		return
	}
	out := relatedJSON{articleJSON: toArticleJSON(article), Upvotes: counts.Upvotes, Downvotes: counts.Downvotes}
	if userID := auth.UserID(ctx); userID != "" {
		v, err := s.db.GetVote(ctx, id, userID)
		if err != nil {
			s.writeError(w, apperr.Persistence("failed to load votes", err))
			return
		}
		if v != nil {
			out.UserVote = &v.VoteType
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "article": out})
}

type similarJSON struct {
	articleJSON
	SimilarityScore float64 `json:"similarity_score"`
	ComparisonType  string  `json:"comparison_type"`
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, apperr.Validation("limit must be a positive number"))
			return
		}
		limit = min(n, maxSimilarLimit)
	}

	exists, err := s.db.ArticleExists(ctx, id)
	if err != nil {
		s.writeError(w, apperr.Persistence("failed to load article", err))
		return
	}
	if !exists {
		s.writeError(w, apperr.NotFound("article not found"))
		return
	}

	similar, err := s.db.GetSimilarArticles(ctx, id, limit)
	if err != nil {
		s.writeError(w, apperr.Persistence("failed to load similar articles", err))
		return
	}
	out := make([]similarJSON, len(similar))
	for i := range similar {
		sa := &similar[i]
		out[i] = similarJSON{
			articleJSON:     toArticleJSON(&sa.Article),
			SimilarityScore: sa.SimilarityScore,
			ComparisonType:  sa.ComparisonType,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "articles": out})
}
