// Package analyze turns a submitted article into a stored bias, sentiment
// and fact-check analysis.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/TobiSchelling/BiasLens/internal/apperr"
	"github.com/TobiSchelling/BiasLens/internal/database"
	"github.com/TobiSchelling/BiasLens/internal/llm"
	"github.com/TobiSchelling/BiasLens/internal/metrics"
	"github.com/TobiSchelling/BiasLens/internal/scrape"
)

const analysisPrompt = `Analyze the following news article for bias, sentiment, and factual accuracy. Return a JSON response with the following structure:

{
  "bias_score": (number between -100 to 100, negative = left bias, positive = right bias, 0 = neutral),
  "bias_label": "left" | "center-left" | "center" | "center-right" | "right",
  "sentiment_score": (number between -1 to 1, -1 = very negative, 1 = very positive),
  "sentiment_label": "very negative" | "negative" | "neutral" | "positive" | "very positive",
  "fact_check_score": (number between 0 to 100, 0 = completely false, 100 = completely true),
  "credibility_score": (number between 1 to 10),
  "explanation": "Detailed explanation of the analysis",
  "key_findings": ["finding 1", "finding 2", "finding 3"],
  "methodology": "Brief explanation of analysis methodology",
  "limitations": "Analysis limitations and caveats",
  "confidence": (number between 0 to 100)
}

Article Headline: %s
Article Content: %s

Provide only the JSON response, no other text.`

const (
	maxPromptContent = 8000
	defaultMaxTokens = 1500
	defaultTimeout   = 60 * time.Second
)

// ErrNotConfigured is the cause of the upstream error returned when no model
// provider is configured.
var ErrNotConfigured = errors.New("no LLM provider configured")

// InputType is how an article was submitted.
type InputType string

const (
	InputText InputType = "text"
	InputURL  InputType = "url"
	InputFile InputType = "file"
)

// Submission is one analysis request.
type Submission struct {
	UserID     string
	InputType  InputType `validate:"required,oneof=text url file"`
	Headline   string    `validate:"required_without=URL,max=500"`
	Content    string    `validate:"max=200000"`
	URL        string    `validate:"omitempty,url,max=2048"`
	SourceName string    `validate:"max=200"`
	// PublishedAt is an optional YYYY-MM-DD publication date.
	PublishedAt string `validate:"omitempty,datetime=2006-01-02"`
	// InputContent is what the audit log records. Defaults to the URL for
	// url submissions and the headline otherwise.
	InputContent string
}

// Analysis is the structured answer expected from the model.
type Analysis struct {
	BiasScore        float64  `json:"bias_score" validate:"gte=-100,lte=100"`
	BiasLabel        string   `json:"bias_label" validate:"required,oneof=left center-left center center-right right"`
	SentimentScore   float64  `json:"sentiment_score" validate:"gte=-1,lte=1"`
	SentimentLabel   string   `json:"sentiment_label" validate:"required,oneof='very negative' negative neutral positive 'very positive'"`
	FactCheckScore   float64  `json:"fact_check_score" validate:"gte=0,lte=100"`
	CredibilityScore float64  `json:"credibility_score" validate:"gte=1,lte=10"`
	Explanation      string   `json:"explanation" validate:"required"`
	KeyFindings      []string `json:"key_findings"`
	Methodology      string   `json:"methodology"`
	Limitations      string   `json:"limitations"`
	Confidence       float64  `json:"confidence" validate:"gte=0,lte=100"`
}

// Result is a completed analysis.
type Result struct {
	RequestID string
	Article   *database.Article
	Analysis  Analysis
}

// Scraper fetches an article page.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*scrape.Page, error)
}

// Linker records similar articles for a newly stored article.
type Linker interface {
	Link(ctx context.Context, article *database.Article) error
}

// Options configures an Analyzer.
type Options struct {
	Scraper   Scraper
	Linker    Linker
	MaxTokens int
	Timeout   time.Duration
	Logger    *slog.Logger
}

// Analyzer runs submissions through the model and stores the results.
type Analyzer struct {
	db        *database.DB
	provider  llm.Provider
	scraper   Scraper
	linker    Linker
	maxTokens int
	timeout   time.Duration
	logger    *slog.Logger
	validate  *validator.Validate
}

// NewAnalyzer creates an Analyzer. provider may be nil, in which case every
// submission fails with an upstream error.
func NewAnalyzer(db *database.DB, provider llm.Provider, opts Options) *Analyzer {
	a := &Analyzer{
		db:        db,
		provider:  provider,
		scraper:   opts.Scraper,
		linker:    opts.Linker,
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
		validate:  validator.New(),
	}
	if a.maxTokens <= 0 {
		a.maxTokens = defaultMaxTokens
	}
	if a.timeout <= 0 {
		a.timeout = defaultTimeout
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Analyze validates a submission, records it in the audit log, scrapes the
// URL when no content was given, asks the model for an analysis and stores
// the article. The audit row ends up completed or failed.
func (a *Analyzer) Analyze(ctx context.Context, sub Submission) (*Result, error) {
	sub = normalizeSubmission(sub)
	if err := a.validate.Struct(sub); err != nil {
		return nil, apperr.Validation(submissionMessage(err))
	}

	var userID *string
	if sub.UserID != "" {
		userID = &sub.UserID
	}
	requestID, err := a.db.InsertAnalysisRequest(ctx, userID, string(sub.InputType), sub.InputContent)
	if err != nil {
		return nil, apperr.Persistence("failed to record analysis request", err)
	}

	result, err := a.run(ctx, requestID, sub)
	if err != nil {
		a.fail(ctx, requestID, err)
		return nil, err
	}
	metrics.Analyses.WithLabelValues("completed").Inc()
	return result, nil
}

func (a *Analyzer) run(ctx context.Context, requestID string, sub Submission) (*Result, error) {
	if sub.URL != "" && sub.Content == "" {
		if a.scraper == nil {
			return nil, apperr.Validation("content is required")
		}
		page, err := a.scraper.Scrape(ctx, sub.URL)
		if err != nil {
			return nil, err
		}
		if sub.Headline == "" {
			sub.Headline = page.Headline
		}
		sub.Content = page.Content
		if sub.SourceName == "" {
			sub.SourceName = page.SourceName
		}
	}
	if sub.URL != "" && sub.SourceName == "" {
		if u, err := scrape.ParseURL(sub.URL); err == nil {
			sub.SourceName = scrape.SourceName(u)
		}
	}

	analysis, err := a.ask(ctx, sub.Headline, sub.Content)
	if err != nil {
		return nil, err
	}

	article, err := a.db.InsertArticle(ctx, database.NewArticle{
		Headline:         sub.Headline,
		Content:          optional(sub.Content),
		URL:              optional(sub.URL),
		SourceName:       optional(sub.SourceName),
		PublishedAt:      optional(sub.PublishedAt),
		BiasScore:        analysis.BiasScore,
		BiasLabel:        analysis.BiasLabel,
		SentimentScore:   analysis.SentimentScore,
		SentimentLabel:   analysis.SentimentLabel,
		FactCheckScore:   analysis.FactCheckScore,
		CredibilityScore: analysis.CredibilityScore,
		FactCheck: &database.FactCheckDetail{
			Explanation: analysis.Explanation,
			KeyFindings: analysis.KeyFindings,
			Methodology: analysis.Methodology,
			Limitations: analysis.Limitations,
			Confidence:  analysis.Confidence,
		},
		AIExplanation: analysis.Explanation,
	})
	if err != nil {
		return nil, apperr.Persistence("failed to store analysis results", err)
	}

	if err := a.db.CompleteAnalysisRequest(ctx, requestID, article.ID); err != nil {
		a.logger.Warn("failed to mark analysis request completed", "request", requestID, "article", article.ID, "error", err)
	}
	a.logger.Info("analysis completed", "article", article.ID, "bias", analysis.BiasLabel, "headline", sub.Headline)

	if a.linker != nil {
		if err := a.linker.Link(ctx, article); err != nil {
			a.logger.Warn("similar-article linking failed", "article", article.ID, "error", err)
		}
	}

	return &Result{RequestID: requestID, Article: article, Analysis: *analysis}, nil
}

// ask sends the analysis prompt and validates the model's answer.
func (a *Analyzer) ask(ctx context.Context, headline, content string) (*Analysis, error) {
	if a.provider == nil {
		return nil, apperr.Upstream("analysis service is not configured", ErrNotConfigured)
	}

	if content == "" {
		content = "No content provided"
	}
	if len(content) > maxPromptContent {
		content = content[:maxPromptContent] + "..."
	}
	prompt := fmt.Sprintf(analysisPrompt, headline, content)

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.provider.Generate(callCtx, prompt, a.maxTokens)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, apperr.Upstream("analysis timed out", err)
		}
		return nil, apperr.Upstream("analysis service error", err)
	}

	var analysis Analysis
	if err := llm.DecodeJSON(text, &analysis); err != nil {
		return nil, apperr.Upstream("invalid JSON response from AI analysis", err)
	}
	normalizeAnalysis(&analysis)
	if err := a.validate.Struct(analysis); err != nil {
		return nil, apperr.Upstream("AI analysis returned invalid values", err)
	}
	return &analysis, nil
}

func (a *Analyzer) fail(ctx context.Context, requestID string, cause error) {
	metrics.Analyses.WithLabelValues("failed").Inc()
	a.logger.Warn("analysis failed", "request", requestID, "kind", apperr.KindOf(cause), "error", cause)

	// The caller's context may already be done; the audit row is still updated.
	ctx = context.WithoutCancel(ctx)
	if err := a.db.FailAnalysisRequest(ctx, requestID, apperr.Message(cause)); err != nil {
		a.logger.Warn("failed to mark analysis request failed", "request", requestID, "error", err)
	}
}

func normalizeSubmission(sub Submission) Submission {
	sub.Headline = strings.TrimSpace(sub.Headline)
	sub.Content = strings.TrimSpace(sub.Content)
	sub.URL = strings.TrimSpace(sub.URL)
	sub.SourceName = strings.TrimSpace(sub.SourceName)
	if sub.InputType == "" {
		sub.InputType = InputText
		if sub.URL != "" && sub.Content == "" {
			sub.InputType = InputURL
		}
	}
	if sub.InputContent == "" {
		if sub.InputType == InputURL {
			sub.InputContent = sub.URL
		} else {
			sub.InputContent = sub.Headline
		}
	}
	return sub
}

func normalizeAnalysis(a *Analysis) {
	a.BiasLabel = strings.ToLower(strings.TrimSpace(a.BiasLabel))
	a.SentimentLabel = strings.ToLower(strings.TrimSpace(a.SentimentLabel))
	a.Explanation = strings.TrimSpace(a.Explanation)
	if len(a.KeyFindings) > 10 {
		a.KeyFindings = a.KeyFindings[:10]
	}
}

// submissionMessage turns validator errors into a caller-facing message.
func submissionMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid submission"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required", "required_without":
		return field + " is required"
	case "url":
		return "Invalid URL provided"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s is too long", field)
	}
	return "invalid " + field
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
