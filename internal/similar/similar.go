// Package similar links a newly analyzed article to the most similar stored
// articles using text embeddings.
package similar

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/TobiSchelling/BiasLens/internal/database"
	"github.com/TobiSchelling/BiasLens/internal/llm"
)

// Comparison types stored with each link.
const (
	SameTopic    = "same_topic"
	SameBias     = "same_bias"
	OppositeBias = "opposite_bias"
)

const (
	DefaultCandidates = 50
	DefaultTopK       = 5
	DefaultThreshold  = 0.6

	maxContentChars = 500
)

// Options configures a Linker.
type Options struct {
	Candidates int
	TopK       int
	Threshold  float64
}

// Linker computes and stores similar-article links.
type Linker struct {
	db         *database.DB
	embedder   llm.Embedder
	candidates int
	topK       int
	threshold  float64
}

// NewLinker creates a Linker. Zero options fall back to defaults.
func NewLinker(db *database.DB, embedder llm.Embedder, opts Options) *Linker {
	l := &Linker{
		db:         db,
		embedder:   embedder,
		candidates: opts.Candidates,
		topK:       opts.TopK,
		threshold:  opts.Threshold,
	}
	if l.candidates <= 0 {
		l.candidates = DefaultCandidates
	}
	if l.topK <= 0 {
		l.topK = DefaultTopK
	}
	if l.threshold <= 0 {
		l.threshold = DefaultThreshold
	}
	return l
}

// Link compares article against the most recently analyzed articles and
// replaces its stored links with the top matches above the threshold.
func (l *Linker) Link(ctx context.Context, article *database.Article) error {
	recent, err := l.db.ListRecentArticles(ctx, l.candidates+1)
	if err != nil {
		return fmt.Errorf("loading candidates: %w", err)
	}

	candidates := make([]database.Article, 0, len(recent))
	for _, a := range recent {
		if a.ID != article.ID {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) > l.candidates {
		candidates = candidates[:l.candidates]
	}
	if len(candidates) == 0 {
		return nil
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, articleText(*article))
	for _, c := range candidates {
		texts = append(texts, articleText(c))
	}

	embeddings, err := l.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding articles: %w", err)
	}
	if len(embeddings) != len(texts) {
		return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddings))
	}

	type scored struct {
		article database.Article
		score   float64
	}
	var matches []scored
	for i, c := range candidates {
		s := Cosine(embeddings[0], embeddings[i+1])
		if s >= l.threshold {
			matches = append(matches, scored{article: c, score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > l.topK {
		matches = matches[:l.topK]
	}

	links := make([]database.SimilarLink, len(matches))
	for i, m := range matches {
		links[i] = database.SimilarLink{
			SimilarArticleID: m.article.ID,
			SimilarityScore:  math.Round(m.score*1000) / 1000,
			ComparisonType:   ComparisonType(article.BiasLabel, m.article.BiasLabel),
		}
	}

	if err := l.db.ReplaceSimilarArticles(ctx, article.ID, links); err != nil {
		return fmt.Errorf("storing similar articles: %w", err)
	}
	slog.Debug("linked similar articles", "article", article.ID, "links", len(links), "candidates", len(candidates))
	return nil
}

// ComparisonType classifies a pair of bias labels. Labels on opposite sides
// of center are opposite_bias.
func ComparisonType(a, b *string) string {
	if a == nil || b == nil {
		return SameTopic
	}
	if *a == *b {
		return SameBias
	}
	if side(*a)*side(*b) < 0 {
		return OppositeBias
	}
	return SameTopic
}

func side(label string) int {
	switch label {
	case "left", "center-left":
		return -1
	case "center-right", "right":
		return 1
	}
	return 0
}

// Cosine returns the cosine similarity of two vectors, or 0 when either is
// empty or zero, or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func articleText(a database.Article) string {
	parts := []string{a.Headline}
	if a.Content != nil {
		content := *a.Content
		if len(content) > maxContentChars {
			content = content[:maxContentChars]
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, " ")
}
