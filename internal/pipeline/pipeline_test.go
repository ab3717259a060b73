package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/BiasLens/internal/analyze"
	"github.com/TobiSchelling/BiasLens/internal/apperr"
	"github.com/TobiSchelling/BiasLens/internal/collect"
	"github.com/TobiSchelling/BiasLens/internal/database"
)

type fakeCollector struct {
	res *collect.Result
	err error
}

func (f *fakeCollector) Collect(context.Context) (*collect.Result, error) { return f.res, f.err }

type fakeAnalyzer struct {
	subs []analyze.Submission
	fail map[string]error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, sub analyze.Submission) (*analyze.Result, error) {
	f.subs = append(f.subs, sub)
	if err := f.fail[sub.URL]; err != nil {
		return nil, err
	}
	return &analyze.Result{Article: &database.Article{ID: "a-" + sub.URL, Headline: sub.Headline}}, nil
}

func entries(urls ...string) []collect.FeedEntry {
	out := make([]collect.FeedEntry, len(urls))
	for i, u := range urls {
		out[i] = collect.FeedEntry{URL: u, Title: "Title " + u, Content: "body", Source: "Src", PublishedDate: "2025-03-10"}
	}
	return out
}

func TestRunAnalyzesNewEntries(t *testing.T) {
	col := &fakeCollector{res: &collect.Result{TotalFound: 3, Duplicates: 1, New: entries("u1", "u2")}}
	an := &fakeAnalyzer{fail: map[string]error{"u2": apperr.Upstream("analysis service error", errors.New("500"))}}

	r := New(col, an, 0).Run(context.Background())

	require.Len(t, r.Steps, 2)
	assert.NoError(t, r.Steps[0].Err)
	assert.Contains(t, r.Steps[0].Summary, "2 new entries")
	assert.Equal(t, 1, r.Analyzed)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, "Analyzed 1 entries, 1 failed", r.Steps[1].Summary)

	require.Len(t, an.subs, 2)
	s := an.subs[0]
	assert.Equal(t, analyze.InputURL, s.InputType)
	assert.Equal(t, "Title u1", s.Headline)
	assert.Equal(t, "body", s.Content)
	assert.Equal(t, "Src", s.SourceName)
	assert.Equal(t, "2025-03-10", s.PublishedAt)
}

func TestRunStopsWhenProviderMissing(t *testing.T) {
	notConfigured := apperr.Upstream("analysis service is not configured", analyze.ErrNotConfigured)
	col := &fakeCollector{res: &collect.Result{New: entries("u1", "u2", "u3")}}
	an := &fakeAnalyzer{fail: map[string]error{"u1": notConfigured}}

	r := New(col, an, 0).Run(context.Background())

	assert.Len(t, an.subs, 1)
	assert.ErrorIs(t, r.Steps[1].Err, analyze.ErrNotConfigured)
}

func TestRunRespectsLimit(t *testing.T) {
	col := &fakeCollector{res: &collect.Result{New: entries("u1", "u2", "u3")}}
	an := &fakeAnalyzer{}

	r := New(col, an, 2).Run(context.Background())
	assert.Equal(t, 2, r.Analyzed)
	assert.Len(t, an.subs, 2)
}

func TestRunCollectError(t *testing.T) {
	an := &fakeAnalyzer{}
	r := New(&fakeCollector{err: errors.New("db down")}, an, 0).Run(context.Background())

	require.Len(t, r.Steps, 1)
	assert.Error(t, r.Steps[0].Err)
	assert.Empty(t, an.subs)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	an := &fakeAnalyzer{}

	r := New(&fakeCollector{res: &collect.Result{New: entries("u1")}}, an, 0).Run(ctx)
	assert.ErrorIs(t, r.Steps[1].Err, context.Canceled)
	assert.Empty(t, an.subs)
}

func TestDryRun(t *testing.T) {
	an := &fakeAnalyzer{}
	r := New(&fakeCollector{res: &collect.Result{Duplicates: 4, New: entries("u1", "u2", "u3")}}, an, 2).DryRun(context.Background())

	require.Len(t, r.Steps, 2)
	assert.Equal(t, "[dry-run] 3 new entries, 4 duplicates", r.Steps[0].Summary)
	assert.Equal(t, "[dry-run] Would analyze 2 entries", r.Steps[1].Summary)
	assert.Empty(t, an.subs)
}
