// Package pipeline runs feed ingest: collect new feed items, then analyze
// each one.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/TobiSchelling/BiasLens/internal/analyze"
	"github.com/TobiSchelling/BiasLens/internal/collect"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps    []StepResult
	Analyzed int
	Failed   int
	// Sources counts new entries per feed source.
	Sources map[string]int
}

// Collector finds feed entries that are not stored yet.
type Collector interface {
	Collect(ctx context.Context) (*collect.Result, error)
}

// Analyzer analyzes one submission.
type Analyzer interface {
	Analyze(ctx context.Context, sub analyze.Submission) (*analyze.Result, error)
}

// Pipeline orchestrates the two-step ingest.
type Pipeline struct {
	collector Collector
	analyzer  Analyzer
	limit     int
}

// New creates a new pipeline. limit caps the number of analyses per run;
// zero means no cap.
func New(collector Collector, analyzer Analyzer, limit int) *Pipeline {
	return &Pipeline{collector: collector, analyzer: analyzer, limit: limit}
}

// Run executes the pipeline. Individual analysis failures are counted and
// logged; an upstream misconfiguration stops the run early.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{}

	slog.Info("Step 1/2: collecting feed entries")
	collected, err := p.collector.Collect(ctx)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Collect", Err: err})
		return r
	}
	r.Sources = collected.Sources
	r.Steps = append(r.Steps, StepResult{
		Name: "Collect",
		Summary: fmt.Sprintf("Found %d new entries (%d total, %d duplicates)",
			len(collected.New), collected.TotalFound, collected.Duplicates),
	})

	slog.Info("Step 2/2: analyzing entries", "count", len(collected.New))
	step := p.runAnalyze(ctx, collected.New, r)
	r.Steps = append(r.Steps, step)
	return r
}

// DryRun collects without analyzing.
func (p *Pipeline) DryRun(ctx context.Context) *Result {
	r := &Result{}
	collected, err := p.collector.Collect(ctx)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Collect", Err: err})
		return r
	}
	r.Sources = collected.Sources
	r.Steps = append(r.Steps,
		StepResult{Name: "Collect", Summary: fmt.Sprintf("[dry-run] %d new entries, %d duplicates", len(collected.New), collected.Duplicates)},
		StepResult{Name: "Analyze", Summary: fmt.Sprintf("[dry-run] Would analyze %d entries", p.capped(len(collected.New)))},
	)
	return r
}

func (p *Pipeline) runAnalyze(ctx context.Context, entries []collect.FeedEntry, r *Result) StepResult {
	entries = entries[:p.capped(len(entries))]

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return StepResult{Name: "Analyze", Err: err,
				Summary: fmt.Sprintf("Interrupted after %d analyzed, %d failed", r.Analyzed, r.Failed)}
		}

		_, err := p.analyzer.Analyze(ctx, analyze.Submission{
			InputType:   analyze.InputURL,
			Headline:    e.Title,
			Content:     e.Content,
			URL:         e.URL,
			SourceName:  e.Source,
			PublishedAt: e.PublishedDate,
		})
		if err != nil {
			r.Failed++
			slog.Warn("failed to analyze feed entry", "url", e.URL, "error", err)
			if errors.Is(err, analyze.ErrNotConfigured) {
				return StepResult{Name: "Analyze", Err: err}
			}
			continue
		}
		r.Analyzed++
	}

	return StepResult{
		Name:    "Analyze",
		Summary: fmt.Sprintf("Analyzed %d entries, %d failed", r.Analyzed, r.Failed),
	}
}

func (p *Pipeline) capped(n int) int {
	if p.limit > 0 && n > p.limit {
		return p.limit
	}
	return n
}
