// Package collect gathers candidate news articles from RSS and Atom feeds.
package collect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/TobiSchelling/BiasLens/internal/config"
	"github.com/TobiSchelling/BiasLens/internal/database"
)

// Result holds the results of a collection run.
type Result struct {
	TotalFound int
	Duplicates int
	Sources    map[string]int
	// New holds entries whose URL is not stored yet, in feed order.
	New []FeedEntry
}

// Collector orchestrates article collection from the configured feeds.
type Collector struct {
	db         *database.DB
	feedParser *FeedParser
	daysBack   int
}

// NewCollector creates a new article collector.
func NewCollector(cfg *config.Config, db *database.DB, daysBack int) *Collector {
	c := &Collector{
		db:       db,
		daysBack: daysBack,
	}

	if len(cfg.Sources.Feeds) > 0 {
		feeds := make([]FeedConfig, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			feeds[i] = FeedConfig{URL: f.URL, Name: f.Name}
		}
		c.feedParser = NewFeedParser(feeds, nil, cfg.Scrape.UserAgent)
	}

	return c
}

// Collect parses every feed and drops entries that are already stored or
// repeated across feeds.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	r := &Result{Sources: make(map[string]int)}
	if c.feedParser == nil {
		slog.Info("no feeds configured")
		return r, nil
	}

	entries := c.feedParser.ParseAll(ctx, c.daysBack)
	r.TotalFound = len(entries)

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if seen[entry.URL] {
			r.Duplicates++
			continue
		}
		seen[entry.URL] = true

		existing, err := c.db.FindArticleByURL(ctx, entry.URL)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", entry.URL, err)
		}
		if existing != nil {
			r.Duplicates++
			continue
		}
		r.New = append(r.New, entry)
		r.Sources[entry.Source]++
	}

	slog.Info("collection complete", "found", r.TotalFound, "new", len(r.New), "duplicates", r.Duplicates)
	return r, nil
}
