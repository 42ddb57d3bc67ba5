// Package fetch harvests content from configured sources and feeds it into
// the deduplicating ingestion gate. Adapters encapsulate per-source-type
// retrieval; the Fetcher handles filtering, politeness, and bookkeeping.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/narradar/narradar/internal/config"
	"github.com/narradar/narradar/internal/content"
	"github.com/narradar/narradar/internal/source"
)

// Fetcher runs harvest passes over registered adapters.
type Fetcher struct {
	cfg      *config.Config
	sources  *source.Store
	content  *content.Store
	filter   *URLFilter
	log      *slog.Logger
	adapters map[source.Type]Adapter

	mu      sync.Mutex
	lastHit map[string]time.Time
}

// New creates a Fetcher with the configured URL filter.
func New(cfg *config.Config, sourceStore *source.Store, contentStore *content.Store, log *slog.Logger) *Fetcher {
	return &Fetcher{
		cfg:      cfg,
		sources:  sourceStore,
		content:  contentStore,
		filter:   NewURLFilter(cfg.IncludeURLs, cfg.ExcludeURLs),
		log:      log,
		adapters: make(map[source.Type]Adapter),
		lastHit:  make(map[string]time.Time),
	}
}

// Register adds an adapter for its source type, replacing any previous one.
func (f *Fetcher) Register(a Adapter) {
	f.adapters[a.Type()] = a
}

// Stats summarizes one harvest pass.
type Stats struct {
	Sources    int `json:"sources"`
	Pages      int `json:"pages"`
	Ingested   int `json:"ingested"`
	Duplicates int `json:"duplicates"`
	Filtered   int `json:"filtered"`
	Errors     int `json:"errors"`
}

// Run harvests every active source of the given type. Per-source failures
// are logged and counted, not fatal; the pass continues with the rest.
func (f *Fetcher) Run(ctx context.Context, sourceType source.Type) (*Stats, error) {
	adapter, ok := f.adapters[sourceType]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source type %q", sourceType)
	}

	sources, err := f.sources.List(ctx, source.ListFilter{SourceType: sourceType, ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for i := range sources {
		src := &sources[i]
		stats.Sources++

		if err := f.waitPolitely(ctx, src.URL); err != nil {
			return stats, err
		}

		pages, err := adapter.Fetch(ctx, src)
		if err != nil {
			stats.Errors++
			f.log.Warn("fetching source failed", "source", src.Name, "error", err)
			continue
		}
		stats.Pages += len(pages)

		for _, page := range pages {
			if !f.filter.Allowed(page.URL) {
				stats.Filtered++
				continue
			}
			_, err := f.content.Ingest(ctx, content.RawItem{
				SourceID:   src.ID,
				SourceType: string(src.SourceType),
				Title:      page.Title,
				Text:       page.Text,
				URL:        page.URL,
				FetchedAt:  page.FetchedAt,
			})
			switch {
			case errors.Is(err, content.ErrDuplicateContent):
				stats.Duplicates++
			case err != nil:
				stats.Errors++
				f.log.Error("ingesting page failed", "url", page.URL, "error", err)
			default:
				stats.Ingested++
			}
		}

		if err := f.sources.TouchFetched(ctx, src.ID, time.Now()); err != nil {
			f.log.Error("recording fetch time", "source", src.Name, "error", err)
		}
	}

	f.log.Info("harvest pass finished", "type", sourceType,
		"sources", stats.Sources, "pages", stats.Pages,
		"ingested", stats.Ingested, "duplicates", stats.Duplicates,
		"filtered", stats.Filtered, "errors", stats.Errors)
	return stats, nil
}

// waitPolitely spaces out requests to the same host by the configured delay.
func (f *Fetcher) waitPolitely(ctx context.Context, rawURL string) error {
	if f.cfg.FetchDelaySeconds <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := u.Host

	f.mu.Lock()
	last, seen := f.lastHit[host]
	f.lastHit[host] = time.Now()
	f.mu.Unlock()
	if !seen {
		return nil
	}

	delay := time.Duration(f.cfg.FetchDelaySeconds*float64(time.Second)) - time.Since(last)
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
