// Package extractor runs the first analysis stage: turning pending content
// items into structured signals via the language model. Items move through
// the content state machine so a crashed or failed run can always be
// resumed.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/narradar/narradar/internal/config"
	"github.com/narradar/narradar/internal/content"
	"github.com/narradar/narradar/internal/llm"
	"github.com/narradar/narradar/internal/signal"
	"github.com/narradar/narradar/internal/source"
)

// Extractor processes pending content items with bounded concurrency.
type Extractor struct {
	cfg      *config.Config
	provider llm.Provider
	content  *content.Store
	signals  *signal.Store
	sources  *source.Store
	log      *slog.Logger
}

// New creates an Extractor.
func New(cfg *config.Config, provider llm.Provider, contentStore *content.Store, signalStore *signal.Store, sourceStore *source.Store, log *slog.Logger) *Extractor {
	return &Extractor{
		cfg:      cfg,
		provider: provider,
		content:  contentStore,
		signals:  signalStore,
		sources:  sourceStore,
		log:      log,
	}
}

// Stats summarizes one extraction run.
type Stats struct {
	Processed int `json:"processed"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Requeued  int `json:"requeued"`
	Failed    int `json:"failed"`
	Signals   int `json:"signals"`
	Reclaimed int `json:"reclaimed"`
}

type extractResponse struct {
	Signals []struct {
		Title           string   `json:"title"`
		Description     string   `json:"description"`
		SignalType      string   `json:"signal_type"`
		Novelty         string   `json:"novelty"`
		EvidenceQuote   string   `json:"evidence_quote"`
		RelatedProjects []string `json:"related_projects"`
		Tags            []string `json:"tags"`
	} `json:"signals"`
}

// Run sweeps stuck items back to pending, then processes up to limit
// pending items (limit <= 0 processes everything). onItem, when non-nil, is
// called once per finished item so callers can drive a progress display.
func (e *Extractor) Run(ctx context.Context, limit int, onItem func()) (*Stats, error) {
	stats := &Stats{}

	reclaimed, err := e.content.ReclaimStuck(ctx, e.cfg.ReclaimTimeout())
	if err != nil {
		return nil, err
	}
	stats.Reclaimed = int(reclaimed)
	if reclaimed > 0 {
		e.log.Warn("reclaimed stuck items", "count", reclaimed)
	}

	items, err := e.content.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return stats, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, e.cfg.WorkerConcurrency)
	)
	for i := range items {
		item := items[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, signals := e.processItem(ctx, &item)

			mu.Lock()
			stats.Processed++
			stats.Signals += signals
			switch outcome {
			case content.StatusCompleted:
				stats.Completed++
			case content.StatusSkipped:
				stats.Skipped++
			case content.StatusPending:
				stats.Requeued++
			case content.StatusFailed:
				stats.Failed++
			}
			mu.Unlock()
			if onItem != nil {
				onItem()
			}
		}()
	}
	wg.Wait()

	e.log.Info("extraction run finished",
		"processed", stats.Processed, "completed", stats.Completed,
		"skipped", stats.Skipped, "requeued", stats.Requeued,
		"failed", stats.Failed, "signals", stats.Signals)
	return stats, nil
}

// processItem runs one item through claim, analysis, and terminal marking.
// The returned status is the item's state after this attempt.
func (e *Extractor) processItem(ctx context.Context, item *content.Item) (content.Status, int) {
	if err := e.content.Claim(ctx, item.ID); err != nil {
		if errors.Is(err, content.ErrNotClaimed) {
			// Another worker got it first.
			return content.StatusProcessing, 0
		}
		e.log.Error("claiming item", "item", item.ID, "error", err)
		return content.StatusProcessing, 0
	}

	if len(content.Normalize(item.RawText)) < e.cfg.MinContentChars {
		if err := e.content.MarkSkipped(ctx, item.ID, "content below minimum length"); err != nil {
			e.log.Error("marking item skipped", "item", item.ID, "error", err)
		}
		return content.StatusSkipped, 0
	}

	signals, err := e.analyze(ctx, item)
	if err != nil {
		status, markErr := e.content.MarkFailed(ctx, item.ID, err.Error(), e.cfg.MaxAttempts)
		if markErr != nil {
			e.log.Error("marking item failed", "item", item.ID, "error", markErr)
			return content.StatusFailed, 0
		}
		e.log.Warn("extraction attempt failed",
			"item", item.ID, "status", status, "attempt", item.AttemptCount+1, "error", err)
		return status, 0
	}

	for _, sig := range signals {
		if err := e.signals.Insert(ctx, sig); err != nil {
			status, _ := e.content.MarkFailed(ctx, item.ID, err.Error(), e.cfg.MaxAttempts)
			return status, 0
		}
	}
	if err := e.content.MarkCompleted(ctx, item.ID); err != nil {
		e.log.Error("marking item completed", "item", item.ID, "error", err)
	}
	return content.StatusCompleted, len(signals)
}

// analyze sends one item to the model and parses the structured response.
func (e *Extractor) analyze(ctx context.Context, item *content.Item) ([]*signal.Signal, error) {
	sourceName, sourceCategory := item.SourceType, "general"
	if src, err := e.sources.Get(ctx, item.SourceID); err == nil {
		sourceName, sourceCategory = src.Name, src.Category
	}

	system, user := buildPrompt(e.cfg.Ecosystem, item, sourceName, sourceCategory, e.cfg.MaxContentChars)
	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("completing extraction: %w", err)
	}

	var parsed extractResponse
	if err := llm.DecodeJSON(resp.Content, &parsed); err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}

	signals := make([]*signal.Signal, 0, len(parsed.Signals))
	for _, c := range parsed.Signals {
		if c.Title == "" {
			continue
		}
		signals = append(signals, &signal.Signal{
			ContentItemID:   item.ID,
			Title:           c.Title,
			Description:     c.Description,
			SignalType:      c.SignalType,
			Novelty:         c.Novelty,
			EvidenceQuote:   c.EvidenceQuote,
			RelatedProjects: c.RelatedProjects,
			Tags:            c.Tags,
		})
	}
	return signals, nil
}
