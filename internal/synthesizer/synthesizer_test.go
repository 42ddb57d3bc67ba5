package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/narradar/narradar/internal/config"
	"github.com/narradar/narradar/internal/db"
	"github.com/narradar/narradar/internal/llm"
	"github.com/narradar/narradar/internal/narrative"
	"github.com/narradar/narradar/internal/signal"
	"github.com/narradar/narradar/internal/velocity"
)

// scriptedProvider pops one canned response per call.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	err       error
	requests  []llm.CompletionRequest
}

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &llm.CompletionResponse{Content: `{"narratives": []}`}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return &llm.CompletionResponse{Content: resp}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func setup(t *testing.T, provider llm.Provider) (*Synthesizer, *narrative.Store, *db.DB) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	signalStore := signal.NewStore(database)
	narrativeStore := narrative.NewStore(database)
	engine := velocity.NewEngine(narrativeStore, cfg.DailyDecayRate, cfg.StalenessThreshold(), log)

	return New(cfg, provider, signalStore, narrativeStore, engine, log), narrativeStore, database
}

// seedSignals inserts n signals, each from its own source.
func seedSignals(t *testing.T, database *db.DB, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		srcID := fmt.Sprintf("src-%d", i)
		itemID := fmt.Sprintf("item-%d", i)
		ids[i] = fmt.Sprintf("sig-%d", i)

		_, err := database.Exec(`
			INSERT INTO data_sources (id, name, url, source_type)
			VALUES (?, ?, ?, 'web')`,
			srcID, fmt.Sprintf("Source %d", i), fmt.Sprintf("https://example.com/%d", i))
		if err != nil {
			t.Fatalf("seeding source: %v", err)
		}
		_, err = database.Exec(`
			INSERT INTO content_items (id, source_id, source_type, raw_text, url, content_hash, status)
			VALUES (?, ?, 'web', 'body', ?, ?, 'completed')`,
			itemID, srcID, fmt.Sprintf("https://example.com/%d/p", i), fmt.Sprintf("hash-%d", i))
		if err != nil {
			t.Fatalf("seeding item: %v", err)
		}
		_, err = database.Exec(`
			INSERT INTO signals (id, content_item_id, title, description, novelty)
			VALUES (?, ?, ?, 'desc', 'high')`,
			ids[i], itemID, fmt.Sprintf("signal %d", i))
		if err != nil {
			t.Fatalf("seeding signal: %v", err)
		}
	}
	return ids
}

const goodNarrative = `{
	"narratives": [
		{
			"title": "DePIN Infrastructure Boom",
			"summary": "Decentralized physical infrastructure is pulling in builders and capital.",
			"confidence": "medium",
			"confidence_reasoning": "multiple independent sources",
			"tags": ["depin"],
			"evidence": [
				{"signal_id": "sig-0", "quote": "hardware deployments accelerating"},
				{"signal_id": "sig-1", "quote": "new token incentives"}
			],
			"ideas": [
				{"title": "sensor marketplace", "why_ecosystem_fit": "cheap transactions"},
				{"title": "deployment analytics", "why_ecosystem_fit": "onchain data"},
				{"title": "hardware financing", "why_ecosystem_fit": "token collateral"}
			]
		}
	]
}`

func TestSynthesizeEmptyWindow(t *testing.T) {
	s, _, _ := setup(t, &scriptedProvider{})
	_, err := s.Synthesize(context.Background())
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestSynthesizeCreatesNarrative(t *testing.T) {
	provider := &scriptedProvider{responses: []string{goodNarrative}}
	s, store, database := setup(t, provider)
	ctx := context.Background()
	seedSignals(t, database, 2)

	stats, err := s.Synthesize(ctx)
	if err != nil {
		t.Fatalf("synthesizing: %v", err)
	}
	if stats.Created != 1 || stats.Updated != 0 || stats.Rejected != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Retried {
		t.Error("no retry expected")
	}

	narratives, err := store.List(ctx, narrative.ListFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(narratives) != 1 {
		t.Fatalf("narratives = %d, want 1", len(narratives))
	}

	detail, err := store.Get(ctx, narratives[0].ID)
	if err != nil {
		t.Fatalf("fetching detail: %v", err)
	}
	if len(detail.Evidence) != 2 {
		t.Errorf("evidence = %d, want 2", len(detail.Evidence))
	}
	if len(detail.Ideas) != 3 {
		t.Errorf("ideas = %d, want 3", len(detail.Ideas))
	}
	// Rescore runs as part of synthesis.
	if detail.VelocityScore <= 0 {
		t.Errorf("velocity = %f, want > 0 after rescore", detail.VelocityScore)
	}
}

func TestSynthesizeUpdatesExistingByTitle(t *testing.T) {
	provider := &scriptedProvider{responses: []string{goodNarrative, goodNarrative}}
	s, store, database := setup(t, provider)
	ctx := context.Background()
	seedSignals(t, database, 2)

	if _, err := s.Synthesize(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	stats, err := s.Synthesize(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if stats.Created != 0 || stats.Updated != 1 {
		t.Errorf("stats = %+v, want 1 updated", stats)
	}

	narratives, _ := store.List(ctx, narrative.ListFilter{})
	if len(narratives) != 1 {
		t.Errorf("narratives = %d, want a single merged row", len(narratives))
	}
}

func TestSynthesizeAbortsOnMalformedResponse(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"sorry, here is prose instead of JSON"}}
	s, store, database := setup(t, provider)
	ctx := context.Background()
	seedSignals(t, database, 2)

	_, err := s.Synthesize(ctx)
	if err == nil {
		t.Fatal("malformed response should abort the run")
	}
	narratives, _ := store.List(ctx, narrative.ListFilter{})
	if len(narratives) != 0 {
		t.Errorf("narratives = %d, aborted run must not mutate", len(narratives))
	}
}

func TestSynthesizeRejectsInventedEvidence(t *testing.T) {
	response := `{
		"narratives": [
			{
				"title": "Hallucinated Theme",
				"summary": "backed by nothing real",
				"confidence": "high",
				"evidence": [{"signal_id": "sig-does-not-exist", "quote": "made up"}],
				"ideas": []
			},
			{
				"title": "Real Theme",
				"summary": "backed by the window",
				"confidence": "medium",
				"evidence": [
					{"signal_id": "sig-0", "quote": "real"},
					{"signal_id": "sig-also-fake", "quote": "dropped"}
				],
				"ideas": [{"title": "a"}, {"title": "b"}, {"title": "c"}]
			}
		]
	}`
	provider := &scriptedProvider{responses: []string{response}}
	s, store, database := setup(t, provider)
	ctx := context.Background()
	seedSignals(t, database, 1)

	stats, err := s.Synthesize(ctx)
	if err != nil {
		t.Fatalf("synthesizing: %v", err)
	}
	if stats.Rejected != 1 || stats.Created != 1 {
		t.Errorf("stats = %+v, want 1 rejected and 1 created", stats)
	}

	narratives, _ := store.List(ctx, narrative.ListFilter{})
	if len(narratives) != 1 || narratives[0].Title != "Real Theme" {
		t.Errorf("narratives = %+v", narratives)
	}
	detail, _ := store.Get(ctx, narratives[0].ID)
	if len(detail.Evidence) != 1 {
		t.Errorf("evidence = %d, invalid reference should be dropped", len(detail.Evidence))
	}
}

func TestSynthesizeRetriesOnceOnEmptyResult(t *testing.T) {
	provider := &scriptedProvider{responses: []string{`{"narratives": []}`, goodNarrative}}
	s, _, database := setup(t, provider)
	ctx := context.Background()
	seedSignals(t, database, 2)

	stats, err := s.Synthesize(ctx)
	if err != nil {
		t.Fatalf("synthesizing: %v", err)
	}
	if !stats.Retried {
		t.Error("retry flag should be set")
	}
	if stats.Created != 1 {
		t.Errorf("stats = %+v, want 1 created after retry", stats)
	}

	provider.mu.Lock()
	retrySystem := provider.requests[1].Messages[0].Content
	provider.mu.Unlock()
	if !strings.Contains(retrySystem, "previous answer contained no narratives") {
		t.Error("retry request should carry the firmer instruction")
	}
}

func TestSynthesizeGivesUpAfterOneRetry(t *testing.T) {
	provider := &scriptedProvider{responses: []string{`{"narratives": []}`, `{"narratives": []}`}}
	s, store, database := setup(t, provider)
	ctx := context.Background()
	seedSignals(t, database, 2)

	stats, err := s.Synthesize(ctx)
	if err != nil {
		t.Fatalf("synthesizing: %v", err)
	}
	if stats.Candidates != 0 || !stats.Retried {
		t.Errorf("stats = %+v", stats)
	}
	provider.mu.Lock()
	calls := len(provider.requests)
	provider.mu.Unlock()
	if calls != 2 {
		t.Errorf("model calls = %d, want exactly 2", calls)
	}
	narratives, _ := store.List(ctx, narrative.ListFilter{})
	if len(narratives) != 0 {
		t.Error("no narratives should exist after an empty run")
	}
}

func TestBackfillIdeas(t *testing.T) {
	backfillResponse := `{
		"ideas": [
			{"title": "payments sdk", "why_ecosystem_fit": "fast finality"},
			{"title": "merchant dashboard", "why_ecosystem_fit": "low fees"}
		]
	}`
	provider := &scriptedProvider{responses: []string{backfillResponse}}
	s, store, database := setup(t, provider)
	ctx := context.Background()
	ids := seedSignals(t, database, 1)

	narrativeID, _, err := store.Apply(ctx, &narrative.Narrative{
		Title:   "Payments Momentum",
		Summary: "payments activity picking up",
	}, []narrative.EvidenceLink{{SignalID: ids[0]}},
		[]narrative.Idea{{Title: "existing idea"}})
	if err != nil {
		t.Fatalf("seeding narrative: %v", err)
	}

	added, err := s.BackfillIdeas(ctx)
	if err != nil {
		t.Fatalf("backfilling: %v", err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}

	detail, _ := store.Get(ctx, narrativeID)
	if len(detail.Ideas) != 3 {
		t.Errorf("ideas = %d, want 3 after backfill", len(detail.Ideas))
	}

	// A second pass finds nothing to do and makes no model calls.
	provider.mu.Lock()
	before := len(provider.requests)
	provider.mu.Unlock()
	added, err = s.BackfillIdeas(ctx)
	if err != nil {
		t.Fatalf("second backfill: %v", err)
	}
	if added != 0 {
		t.Errorf("second backfill added = %d, want 0", added)
	}
	provider.mu.Lock()
	after := len(provider.requests)
	provider.mu.Unlock()
	if after != before {
		t.Error("satisfied narratives should not trigger model calls")
	}
}

func TestSynthesizeIgnoresSignalsOutsideWindow(t *testing.T) {
	provider := &scriptedProvider{}
	s, _, database := setup(t, provider)
	ctx := context.Background()
	ids := seedSignals(t, database, 1)

	old := db.FormatTime(time.Now().AddDate(0, 0, -30))
	if _, err := database.Exec("UPDATE signals SET created_at = ? WHERE id = ?", old, ids[0]); err != nil {
		t.Fatalf("backdating: %v", err)
	}

	_, err := s.Synthesize(ctx)
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch for out-of-window signals, got %v", err)
	}
}
