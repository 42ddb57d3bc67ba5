package extractor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/narradar/narradar/internal/config"
	"github.com/narradar/narradar/internal/content"
	"github.com/narradar/narradar/internal/db"
	"github.com/narradar/narradar/internal/llm"
	"github.com/narradar/narradar/internal/signal"
	"github.com/narradar/narradar/internal/source"
)

// fakeProvider returns canned responses, or a scripted error, and records
// every request it receives.
type fakeProvider struct {
	mu       sync.Mutex
	response string
	err      error
	requests []llm.CompletionRequest
}

func (f *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.response}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func setup(t *testing.T, provider llm.Provider) (*Extractor, *content.Store, *signal.Store, *db.DB) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	_, err = database.Exec(`
		INSERT INTO data_sources (id, name, url, source_type, category)
		VALUES ('src-1', 'Solana Weekly', 'https://example.com/feed', 'web', 'newsletter')`)
	if err != nil {
		t.Fatalf("seeding source: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.WorkerConcurrency = 2

	contentStore := content.NewStore(database)
	signalStore := signal.NewStore(database)
	sourceStore := source.NewStore(database)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(cfg, provider, contentStore, signalStore, sourceStore, log),
		contentStore, signalStore, database
}

func ingest(t *testing.T, store *content.Store, text string) *content.Item {
	t.Helper()
	item, err := store.Ingest(context.Background(), content.RawItem{
		SourceID:   "src-1",
		SourceType: "web",
		Title:      "weekly roundup",
		Text:       text,
		URL:        "https://example.com/post",
	})
	if err != nil {
		t.Fatalf("ingesting: %v", err)
	}
	return item
}

const goodResponse = `{
	"signals": [
		{
			"title": "Validator client diversity improving",
			"description": "A second validator client crossed 10% of stake.",
			"signal_type": "developer",
			"novelty": "high",
			"evidence_quote": "crossed ten percent of stake",
			"related_projects": ["Firedancer"],
			"tags": ["validators"]
		},
		{
			"title": "Mobile wallet installs doubled",
			"description": "Install base doubled quarter over quarter.",
			"signal_type": "mobile",
			"novelty": "medium",
			"evidence_quote": "installs doubled",
			"related_projects": [],
			"tags": ["mobile", "wallets"]
		}
	]
}`

func TestRunExtractsSignals(t *testing.T) {
	provider := &fakeProvider{response: goodResponse}
	ex, contentStore, signalStore, _ := setup(t, provider)
	ctx := context.Background()

	item := ingest(t, contentStore, strings.Repeat("solana ecosystem report text ", 10))

	stats, err := ex.Run(ctx, 0, nil)
	if err != nil {
		t.Fatalf("running extraction: %v", err)
	}
	if stats.Completed != 1 || stats.Signals != 2 {
		t.Errorf("stats = %+v, want 1 completed with 2 signals", stats)
	}

	got, err := contentStore.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("fetching item: %v", err)
	}
	if got.Status != content.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}

	signals, err := signalStore.ListByContent(ctx, item.ID)
	if err != nil {
		t.Fatalf("listing signals: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("signals = %d, want 2", len(signals))
	}
	types := map[string]bool{}
	for _, sig := range signals {
		types[sig.SignalType] = true
	}
	if !types[signal.TypeDeveloper] || !types[signal.TypeMobile] {
		t.Errorf("signal types = %v", types)
	}
}

func TestRunSkipsShortContent(t *testing.T) {
	provider := &fakeProvider{response: goodResponse}
	ex, contentStore, _, _ := setup(t, provider)
	ctx := context.Background()

	item := ingest(t, contentStore, "too short")

	stats, err := ex.Run(ctx, 0, nil)
	if err != nil {
		t.Fatalf("running extraction: %v", err)
	}
	if stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 1 skipped", stats)
	}
	if provider.calls() != 0 {
		t.Error("short content must not reach the model")
	}

	got, _ := contentStore.Get(ctx, item.ID)
	if got.Status != content.StatusSkipped {
		t.Errorf("status = %s, want skipped", got.Status)
	}
}

func TestRunRequeuesThenFails(t *testing.T) {
	provider := &fakeProvider{err: errors.New("rate limited upstream")}
	ex, contentStore, _, _ := setup(t, provider)
	ctx := context.Background()

	item := ingest(t, contentStore, strings.Repeat("long enough content body ", 10))

	for attempt := 1; attempt <= 3; attempt++ {
		stats, err := ex.Run(ctx, 0, nil)
		if err != nil {
			t.Fatalf("run %d: %v", attempt, err)
		}
		if attempt < 3 && stats.Requeued != 1 {
			t.Errorf("run %d stats = %+v, want 1 requeued", attempt, stats)
		}
		if attempt == 3 && stats.Failed != 1 {
			t.Errorf("run %d stats = %+v, want 1 failed", attempt, stats)
		}
	}

	got, _ := contentStore.Get(ctx, item.ID)
	if got.Status != content.StatusFailed {
		t.Errorf("status = %s, want failed after max attempts", got.Status)
	}
	if got.AttemptCount != 3 {
		t.Errorf("attempts = %d, want 3", got.AttemptCount)
	}

	// A fourth run has nothing left to process.
	stats, err := ex.Run(ctx, 0, nil)
	if err != nil {
		t.Fatalf("final run: %v", err)
	}
	if stats.Processed != 0 {
		t.Errorf("terminal item was processed again: %+v", stats)
	}
}

func TestRunRequeuesOnMalformedResponse(t *testing.T) {
	provider := &fakeProvider{response: "I could not find any signals, sorry!"}
	ex, contentStore, _, _ := setup(t, provider)
	ctx := context.Background()

	item := ingest(t, contentStore, strings.Repeat("content body for malformed response ", 10))

	stats, err := ex.Run(ctx, 0, nil)
	if err != nil {
		t.Fatalf("running extraction: %v", err)
	}
	if stats.Requeued != 1 {
		t.Errorf("stats = %+v, want 1 requeued", stats)
	}
	got, _ := contentStore.Get(ctx, item.ID)
	if got.Status != content.StatusPending {
		t.Errorf("status = %s, want pending for retry", got.Status)
	}
	if got.LastError == "" {
		t.Error("last error should record the parse failure")
	}
}

func TestRunEmptySignalListCompletes(t *testing.T) {
	provider := &fakeProvider{response: `{"signals": []}`}
	ex, contentStore, _, _ := setup(t, provider)
	ctx := context.Background()

	item := ingest(t, contentStore, strings.Repeat("quiet week nothing happened ", 10))

	stats, err := ex.Run(ctx, 0, nil)
	if err != nil {
		t.Fatalf("running extraction: %v", err)
	}
	if stats.Completed != 1 || stats.Signals != 0 {
		t.Errorf("stats = %+v, want completed with 0 signals", stats)
	}
	got, _ := contentStore.Get(ctx, item.ID)
	if got.Status != content.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestRunProcessesBatch(t *testing.T) {
	provider := &fakeProvider{response: `{"signals": []}`}
	ex, contentStore, _, _ := setup(t, provider)
	ctx := context.Background()

	texts := []string{
		strings.Repeat("first distinct article body ", 10),
		strings.Repeat("second distinct article body ", 10),
		strings.Repeat("third distinct article body ", 10),
	}
	for _, text := range texts {
		if _, err := contentStore.Ingest(ctx, content.RawItem{
			SourceID: "src-1", SourceType: "web", Text: text,
			URL: "https://example.com/batch",
		}); err != nil {
			t.Fatalf("ingesting batch: %v", err)
		}
	}

	var progressed int
	var mu sync.Mutex
	stats, err := ex.Run(ctx, 0, func() {
		mu.Lock()
		progressed++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("running extraction: %v", err)
	}
	if stats.Processed != 3 || stats.Completed != 3 {
		t.Errorf("stats = %+v, want 3 completed", stats)
	}
	if progressed != 3 {
		t.Errorf("progress callbacks = %d, want 3", progressed)
	}
	if provider.calls() != 3 {
		t.Errorf("model calls = %d, want 3", provider.calls())
	}
}

func TestPromptTruncatesLongContent(t *testing.T) {
	item := &content.Item{
		SourceType: "web",
		Title:      "big dump",
		RawText:    strings.Repeat("x", 20000),
		URL:        "https://example.com/huge",
	}
	_, user := buildPrompt("solana", item, "Big Source", "news", 15000)
	if len(user) > 16000 {
		t.Errorf("prompt length = %d, content should be truncated", len(user))
	}
	if !strings.Contains(user, "Big Source") {
		t.Error("prompt should carry the source name")
	}
}
