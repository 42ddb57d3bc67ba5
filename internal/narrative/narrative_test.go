package narrative

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/narradar/narradar/internal/db"
)

func setupStore(t *testing.T) (*Store, *db.DB) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database), database
}

// seedSignal inserts a source, content item, and signal chain so evidence
// links have something to point at.
func seedSignal(t *testing.T, database *db.DB, n int, novelty string) string {
	t.Helper()
	srcID := fmt.Sprintf("src-%d", n)
	itemID := fmt.Sprintf("item-%d", n)
	sigID := fmt.Sprintf("sig-%d", n)

	_, err := database.Exec(`
		INSERT INTO data_sources (id, name, url, source_type)
		VALUES (?, ?, ?, 'web')`,
		srcID, fmt.Sprintf("Source %d", n), fmt.Sprintf("https://example.com/%d", n))
	if err != nil {
		t.Fatalf("seeding source: %v", err)
	}
	_, err = database.Exec(`
		INSERT INTO content_items (id, source_id, source_type, raw_text, url, content_hash, status)
		VALUES (?, ?, 'web', 'body', ?, ?, 'completed')`,
		itemID, srcID, fmt.Sprintf("https://example.com/%d/post", n), fmt.Sprintf("hash-%d", n))
	if err != nil {
		t.Fatalf("seeding content item: %v", err)
	}
	_, err = database.Exec(`
		INSERT INTO signals (id, content_item_id, title, novelty)
		VALUES (?, ?, ?, ?)`,
		sigID, itemID, fmt.Sprintf("signal %d", n), novelty)
	if err != nil {
		t.Fatalf("seeding signal: %v", err)
	}
	return sigID
}

func TestTitleKey(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"DePIN Infrastructure Boom", "depin infrastructure boom"},
		{"  depin   infrastructure BOOM ", "depin infrastructure boom"},
		{"Restaking\tYield Wars", "restaking yield wars"},
	}
	for _, tc := range cases {
		if got := TitleKey(tc.in); got != tc.want {
			t.Errorf("TitleKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestApplyCreatesThenUpdates(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()
	sigA := seedSignal(t, database, 1, "high")
	sigB := seedSignal(t, database, 2, "medium")

	id1, created, err := store.Apply(ctx, &Narrative{
		Title:      "DePIN Infrastructure Boom",
		Summary:    "first pass summary",
		Confidence: ConfidenceMedium,
		Tags:       []string{"depin"},
	}, []EvidenceLink{{SignalID: sigA}}, []Idea{
		{Title: "hardware marketplace", WhyEcosystemFit: "cheap compute"},
	})
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if !created {
		t.Fatal("first apply should create the narrative")
	}

	// Same title with different case and spacing must hit the same row.
	id2, created, err := store.Apply(ctx, &Narrative{
		Title:      "  depin   infrastructure BOOM",
		Summary:    "refreshed summary",
		Confidence: ConfidenceHigh,
	}, []EvidenceLink{{SignalID: sigA}, {SignalID: sigB}}, nil)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if created {
		t.Fatal("second apply should update, not create")
	}
	if id1 != id2 {
		t.Fatalf("apply resolved different IDs: %s vs %s", id1, id2)
	}

	detail, err := store.Get(ctx, id1)
	if err != nil {
		t.Fatalf("fetching detail: %v", err)
	}
	if detail.Summary != "refreshed summary" {
		t.Errorf("summary = %q", detail.Summary)
	}
	if detail.Confidence != ConfidenceHigh {
		t.Errorf("confidence = %s", detail.Confidence)
	}
	// Evidence accumulates and deduplicates on (narrative, signal).
	if len(detail.Evidence) != 2 {
		t.Errorf("evidence links = %d, want 2", len(detail.Evidence))
	}
	// Ideas survive an apply that carries none.
	if len(detail.Ideas) != 1 {
		t.Errorf("ideas = %d, want 1", len(detail.Ideas))
	}
}

func TestApplyReplacesIdeasAndCaps(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()
	sig := seedSignal(t, database, 1, "high")

	ideas := make([]Idea, 7)
	for i := range ideas {
		ideas[i] = Idea{Title: fmt.Sprintf("idea %d", i)}
	}
	id, _, err := store.Apply(ctx, &Narrative{Title: "Mobile First Wallets"},
		[]EvidenceLink{{SignalID: sig}}, ideas)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	detail, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("fetching detail: %v", err)
	}
	if len(detail.Ideas) != MaxIdeas {
		t.Errorf("ideas = %d, want %d", len(detail.Ideas), MaxIdeas)
	}
}

func TestAddIdeasRespectsCap(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()
	sig := seedSignal(t, database, 1, "low")

	id, _, err := store.Apply(ctx, &Narrative{Title: "Onchain Order Books"},
		[]EvidenceLink{{SignalID: sig}},
		[]Idea{{Title: "existing idea"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	added, err := store.AddIdeas(ctx, id, []Idea{
		{Title: "a"}, {Title: "b"}, {Title: "c"}, {Title: "d"}, {Title: "e"},
	})
	if err != nil {
		t.Fatalf("adding ideas: %v", err)
	}
	if added != MaxIdeas-1 {
		t.Errorf("added = %d, want %d", added, MaxIdeas-1)
	}

	detail, _ := store.Get(ctx, id)
	if len(detail.Ideas) != MaxIdeas {
		t.Errorf("ideas = %d, want %d", len(detail.Ideas), MaxIdeas)
	}

	added, err = store.AddIdeas(ctx, id, []Idea{{Title: "overflow"}})
	if err != nil {
		t.Fatalf("adding over cap: %v", err)
	}
	if added != 0 {
		t.Errorf("added over cap = %d, want 0", added)
	}
}

func TestNeedingIdeas(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()
	sigA := seedSignal(t, database, 1, "high")
	sigB := seedSignal(t, database, 2, "high")

	sparse, _, err := store.Apply(ctx, &Narrative{Title: "Sparse Narrative"},
		[]EvidenceLink{{SignalID: sigA}},
		[]Idea{{Title: "only idea"}})
	if err != nil {
		t.Fatalf("apply sparse: %v", err)
	}
	_, _, err = store.Apply(ctx, &Narrative{Title: "Rich Narrative"},
		[]EvidenceLink{{SignalID: sigB}},
		[]Idea{{Title: "i1"}, {Title: "i2"}, {Title: "i3"}})
	if err != nil {
		t.Fatalf("apply rich: %v", err)
	}

	needing, err := store.NeedingIdeas(ctx, 3)
	if err != nil {
		t.Fatalf("querying needing ideas: %v", err)
	}
	if len(needing) != 1 || needing[0].ID != sparse {
		t.Errorf("needing = %+v, want only the sparse narrative", needing)
	}
}

func TestListRankedByVelocity(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()

	ids := make([]string, 3)
	for i := range ids {
		sig := seedSignal(t, database, i+1, "medium")
		id, _, err := store.Apply(ctx, &Narrative{Title: fmt.Sprintf("Narrative %d", i)},
			[]EvidenceLink{{SignalID: sig}}, nil)
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
		ids[i] = id
	}
	scores := []float64{12.5, 80.0, 45.1}
	for i, id := range ids {
		if err := store.UpdateScore(ctx, id, scores[i]); err != nil {
			t.Fatalf("scoring %d: %v", i, err)
		}
	}

	ranked, err := store.List(ctx, ListFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("narratives = %d, want 3", len(ranked))
	}
	if ranked[0].ID != ids[1] || ranked[1].ID != ids[2] || ranked[2].ID != ids[0] {
		t.Errorf("order = %v", []string{ranked[0].Title, ranked[1].Title, ranked[2].Title})
	}

	filtered, err := store.List(ctx, ListFilter{MinVelocity: 40})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("filtered = %d, want 2", len(filtered))
	}
}

func TestVelocityInputs(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()

	// Two signals from distinct sources, one from a repeat source.
	sigA := seedSignal(t, database, 1, "high")
	sigB := seedSignal(t, database, 2, "medium")
	_, err := database.Exec(`
		INSERT INTO content_items (id, source_id, source_type, raw_text, url, content_hash, status)
		VALUES ('item-1b', 'src-1', 'web', 'body', 'https://example.com/1/other', 'hash-1b', 'completed')`)
	if err != nil {
		t.Fatalf("seeding repeat item: %v", err)
	}
	_, err = database.Exec(`
		INSERT INTO signals (id, content_item_id, title, novelty)
		VALUES ('sig-1b', 'item-1b', 'repeat source signal', 'low')`)
	if err != nil {
		t.Fatalf("seeding repeat signal: %v", err)
	}

	id, _, err := store.Apply(ctx, &Narrative{Title: "Diverse Narrative"},
		[]EvidenceLink{{SignalID: sigA}, {SignalID: sigB}, {SignalID: "sig-1b"}}, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	in, err := store.Inputs(ctx, id, 14)
	if err != nil {
		t.Fatalf("aggregating inputs: %v", err)
	}
	if in.SignalCount != 3 {
		t.Errorf("signal count = %d, want 3", in.SignalCount)
	}
	if in.SourceDiversity != 2 {
		t.Errorf("source diversity = %d, want 2", in.SourceDiversity)
	}
	if len(in.NoveltyLevels) != 3 {
		t.Errorf("novelty levels = %v", in.NoveltyLevels)
	}
	if in.LastDetectedAt.IsZero() {
		t.Error("last detected should be set")
	}
}

func TestVelocityInputsExcludeOldSignals(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()
	sig := seedSignal(t, database, 1, "high")

	old := db.FormatTime(time.Now().AddDate(0, 0, -30))
	if _, err := database.Exec("UPDATE signals SET created_at = ? WHERE id = ?", old, sig); err != nil {
		t.Fatalf("backdating signal: %v", err)
	}

	id, _, err := store.Apply(ctx, &Narrative{Title: "Fading Narrative"},
		[]EvidenceLink{{SignalID: sig}}, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	in, err := store.Inputs(ctx, id, 14)
	if err != nil {
		t.Fatalf("aggregating inputs: %v", err)
	}
	if in.SignalCount != 0 {
		t.Errorf("signal count = %d, want 0 outside window", in.SignalCount)
	}
}

func TestDeactivateStaleAndReactivate(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()
	sig := seedSignal(t, database, 1, "medium")

	id, _, err := store.Apply(ctx, &Narrative{Title: "Quiet Narrative"},
		[]EvidenceLink{{SignalID: sig}}, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	stale := db.FormatTime(time.Now().AddDate(0, 0, -10))
	if _, err := database.Exec("UPDATE narratives SET last_detected_at = ? WHERE id = ?", stale, id); err != nil {
		t.Fatalf("backdating narrative: %v", err)
	}

	n, err := store.DeactivateStale(ctx, time.Now().AddDate(0, 0, -7))
	if err != nil {
		t.Fatalf("deactivating: %v", err)
	}
	if n != 1 {
		t.Fatalf("deactivated = %d, want 1", n)
	}
	detail, _ := store.Get(ctx, id)
	if detail.IsActive {
		t.Error("narrative should be inactive after staleness sweep")
	}

	// A fresh detection of the same title revives it.
	_, created, err := store.Apply(ctx, &Narrative{Title: "quiet narrative"}, nil, nil)
	if err != nil {
		t.Fatalf("reapply: %v", err)
	}
	if created {
		t.Fatal("reapply should reuse the existing row")
	}
	detail, _ = store.Get(ctx, id)
	if !detail.IsActive {
		t.Error("narrative should be active again after re-detection")
	}
}

func TestGetMissing(t *testing.T) {
	store, _ := setupStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
