package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/narradar/narradar/internal/config"
	"github.com/narradar/narradar/internal/content"
	"github.com/narradar/narradar/internal/db"
	"github.com/narradar/narradar/internal/narrative"
	"github.com/narradar/narradar/internal/runlog"
	"github.com/narradar/narradar/internal/scheduler"
	"github.com/narradar/narradar/internal/signal"
	"github.com/narradar/narradar/internal/source"
)

func setup(t *testing.T) (*Server, *db.DB, *scheduler.Scheduler) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	stores := Stores{
		Sources:    source.NewStore(database),
		Content:    content.NewStore(database),
		Signals:    signal.NewStore(database),
		Narratives: narrative.NewStore(database),
		Runs:       runlog.NewStore(database),
	}
	sched := scheduler.New(stores.Runs, log)
	return New(config.DefaultConfig(), stores, sched, log), database, sched
}

func get(t *testing.T, handler http.Handler, path string, into any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if into != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
			t.Fatalf("decoding %s response: %v", path, err)
		}
	}
	return rec.Code
}

func TestHealthz(t *testing.T) {
	s, _, _ := setup(t)
	var body map[string]string
	if code := get(t, s.Router(), "/healthz", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestStats(t *testing.T) {
	s, database, _ := setup(t)

	_, err := database.Exec(`
		INSERT INTO data_sources (id, name, url, source_type) VALUES ('src-1', 'S', 'https://example.com', 'web');
		INSERT INTO content_items (id, source_id, source_type, raw_text, url, content_hash, status)
		VALUES ('item-1', 'src-1', 'web', 'body', 'https://example.com/p', 'h1', 'completed');
		INSERT INTO signals (id, content_item_id, title) VALUES ('sig-1', 'item-1', 's');
		INSERT INTO narratives (id, title, title_key, velocity_score, is_active)
		VALUES ('n-1', 'Theme', 'theme', 42.5, 1);`)
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}

	var stats struct {
		Ecosystem        string         `json:"ecosystem"`
		Content          map[string]int `json:"content"`
		RecentSignals    int            `json:"recent_signals"`
		ActiveNarratives int            `json:"active_narratives"`
		TopVelocity      float64        `json:"top_velocity"`
	}
	if code := get(t, s.Router(), "/api/stats", &stats); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if stats.Content["completed"] != 1 {
		t.Errorf("content counts = %v", stats.Content)
	}
	if stats.RecentSignals != 1 || stats.ActiveNarratives != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TopVelocity != 42.5 {
		t.Errorf("top velocity = %f", stats.TopVelocity)
	}
}

func TestNarrativeRoutes(t *testing.T) {
	s, database, _ := setup(t)
	_, err := database.Exec(`
		INSERT INTO narratives (id, title, title_key, velocity_score, is_active)
		VALUES ('n-1', 'Active Theme', 'active theme', 10, 1),
		       ('n-2', 'Dormant Theme', 'dormant theme', 90, 0);`)
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}

	handler := s.Router()

	var active []map[string]any
	if code := get(t, handler, "/api/narratives", &active); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(active) != 1 {
		t.Fatalf("active narratives = %d, want 1", len(active))
	}

	var all []map[string]any
	get(t, handler, "/api/narratives?all=true", &all)
	if len(all) != 2 {
		t.Fatalf("all narratives = %d, want 2", len(all))
	}
	// Ranked by velocity regardless of activity.
	if all[0]["title"] != "Dormant Theme" {
		t.Errorf("order = %v", all)
	}

	if code := get(t, handler, "/api/narratives/n-1", nil); code != http.StatusOK {
		t.Errorf("detail status = %d", code)
	}
	if code := get(t, handler, "/api/narratives/missing", nil); code != http.StatusNotFound {
		t.Errorf("missing detail status = %d", code)
	}
}

func TestJobEndpoints(t *testing.T) {
	s, _, sched := setup(t)

	var ran int
	if err := sched.Register("extraction", "", func(context.Context) (any, error) {
		ran++
		return nil, nil
	}); err != nil {
		t.Fatalf("registering: %v", err)
	}

	handler := s.Router()

	var jobs []map[string]any
	if code := get(t, handler, "/api/jobs", &jobs); code != http.StatusOK {
		t.Fatalf("jobs status = %d", code)
	}
	if len(jobs) != 1 || jobs[0]["name"] != "extraction" {
		t.Errorf("jobs = %v", jobs)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/extraction/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("trigger status = %d: %s", rec.Code, rec.Body.String())
	}
	if ran != 1 {
		t.Errorf("job ran %d times, want 1", ran)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/jobs/nope/run", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d", rec.Code)
	}

	var runs []map[string]any
	if code := get(t, handler, "/api/jobs/runs", &runs); code != http.StatusOK {
		t.Fatalf("runs status = %d", code)
	}
	if len(runs) != 1 {
		t.Errorf("recorded runs = %d, want 1", len(runs))
	}
}
