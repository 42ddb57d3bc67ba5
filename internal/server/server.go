// Package server exposes the read API and job controls over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/narradar/narradar/internal/config"
	"github.com/narradar/narradar/internal/content"
	"github.com/narradar/narradar/internal/narrative"
	"github.com/narradar/narradar/internal/runlog"
	"github.com/narradar/narradar/internal/scheduler"
	"github.com/narradar/narradar/internal/signal"
	"github.com/narradar/narradar/internal/source"
)

// Stores bundles the feature stores the API reads from.
type Stores struct {
	Sources    *source.Store
	Content    *content.Store
	Signals    *signal.Store
	Narratives *narrative.Store
	Runs       *runlog.Store
}

// Server is the narradar HTTP server.
type Server struct {
	cfg    *config.Config
	stores Stores
	sched  *scheduler.Scheduler
	log    *slog.Logger
	http   *http.Server
}

// New builds a Server with its routes mounted. sched may be nil when jobs
// are driven from the CLI only.
func New(cfg *config.Config, stores Stores, sched *scheduler.Scheduler, log *slog.Logger) *Server {
	s := &Server{cfg: cfg, stores: stores, sched: sched, log: log}
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Router assembles the chi router. Exposed separately so tests can drive
// the handler without binding a port.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	source.RegisterRoutes(r, s.stores.Sources)
	content.RegisterRoutes(r, s.stores.Content)
	signal.RegisterRoutes(r, s.stores.Signals)
	narrative.RegisterRoutes(r, s.stores.Narratives)

	r.Get("/api/stats", s.handleStats)
	r.Get("/api/jobs", s.handleJobs)
	r.Get("/api/jobs/runs", s.handleJobRuns)
	r.Post("/api/jobs/{name}/run", s.handleRunJob)

	return r
}

// ListenAndServe blocks until the context is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// statsResponse is the dashboard snapshot.
type statsResponse struct {
	Ecosystem        string                 `json:"ecosystem"`
	Content          map[content.Status]int `json:"content"`
	RecentSignals    int                    `json:"recent_signals"`
	ActiveNarratives int                    `json:"active_narratives"`
	TotalNarratives  int                    `json:"total_narratives"`
	TopVelocity      float64                `json:"top_velocity"`
}

func (s *Server) handleStats(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	counts, err := s.stores.Content.CountByStatus(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	recent, err := s.stores.Signals.CountRecent(ctx, s.cfg.WindowDays)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	all, err := s.stores.Narratives.List(ctx, narrative.ListFilter{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := statsResponse{
		Ecosystem:       s.cfg.Ecosystem,
		Content:         counts,
		RecentSignals:   recent,
		TotalNarratives: len(all),
	}
	for _, n := range all {
		if n.IsActive {
			resp.ActiveNarratives++
		}
		if n.VelocityScore > resp.TopVelocity {
			resp.TopVelocity = n.VelocityScore
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	if s.sched == nil {
		writeJSON(w, http.StatusOK, []scheduler.Status{})
		return
	}
	writeJSON(w, http.StatusOK, s.sched.Statuses())
}

func (s *Server) handleJobRuns(w http.ResponseWriter, req *http.Request) {
	runs, err := s.stores.Runs.List(req.Context(), req.URL.Query().Get("job"), 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []runlog.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunJob(w http.ResponseWriter, req *http.Request) {
	if s.sched == nil {
		http.Error(w, "scheduler not running", http.StatusServiceUnavailable)
		return
	}
	name := chi.URLParam(req, "name")
	err := s.sched.RunNow(req.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "completed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
