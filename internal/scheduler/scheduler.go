// Package scheduler runs the pipeline jobs on cron schedules. Each job
// class is single-flight: a scheduled fire while a previous run is still
// active is skipped, not queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/narradar/narradar/internal/runlog"
)

// ErrUnknownJob is returned when a trigger names a job that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// ErrAlreadyRunning is returned by RunNow when the job is mid-flight.
var ErrAlreadyRunning = errors.New("job already running")

// JobFunc is one schedulable unit of work. The returned value is recorded
// as the run summary.
type JobFunc func(ctx context.Context) (any, error)

type jobState struct {
	name    string
	spec    string
	fn      JobFunc
	running atomic.Bool

	mu         sync.Mutex
	lastRun    time.Time
	lastStatus string
	lastError  string
}

// Status is a point-in-time view of one registered job.
type Status struct {
	Name       string    `json:"name"`
	Spec       string    `json:"spec"`
	Running    bool      `json:"running"`
	LastRun    time.Time `json:"last_run,omitzero"`
	LastStatus string    `json:"last_status,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Scheduler wraps a UTC cron runner with single-flight jobs, run recording,
// and manual triggers.
type Scheduler struct {
	cron *cron.Cron
	runs *runlog.Store
	log  *slog.Logger

	mu   sync.Mutex
	jobs map[string]*jobState
}

// New creates a Scheduler. runs may be nil to disable persistence.
func New(runs *runlog.Store, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(time.UTC)),
		runs: runs,
		log:  log,
		jobs: make(map[string]*jobState),
	}
}

// Register adds a job under the given cron spec. An empty spec registers
// the job for manual triggering only.
func (s *Scheduler) Register(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q registered twice", name)
	}

	state := &jobState{name: name, spec: spec, fn: fn}
	if spec != "" {
		_, err := s.cron.AddFunc(spec, func() {
			s.execute(context.Background(), state, true)
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
		}
	}
	s.jobs[name] = state
	return nil
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop halts scheduling and waits for in-flight cron-fired jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow triggers one job immediately, bypassing its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	state, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !state.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	s.run(ctx, state)
	return nil
}

// Statuses reports every registered job.
func (s *Scheduler) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.jobs))
	for _, state := range s.jobs {
		state.mu.Lock()
		out = append(out, Status{
			Name:       state.name,
			Spec:       state.spec,
			Running:    state.running.Load(),
			LastRun:    state.lastRun,
			LastStatus: state.lastStatus,
			LastError:  state.lastError,
		})
		state.mu.Unlock()
	}
	return out
}

// execute is the cron entry point: it takes the single-flight slot or
// records a skip.
func (s *Scheduler) execute(ctx context.Context, state *jobState, scheduled bool) {
	if !state.running.CompareAndSwap(false, true) {
		s.log.Warn("skipping job, previous run still active", "job", state.name)
		if scheduled && s.runs != nil {
			now := time.Now()
			if err := s.runs.Record(ctx, state.name, runlog.StatusSkipped, now, now, nil, nil); err != nil {
				s.log.Error("recording skipped run", "job", state.name, "error", err)
			}
		}
		return
	}
	s.run(ctx, state)
}

// run executes the job body. The caller must already hold the running flag.
func (s *Scheduler) run(ctx context.Context, state *jobState) {
	defer state.running.Store(false)

	started := time.Now()
	s.log.Info("job started", "job", state.name)
	summary, err := state.fn(ctx)
	finished := time.Now()

	status := runlog.StatusOK
	if err != nil {
		status = runlog.StatusFailed
		s.log.Error("job failed", "job", state.name, "duration", finished.Sub(started), "error", err)
	} else {
		s.log.Info("job finished", "job", state.name, "duration", finished.Sub(started))
	}

	state.mu.Lock()
	state.lastRun = started
	state.lastStatus = status
	state.lastError = ""
	if err != nil {
		state.lastError = err.Error()
	}
	state.mu.Unlock()

	if s.runs != nil {
		if recErr := s.runs.Record(ctx, state.name, status, started, finished, summary, err); recErr != nil {
			s.log.Error("recording job run", "job", state.name, "error", recErr)
		}
	}
}
