// Package velocity scores narrative momentum and drives the staleness
// lifecycle. Scoring is a pure function of persisted data and never calls
// the language model, so rescoring can run after every synthesis and on its
// own schedule without cost.
package velocity

import (
	"context"
	"log/slog"
	"time"

	"github.com/narradar/narradar/internal/narrative"
	"github.com/narradar/narradar/internal/signal"
)

// Caps keep a single prolific narrative from drowning out the rest.
const (
	maxSignalCount     = 50
	maxSourceDiversity = 10
)

// Weights of the four scoring terms.
const (
	weightSignals   = 0.4
	weightDiversity = 0.3
	weightRecency   = 0.2
	weightNovelty   = 0.1
)

// Score computes the velocity of one narrative from its aggregates.
func Score(in narrative.VelocityInputs, dailyDecayRate float64, now time.Time) float64 {
	signals := min(in.SignalCount, maxSignalCount)
	diversity := min(in.SourceDiversity, maxSourceDiversity)

	return weightSignals*float64(signals) +
		weightDiversity*float64(diversity) +
		weightRecency*RecencyFactor(in.LastDetectedAt, dailyDecayRate, now) +
		weightNovelty*NoveltyAvg(in.NoveltyLevels)
}

// RecencyFactor decays from 1.0 by dailyDecayRate for each day since the
// narrative was last detected, floored at zero.
func RecencyFactor(lastDetected time.Time, dailyDecayRate float64, now time.Time) float64 {
	if lastDetected.IsZero() || !lastDetected.Before(now) {
		return 1.0
	}
	days := now.Sub(lastDetected).Hours() / 24
	factor := 1.0 - days*dailyDecayRate
	if factor < 0 {
		return 0
	}
	return factor
}

// NoveltyAvg is the mean novelty weight over the linked signals. Zero when
// there are none.
func NoveltyAvg(levels []string) float64 {
	if len(levels) == 0 {
		return 0
	}
	var sum float64
	for _, level := range levels {
		sum += signal.NoveltyWeight(level)
	}
	return sum / float64(len(levels))
}

// Engine rescoring and lifecycle sweeps over the narrative store.
type Engine struct {
	narratives     *narrative.Store
	dailyDecayRate float64
	staleness      time.Duration
	log            *slog.Logger
}

// NewEngine creates an Engine with the configured decay rate and staleness
// threshold.
func NewEngine(narratives *narrative.Store, dailyDecayRate float64, staleness time.Duration, log *slog.Logger) *Engine {
	return &Engine{
		narratives:     narratives,
		dailyDecayRate: dailyDecayRate,
		staleness:      staleness,
		log:            log,
	}
}

// RescoreAll recomputes the velocity of every narrative, then deactivates
// the stale ones. Safe to run repeatedly.
func (e *Engine) RescoreAll(ctx context.Context) (int, error) {
	narratives, err := e.narratives.All(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	var rescored int
	for _, n := range narratives {
		in, err := e.narratives.Inputs(ctx, n.ID, 0)
		if err != nil {
			return rescored, err
		}
		score := Score(*in, e.dailyDecayRate, now)
		if err := e.narratives.UpdateScore(ctx, n.ID, score); err != nil {
			return rescored, err
		}
		rescored++
	}

	deactivated, err := e.narratives.DeactivateStale(ctx, now.Add(-e.staleness))
	if err != nil {
		return rescored, err
	}
	e.log.Info("rescore complete", "narratives", rescored, "deactivated", deactivated)
	return rescored, nil
}
