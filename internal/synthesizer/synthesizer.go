// Package synthesizer runs the second analysis stage: turning the recent
// window of signals into cross-source narratives with attached ideas and
// evidence. The whole window goes to the model in one call; a malformed
// response aborts the run before any narrative is touched.
package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/narradar/narradar/internal/config"
	"github.com/narradar/narradar/internal/llm"
	"github.com/narradar/narradar/internal/narrative"
	"github.com/narradar/narradar/internal/signal"
	"github.com/narradar/narradar/internal/velocity"
)

// ErrEmptyBatch is returned when the signal window has nothing to synthesize.
var ErrEmptyBatch = errors.New("no signals in window")

// MinIdeas is the idea count below which a narrative is eligible for backfill.
const MinIdeas = 3

// Synthesizer drives synthesis, idea backfill, and the follow-up rescore.
type Synthesizer struct {
	cfg        *config.Config
	provider   llm.Provider
	signals    *signal.Store
	narratives *narrative.Store
	engine     *velocity.Engine
	log        *slog.Logger
}

// New creates a Synthesizer.
func New(cfg *config.Config, provider llm.Provider, signalStore *signal.Store, narrativeStore *narrative.Store, engine *velocity.Engine, log *slog.Logger) *Synthesizer {
	return &Synthesizer{
		cfg:        cfg,
		provider:   provider,
		signals:    signalStore,
		narratives: narrativeStore,
		engine:     engine,
		log:        log,
	}
}

// Stats summarizes one synthesis run.
type Stats struct {
	Signals    int  `json:"signals"`
	Candidates int  `json:"candidates"`
	Created    int  `json:"created"`
	Updated    int  `json:"updated"`
	Rejected   int  `json:"rejected"`
	Ideas      int  `json:"ideas"`
	Retried    bool `json:"retried"`
}

type synthesisResponse struct {
	Narratives []candidate `json:"narratives"`
}

type candidate struct {
	Title               string   `json:"title"`
	Summary             string   `json:"summary"`
	Confidence          string   `json:"confidence"`
	ConfidenceReasoning string   `json:"confidence_reasoning"`
	Tags                []string `json:"tags"`
	Evidence            []struct {
		SignalID string `json:"signal_id"`
		Quote    string `json:"quote"`
	} `json:"evidence"`
	Ideas []ideaCandidate `json:"ideas"`
}

type ideaCandidate struct {
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Problem              string   `json:"problem"`
	Solution             string   `json:"solution"`
	WhyEcosystemFit      string   `json:"why_ecosystem_fit"`
	ScalePotential       string   `json:"scale_potential"`
	MarketSignals        string   `json:"market_signals"`
	SupportingSignalRefs []string `json:"supporting_signal_refs"`
}

type ideaResponse struct {
	Ideas []ideaCandidate `json:"ideas"`
}

// Synthesize runs one full synthesis pass over the signal window: one model
// call (retried once with a firmer instruction if it yields nothing), per
// candidate validation, atomic upserts, idea backfill, and a rescore.
func (s *Synthesizer) Synthesize(ctx context.Context) (*Stats, error) {
	signals, err := s.signals.ListRecent(ctx, s.cfg.WindowDays)
	if err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, ErrEmptyBatch
	}

	existing, err := s.narratives.List(ctx, narrative.ListFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	stats := &Stats{Signals: len(signals)}

	candidates, err := s.complete(ctx, signals, existing, false)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		s.log.Warn("model returned no narratives, retrying once")
		stats.Retried = true
		candidates, err = s.complete(ctx, signals, existing, true)
		if err != nil {
			return nil, err
		}
	}
	stats.Candidates = len(candidates)

	known := make(map[string]bool, len(signals))
	for _, ws := range signals {
		known[ws.ID] = true
	}

	for _, c := range candidates {
		n, evidence, ideas, reason := validate(c, known)
		if reason != "" {
			stats.Rejected++
			s.log.Warn("rejecting candidate narrative", "title", c.Title, "reason", reason)
			continue
		}
		_, created, err := s.narratives.Apply(ctx, n, evidence, ideas)
		if err != nil {
			return stats, fmt.Errorf("applying narrative %q: %w", n.Title, err)
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
		stats.Ideas += len(ideas)
	}

	backfilled, err := s.BackfillIdeas(ctx)
	if err != nil {
		s.log.Error("idea backfill failed", "error", err)
	}
	stats.Ideas += backfilled

	if _, err := s.engine.RescoreAll(ctx); err != nil {
		return stats, fmt.Errorf("rescoring after synthesis: %w", err)
	}

	s.log.Info("synthesis run finished",
		"signals", stats.Signals, "candidates", stats.Candidates,
		"created", stats.Created, "updated", stats.Updated,
		"rejected", stats.Rejected, "ideas", stats.Ideas)
	return stats, nil
}

func (s *Synthesizer) complete(ctx context.Context, signals []signal.WindowSignal, existing []narrative.Narrative, retry bool) ([]candidate, error) {
	system, user := buildSynthesisPrompt(s.cfg.Ecosystem, s.cfg.WindowDays, signals, existing, retry)
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("completing synthesis: %w", err)
	}

	var parsed synthesisResponse
	if err := llm.DecodeJSON(resp.Content, &parsed); err != nil {
		return nil, fmt.Errorf("parsing synthesis response: %w", err)
	}
	return parsed.Narratives, nil
}

// validate checks one candidate and converts it to store types. Evidence
// referencing unknown signal IDs is dropped; a candidate left with no valid
// evidence, or missing its title or summary, is rejected with a reason.
func validate(c candidate, known map[string]bool) (*narrative.Narrative, []narrative.EvidenceLink, []narrative.Idea, string) {
	if c.Title == "" {
		return nil, nil, nil, "missing title"
	}
	if c.Summary == "" {
		return nil, nil, nil, "missing summary"
	}

	var evidence []narrative.EvidenceLink
	for _, ev := range c.Evidence {
		if !known[ev.SignalID] {
			continue
		}
		evidence = append(evidence, narrative.EvidenceLink{
			SignalID:     ev.SignalID,
			EvidenceText: ev.Quote,
		})
	}
	if len(evidence) == 0 {
		return nil, nil, nil, "no valid evidence references"
	}

	n := &narrative.Narrative{
		Title:               c.Title,
		Summary:             c.Summary,
		Confidence:          c.Confidence,
		ConfidenceReasoning: c.ConfidenceReasoning,
		Tags:                c.Tags,
	}

	ideas := make([]narrative.Idea, 0, len(c.Ideas))
	for _, ic := range c.Ideas {
		if ic.Title == "" {
			continue
		}
		refs := make([]string, 0, len(ic.SupportingSignalRefs))
		for _, ref := range ic.SupportingSignalRefs {
			if known[ref] {
				refs = append(refs, ref)
			}
		}
		ideas = append(ideas, narrative.Idea{
			Title:                ic.Title,
			Description:          ic.Description,
			Problem:              ic.Problem,
			Solution:             ic.Solution,
			WhyEcosystemFit:      ic.WhyEcosystemFit,
			ScalePotential:       ic.ScalePotential,
			MarketSignals:        ic.MarketSignals,
			SupportingSignalRefs: refs,
		})
	}
	return n, evidence, ideas, ""
}

// BackfillIdeas tops up active narratives holding fewer than MinIdeas ideas.
// Each narrative gets its own model call; one failure does not stop the rest.
func (s *Synthesizer) BackfillIdeas(ctx context.Context) (int, error) {
	sparse, err := s.narratives.NeedingIdeas(ctx, MinIdeas)
	if err != nil {
		return 0, err
	}

	var total int
	for _, n := range sparse {
		added, err := s.backfillOne(ctx, n.ID)
		if err != nil {
			s.log.Warn("backfilling ideas failed", "narrative", n.Title, "error", err)
			continue
		}
		total += added
	}
	return total, nil
}

func (s *Synthesizer) backfillOne(ctx context.Context, narrativeID string) (int, error) {
	detail, err := s.narratives.Get(ctx, narrativeID)
	if err != nil {
		return 0, err
	}
	want := MinIdeas - len(detail.Ideas)
	if want <= 0 {
		return 0, nil
	}

	titles := make(map[string]string, len(detail.Evidence))
	for _, link := range detail.Evidence {
		if sig, err := s.signals.Get(ctx, link.SignalID); err == nil {
			titles[link.SignalID] = sig.Title
		}
	}

	system, user := buildIdeaPrompt(s.cfg.Ecosystem, detail, titles, want)
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: user},
		},
		JSONMode: true,
	})
	if err != nil {
		return 0, fmt.Errorf("completing idea backfill: %w", err)
	}

	var parsed ideaResponse
	if err := llm.DecodeJSON(resp.Content, &parsed); err != nil {
		return 0, fmt.Errorf("parsing idea response: %w", err)
	}

	ideas := make([]narrative.Idea, 0, len(parsed.Ideas))
	for _, ic := range parsed.Ideas {
		if ic.Title == "" {
			continue
		}
		ideas = append(ideas, narrative.Idea{
			Title:                ic.Title,
			Description:          ic.Description,
			Problem:              ic.Problem,
			Solution:             ic.Solution,
			WhyEcosystemFit:      ic.WhyEcosystemFit,
			ScalePotential:       ic.ScalePotential,
			MarketSignals:        ic.MarketSignals,
			SupportingSignalRefs: ic.SupportingSignalRefs,
		})
	}
	return s.narratives.AddIdeas(ctx, narrativeID, ideas)
}
