package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/narradar/narradar/internal/scheduler"
	"github.com/narradar/narradar/internal/server"
	"github.com/narradar/narradar/internal/source"
	"github.com/narradar/narradar/internal/synthesizer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and background pipeline",
	Long: `Starts the HTTP API and the job scheduler. Fetching, extraction,
synthesis, idea backfill, and rescoring run on their configured cron
schedules; every job can also be triggered through the API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		provider, err := a.provider()
		if err != nil {
			return err
		}

		fetcher := a.fetcher()
		extract := a.extractor(provider)
		synth := a.synthesizer(provider)
		engine := a.engine()

		sched := scheduler.New(a.runs, a.log)
		jobs := []struct {
			name string
			spec string
			fn   scheduler.JobFunc
		}{
			{"fetch_web", a.cfg.Schedules.WebFetch, func(ctx context.Context) (any, error) {
				return fetcher.Run(ctx, source.TypeWeb)
			}},
			{"fetch_api", a.cfg.Schedules.SocialFetch, func(ctx context.Context) (any, error) {
				return fetcher.Run(ctx, source.TypeAPI)
			}},
			{"extraction", a.cfg.Schedules.Extraction, func(ctx context.Context) (any, error) {
				return extract.Run(ctx, 0, nil)
			}},
			{"synthesis", a.cfg.Schedules.Synthesis, func(ctx context.Context) (any, error) {
				stats, err := synth.Synthesize(ctx)
				if errors.Is(err, synthesizer.ErrEmptyBatch) {
					return map[string]string{"note": "no signals in window"}, nil
				}
				return stats, err
			}},
			{"idea_backfill", a.cfg.Schedules.IdeaBackfill, func(ctx context.Context) (any, error) {
				added, err := synth.BackfillIdeas(ctx)
				return map[string]int{"ideas_added": added}, err
			}},
			{"rescore", a.cfg.Schedules.Rescore, func(ctx context.Context) (any, error) {
				rescored, err := engine.RescoreAll(ctx)
				return map[string]int{"rescored": rescored}, err
			}},
		}
		for _, job := range jobs {
			if err := sched.Register(job.name, job.spec, job.fn); err != nil {
				return fmt.Errorf("registering job %s: %w", job.name, err)
			}
		}

		srv := server.New(a.cfg, server.Stores{
			Sources:    a.sources,
			Content:    a.content,
			Signals:    a.signals,
			Narratives: a.narratives,
			Runs:       a.runs,
		}, sched, a.log)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sched.Start()
		defer sched.Stop()

		return srv.ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
