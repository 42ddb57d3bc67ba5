package cmd

import (
	"log/slog"
	"path/filepath"

	"github.com/narradar/narradar/internal/config"
	"github.com/narradar/narradar/internal/content"
	"github.com/narradar/narradar/internal/db"
	"github.com/narradar/narradar/internal/extractor"
	"github.com/narradar/narradar/internal/fetch"
	"github.com/narradar/narradar/internal/llm"
	"github.com/narradar/narradar/internal/logging"
	"github.com/narradar/narradar/internal/narrative"
	"github.com/narradar/narradar/internal/runlog"
	"github.com/narradar/narradar/internal/signal"
	"github.com/narradar/narradar/internal/source"
	"github.com/narradar/narradar/internal/synthesizer"
	"github.com/narradar/narradar/internal/velocity"
)

// app bundles the config, database, and stores the commands operate on.
type app struct {
	cfg *config.Config
	db  *db.DB
	log *slog.Logger

	sources    *source.Store
	content    *content.Store
	signals    *signal.Store
	narratives *narrative.Store
	runs       *runlog.Store
}

// newApp loads configuration, sets up logging, and opens the database.
func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log := slog.Default()

	database, err := db.Open(filepath.Join(cfg.DataDir, "narradar.db"))
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:        cfg,
		db:         database,
		log:        log,
		sources:    source.NewStore(database),
		content:    content.NewStore(database),
		signals:    signal.NewStore(database),
		narratives: narrative.NewStore(database),
		runs:       runlog.NewStore(database),
	}, nil
}

func (a *app) close() {
	a.db.Close()
}

// fetcher builds the harvest pipeline with the standard adapters.
func (a *app) fetcher() *fetch.Fetcher {
	f := fetch.New(a.cfg, a.sources, a.content, a.log)
	f.Register(fetch.NewWebAdapter())
	f.Register(fetch.NewAPIAdapter())
	return f
}

// provider builds the configured LLM provider. It fails when the relevant
// API key is missing, so commands that never call the model skip it.
func (a *app) provider() (llm.Provider, error) {
	return llm.NewProvider(a.cfg)
}

func (a *app) extractor(provider llm.Provider) *extractor.Extractor {
	return extractor.New(a.cfg, provider, a.content, a.signals, a.sources, a.log)
}

func (a *app) engine() *velocity.Engine {
	return velocity.NewEngine(a.narratives, a.cfg.DailyDecayRate, a.cfg.StalenessThreshold(), a.log)
}

func (a *app) synthesizer(provider llm.Provider) *synthesizer.Synthesizer {
	return synthesizer.New(a.cfg, provider, a.signals, a.narratives, a.engine(), a.log)
}
