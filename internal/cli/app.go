package cli

import (
	"fmt"
	"log/slog"

	"github.com/retrolens/retro-engine/internal/cache"
	"github.com/retrolens/retro-engine/internal/charts"
	"github.com/retrolens/retro-engine/internal/clients"
	"github.com/retrolens/retro-engine/internal/config"
	"github.com/retrolens/retro-engine/internal/engine"
	"github.com/retrolens/retro-engine/internal/narrative"
	"github.com/retrolens/retro-engine/internal/report"
	"github.com/retrolens/retro-engine/internal/services"
	"github.com/retrolens/retro-engine/internal/store"
	"github.com/retrolens/retro-engine/internal/utils"
)

// app bundles the wired components every subcommand needs. Callers must
// Close it to release the store and cache connections.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	cache   cache.Provider
	store   *store.Store
	service *services.RetroService
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	cacheProvider, err := cache.New(cfg.Cache)
	if err != nil {
		logger.Warn("cache unavailable, continuing without", slog.Any("error", err))
		cacheProvider = cache.NoopProvider{}
	}

	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		cacheProvider.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	gen, err := narrative.New(cfg.Narrative)
	if err != nil {
		logger.Warn("narrative generator unavailable, using fallback", slog.Any("error", err))
		gen = narrative.Fallback{}
	}

	assembler := report.NewAssembler(
		logger,
		engine.NewAnalyzer(logger, cfg.Analysis),
		engine.NewHypothesisEngine(logger, cfg.Analysis),
		engine.NewExperimentMapper(logger),
		charts.NewBuilder(logger),
		gen,
	)

	metricsClient := clients.NewMetricsClient(cfg.Clients.Metrics, logger)
	service := services.NewRetroService(logger, st, metricsClient, assembler, cfg.Analysis)

	return &app{
		cfg:     cfg,
		logger:  logger,
		cache:   cacheProvider,
		store:   st,
		service: service,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close", slog.Any("error", err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("cache close", slog.Any("error", err))
	}
}
