package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/pick-research/internal/catalog"
	"github.com/stitts-dev/pick-research/internal/llm"
	"github.com/stitts-dev/pick-research/internal/persistence"
	"github.com/stitts-dev/pick-research/internal/pipeline"
	"github.com/stitts-dev/pick-research/internal/services"
	"github.com/stitts-dev/pick-research/internal/tools"
	"github.com/stitts-dev/pick-research/pkg/config"
	"github.com/stitts-dev/pick-research/pkg/database"
)

// App holds the long-lived dependencies shared by the server and the CLI.
type App struct {
	Config     *config.Config
	DB         *database.DB
	Cache      *services.CacheService // nil when Redis is unreachable
	Tools      *tools.Client
	Store      *persistence.Gateway
	Runner     *pipeline.Runner
	Generators map[string]config.GeneratorConfig
	Logger     *logrus.Logger
}

// New validates configuration and connects every dependency. Configuration
// problems come back as *config.SetupError.
func New(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	generators, err := config.LoadGenerators(cfg.GeneratorsFile)
	if err != nil {
		return nil, &config.SetupError{Field: "GENERATORS_FILE", Reason: err.Error()}
	}

	completer, err := llm.NewCompleter(cfg, logger)
	if err != nil {
		return nil, err
	}

	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{
		Config:     cfg,
		DB:         db,
		Generators: generators,
		Logger:     logger,
	}

	// Redis only backs the tool answer cache and run locks
	var answers tools.AnswerCache
	cache, err := services.NewCacheService(cfg.RedisURL, logger)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, running without tool cache and run locks")
	} else {
		a.Cache = cache
		answers = cache
	}

	a.Tools = tools.NewClient(cfg, answers, logger)
	a.Store = persistence.NewGateway(db.DB, logger)

	cat := catalog.New(catalog.NewGormStore(db.DB), cfg.Location(), logger)
	sessions := func() tools.Gateway { return a.Tools.Session() }
	a.Runner = pipeline.NewRunner(cfg, cat, sessions, completer, a.Store, generators, logger)

	return a, nil
}

// Locker returns the run locker, or nil when Redis is unavailable.
func (a *App) Locker() services.RunLocker {
	if a.Cache == nil {
		return nil
	}
	return a.Cache
}

// Checks returns the readiness probes for the connected dependencies.
func (a *App) Checks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"database": a.DB.HealthCheck,
		"tools": func(context.Context) error {
			if !a.Tools.IsHealthy() {
				return errors.New("research tool circuit open")
			}
			return nil
		},
	}
	if a.Cache != nil {
		checks["cache"] = a.Cache.HealthCheck
	}
	return checks
}

// Close releases the database and cache connections.
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.WithError(err).Warn("Failed to close cache")
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.WithError(err).Warn("Failed to close database")
	}
}
