package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/forecast-service/internal/cache"
	"github.com/SAP-F-2025/forecast-service/internal/config"
	"github.com/SAP-F-2025/forecast-service/internal/events"
	"github.com/SAP-F-2025/forecast-service/internal/insights"
	"github.com/SAP-F-2025/forecast-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/forecast-service/internal/services"
	"github.com/SAP-F-2025/forecast-service/pkg"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	cache     cache.CacheService
	publisher events.EventPublisher
	transport *config.JobTransport

	analysis   services.AnalysisService
	results    services.ResultsService
	evaluation services.EvaluationService

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, func() error { return pkg.CloseDatabase(db) })

	a.cache = a.newCache(ctx)

	publisher, err := cfg.Events.CreateEventPublisher(logger)
	if err != nil {
		logger.Error("Failed to create event publisher, falling back to mock", "error", err)
		publisher = events.NewMockEventPublisher(logger)
	}
	a.publisher = publisher
	a.closers = append(a.closers, publisher.Close)

	transport, err := cfg.Events.CreateJobTransport(logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create job transport: %w", err)
	}
	a.transport = transport
	a.closers = append(a.closers, transport.Close)

	var narrator insights.Narrator
	if cfg.Gemini.Enabled() {
		n, err := insights.NewGeminiNarrator(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
		if err != nil {
			logger.Warn("AI narrative disabled", "error", err)
		} else {
			narrator = n
		}
	}

	repo := postgres.NewRepository(db)
	a.analysis = services.NewAnalysisService(services.AnalysisServiceConfig{
		Repo:      repo,
		Jobs:      events.NewWatermillJobQueue(transport.Publisher, cfg.Events.AnalysisJobTopic, logger),
		Publisher: publisher,
		Cache:     a.cache,
		Narrator:  narrator,
		Forecast:  cfg.Forecast,
		Logger:    logger,
	})
	a.results = services.NewResultsService(repo, a.cache, cfg.CacheTTL, logger)
	a.evaluation = services.NewEvaluationService(repo, a.cache, nil, cfg.CacheTTL, logger)
	return a, nil
}

// newCache uses redis when REDIS_URL is set and reachable, otherwise an in-process cache.
func (a *app) newCache(ctx context.Context) cache.CacheService {
	if a.cfg.RedisURL != "" {
		client, err := pkg.NewRedisClient(ctx, a.cfg)
		if err == nil {
			a.closers = append(a.closers, client.Close)
			a.logger.Info("Using redis cache")
			return cache.NewRedisCache(client, a.logger)
		}
		a.logger.Warn("Redis unavailable, using in-process cache", "error", err)
	}
	return cache.NewMemoryCache(a.cfg.CacheTTL, 2*a.cfg.CacheTTL)
}

func (a *app) newWorker() (*events.Worker, error) {
	return events.NewWorker(events.WorkerConfig{
		Topic:      a.cfg.Events.AnalysisJobTopic,
		Subscriber: a.transport.Subscriber,
		Processor:  a.analysis,
		Logger:     a.logger,
	})
}

// Close releases resources in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

const shutdownTimeout = 15 * time.Second
