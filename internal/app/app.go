// Package app wires configuration into the repositories, runner and services
// shared by the replenish CLI and the HTTP server.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/andresuchdata/autopo-replenishment/internal/api"
	"github.com/andresuchdata/autopo-replenishment/internal/cache"
	"github.com/andresuchdata/autopo-replenishment/internal/config"
	"github.com/andresuchdata/autopo-replenishment/internal/lock"
	"github.com/andresuchdata/autopo-replenishment/internal/metrics"
	"github.com/andresuchdata/autopo-replenishment/internal/pipeline"
	"github.com/andresuchdata/autopo-replenishment/internal/repository"
	"github.com/andresuchdata/autopo-replenishment/internal/repository/postgres"
	"github.com/andresuchdata/autopo-replenishment/internal/service"
	"github.com/andresuchdata/autopo-replenishment/internal/settings"
	"github.com/andresuchdata/autopo-replenishment/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type App struct {
	Config   *config.Config
	DB       *postgres.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Settings *settings.Store
	Cache    cache.RecommendationCache
	// Exports is nil unless EXPORT_ENABLED.
	Exports *storage.MinioClient
	Runner  *pipeline.Runner

	Recommendations repository.RecommendationRepository
	Alerts          repository.AlertRepository
	Runs            repository.RunRepository

	redis *redis.Client
}

// New connects to Postgres (and Redis or object storage when configured) and
// assembles the analysis runner.
func New(cfg *config.Config) (*App, error) {
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{
		Config:          cfg,
		DB:              db,
		Registry:        prometheus.NewRegistry(),
		Settings:        settings.NewStore(postgres.NewSettingsRepository(db)),
		Recommendations: postgres.NewRecommendationRepository(db),
		Alerts:          postgres.NewAlertRepository(db),
		Runs:            postgres.NewRunRepository(db),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	if cfg.Cache.Enabled || strings.EqualFold(cfg.Lock.Backend, "redis") {
		a.redis, err = cache.NewRedisClient(cfg.Cache)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Cache = cache.NewRecommendationCache(cfg.Cache, a.redis)

	locker, err := a.locker()
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := pipeline.Dependencies{
		Products:        postgres.NewProductRepository(db),
		Sales:           postgres.NewSalesRepository(db),
		Inventory:       postgres.NewInventoryRepository(db),
		Recommendations: a.Recommendations,
		Alerts:          a.Alerts,
		Runs:            a.Runs,
		Settings:        a.Settings,
		Locker:          locker,
		Cache:           a.Cache,
		Metrics:         a.Metrics,
		IsTransient:     postgres.IsTransient,
	}

	if cfg.Export.Enabled {
		a.Exports, err = storage.NewMinioClient(cfg.Export)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize export storage: %w", err)
		}
		deps.Exporter = storage.NewExporter(a.Exports)
	}

	a.Runner = pipeline.NewRunner(deps, pipeline.RunnerConfigFrom(cfg.Engine, cfg.Lock))
	return a, nil
}

func (a *App) locker() (lock.Locker, error) {
	switch strings.ToLower(a.Config.Lock.Backend) {
	case "", "postgres":
		return lock.NewPostgresLocker(a.DB.DB), nil
	case "redis":
		return lock.NewRedisLocker(a.redis), nil
	case "memory":
		log.Warn().Msg("using in-process run lock; concurrent instances are not excluded")
		return lock.NewMemoryLocker(), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", a.Config.Lock.Backend)
	}
}

// Services builds the HTTP-facing services.
func (a *App) Services() *api.Services {
	return &api.Services{
		RecommendationService: service.NewRecommendationService(a.Recommendations, a.Cache),
		AlertService:          service.NewAlertService(a.Alerts, a.Settings),
		RunService:            service.NewRunService(a.Runner, a.Runs),
	}
}

// HealthCheck pings the database and, when used, Redis.
func (a *App) HealthCheck(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
}
