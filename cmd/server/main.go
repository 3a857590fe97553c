package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/autopo-replenishment/internal/api"
	"github.com/andresuchdata/autopo-replenishment/internal/app"
	"github.com/andresuchdata/autopo-replenishment/internal/config"
	"github.com/andresuchdata/autopo-replenishment/internal/pipeline"
	"github.com/andresuchdata/autopo-replenishment/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	application, err := app.New(cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedulerDone := make(chan struct{})
	if cfg.Scheduler.Enabled {
		scheduler, err := pipeline.NewScheduler(application.Runner, cfg.Scheduler)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Invalid scheduler configuration")
		}
		go func() {
			defer close(schedulerDone)
			scheduler.Start(ctx)
		}()
	} else {
		close(schedulerDone)
	}

	router := api.NewRouter(application.Services(), api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        application.Metrics,
		Gatherer:       application.Registry,
		HealthCheck:    application.HealthCheck,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error().Err(err).Msg("Failed to start server")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// A scheduled run stops at its next batch boundary.
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Log.Warn().Msg("Scheduled run still in progress at shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
