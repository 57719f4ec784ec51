// Package main provides the entrypoint for the Alfred commute worker.
//
// The worker receives {user, lat, long} triggers from a Pub/Sub
// subscription and publishes commute summaries to a result topic. It also
// serves /health for the container runtime.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/alfredhome/alfred/internal/api/handler"
	"github.com/alfredhome/alfred/internal/app"
	"github.com/alfredhome/alfred/internal/config"
	"github.com/alfredhome/alfred/internal/telemetry"
	"github.com/alfredhome/alfred/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "alfred-worker"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("worker failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().Str("build_time", BuildTime).Msg("starting Alfred commute worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Environment,
		Enabled:        cfg.Telemetry.Enabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer services.Close()

	ps, err := worker.NewPubSub(ctx, worker.PubSubConfig{
		ProjectID:    cfg.PubSub.ProjectID,
		Subscription: cfg.PubSub.Subscription,
		ResultTopic:  cfg.PubSub.ResultTopic,
		Logger:       log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := ps.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub client")
		}
	}()

	processor, err := worker.NewProcessor(worker.ProcessorConfig{
		Planner:       services.Planner,
		Publisher:     ps,
		MeterProvider: tp.MeterProvider(),
		Logger:        log,
	})
	if err != nil {
		return err
	}

	ops := handler.NewOpsHandler(handler.OpsConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Registry:  services.Registry,
		Checks:    services.Checks,
	})
	r := chi.NewRouter()
	r.Get("/health", ops.HealthCheck)
	r.Get("/ready", ops.ReadinessCheck)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
			stop()
		}
	}()

	runErr := ps.Run(ctx, processor)
	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("receive triggers: %w", runErr)
	}
	log.Info().Msg("worker stopped")
	return nil
}
