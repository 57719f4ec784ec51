// Package app wires configuration into the services shared by the API
// server and the commute worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/alfredhome/alfred/internal/api/handler"
	"github.com/alfredhome/alfred/internal/commute"
	"github.com/alfredhome/alfred/internal/config"
	"github.com/alfredhome/alfred/internal/database"
	"github.com/alfredhome/alfred/internal/geofence"
	"github.com/alfredhome/alfred/internal/provider/resilience"
	"github.com/alfredhome/alfred/internal/transit"
	"github.com/alfredhome/alfred/internal/transit/tfl"
	"github.com/alfredhome/alfred/internal/transit/transportapi"
)

// App holds the wired services.
type App struct {
	Registry *resilience.Registry
	Travel   *transit.Service
	Planner  *commute.Planner

	// Checks back the readiness endpoint.
	Checks map[string]handler.Check

	pool *pgxpool.Pool
}

// New builds the upstream clients, the transit service and the commute
// planner. Plans come from PostgreSQL when the database is enabled and from
// the configuration otherwise.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	metrics, err := resilience.NewProviderMetrics()
	if err != nil {
		return nil, fmt.Errorf("provider metrics: %w", err)
	}

	registry := resilience.NewRegistry()
	tflClient := tfl.NewClient(tfl.ClientConfig{
		APIKey:     cfg.TfL.APIKey,
		BaseURL:    cfg.TfL.BaseURL,
		Location:   loc,
		HTTPClient: upstreamClient(tfl.ProviderName, cfg.Upstream, registry, metrics, log),
		Logger:     log,
	})
	railClient := transportapi.NewClient(transportapi.ClientConfig{
		AppID:      cfg.TransportAPI.AppID,
		AppKey:     cfg.TransportAPI.AppKey,
		BaseURL:    cfg.TransportAPI.BaseURL,
		HTTPClient: upstreamClient(transportapi.ProviderName, cfg.Upstream, registry, metrics, log),
		Logger:     log,
	})
	if cfg.TransportAPI.AppID == "" || cfg.TransportAPI.AppKey == "" {
		log.Warn().Msg("TransportAPI credentials not set, train legs will fail")
	}

	travel := transit.NewService(transit.ServiceConfig{
		Lines:       tflClient,
		Rail:        railClient,
		BusRoutes:   cfg.BusRoutes,
		TrainRoutes: cfg.TrainRoutes,
		Location:    loc,
		Logger:      log,
	})

	a := &App{
		Registry: registry,
		Travel:   travel,
		Checks:   map[string]handler.Check{},
	}

	repo, err := a.repository(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a.Planner = commute.NewPlanner(commute.PlannerConfig{
		Repository: repo,
		Legs:       travel,
		Locator:    geofence.NewEvaluator(cfg.Geofences),
		Logger:     log,
	})
	return a, nil
}

func (a *App) repository(ctx context.Context, cfg *config.Config, log zerolog.Logger) (commute.Repository, error) {
	if !cfg.Database.Enabled {
		log.Info().Int("users", len(cfg.Users)).Msg("using configured commute plans")
		return commute.NewInMemoryRepository(cfg.Users)
	}

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.pool = pool
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	repo := commute.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if cfg.Database.SeedFromConfig {
		for user, plans := range cfg.Users {
			if err := repo.Save(ctx, user, plans); err != nil {
				pool.Close()
				return nil, fmt.Errorf("seed plans for %s: %w", user, err)
			}
		}
		log.Info().Int("users", len(cfg.Users)).Msg("commute plans seeded")
	}

	a.Checks["database"] = pool.Ping
	return repo, nil
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func upstreamClient(
	name string,
	cfg config.UpstreamConfig,
	registry *resilience.Registry,
	metrics *resilience.ProviderMetrics,
	log zerolog.Logger,
) *resilience.Client {
	cc := resilience.DefaultClientConfig(name)
	cc.Timeout = cfg.Timeout
	cc.CircuitBreaker.Timeout = cfg.BreakerTimeout
	cc.CircuitBreaker.OnStateChange = resilience.LogStateChanges(log.With().Str("component", "resilience").Logger())
	cc.Registry = registry
	cc.Metrics = metrics
	cc.Logger = log
	return resilience.NewClient(cc)
}

// ShutdownTimeout bounds graceful shutdown of both binaries.
const ShutdownTimeout = 30 * time.Second
