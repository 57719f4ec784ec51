// Package api provides the HTTP API for the Alfred travel skill.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/alfredhome/alfred/internal/api/handler"
	"github.com/alfredhome/alfred/internal/api/middleware"
	"github.com/alfredhome/alfred/internal/api/response"
	"github.com/alfredhome/alfred/internal/auth"
	"github.com/alfredhome/alfred/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	ServiceName string
	Logger      zerolog.Logger

	// Metrics records HTTP metrics (optional).
	Metrics *middleware.Metrics

	// Authenticator guards /travel and /ops/status.
	Authenticator *auth.Authenticator

	Travel  handler.TravelService
	Planner handler.CommutePlanner

	// Registry supplies provider health for /ops/status (optional).
	Registry *resilience.Registry

	// ReadinessChecks back /ops/ready.
	ReadinessChecks map[string]handler.Check

	// RateLimit is requests per minute per client on /travel. Zero uses the default.
	RateLimit int

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool
}

// NewRouter creates a chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "alfred-travel"
	}
	authenticator := cfg.Authenticator
	if authenticator == nil {
		authenticator = auth.NewAuthenticator(auth.AuthenticatorConfig{})
	}

	// Order matters: the request id must exist before tracing and logging.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no such endpoint")
	})
	r.MethodNotAllowed(response.MethodNotAllowed)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Checks:    cfg.ReadinessChecks,
	})
	travelHandler := handler.NewTravelHandler(cfg.Travel, cfg.Planner, cfg.Logger)

	authMiddleware := middleware.Auth(authenticator, cfg.Logger)

	r.Route("/ops", func(r chi.Router) {
		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)
		r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
	})

	r.Route("/travel", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RateLimit(cfg.RateLimit))

		r.Get("/tubestatus", travelHandler.TubeStatus)
		r.Get("/busstatus", travelHandler.BusStatus)
		r.Get("/nextbus", travelHandler.NextBus)
		r.Get("/nexttube", travelHandler.NextTube)
		r.Get("/nexttrain", travelHandler.NextTrain)
		r.Get("/planjourney", travelHandler.PlanJourney)
		r.Get("/getcommute", travelHandler.GetCommute)
	})

	return r
}
