// Package main provides the entrypoint for the Alfred travel API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfredhome/alfred/internal/api"
	"github.com/alfredhome/alfred/internal/api/middleware"
	"github.com/alfredhome/alfred/internal/app"
	"github.com/alfredhome/alfred/internal/auth"
	"github.com/alfredhome/alfred/internal/config"
	"github.com/alfredhome/alfred/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "alfred-travel"

func main() {
	issueToken := flag.String("issue-token", "", "print a bearer token for the given user and exit")
	flag.Parse()

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

	jwtService := newJWTService(cfg)

	if *issueToken != "" {
		if err := printToken(jwtService, *issueToken); err != nil {
			log.Fatal().Err(err).Msg("failed to issue token")
		}
		return
	}

	if err := run(cfg, jwtService, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func newJWTService(cfg *config.Config) *auth.JWTService {
	if cfg.Auth.JWTSigningKey == "" {
		return nil
	}
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.Auth.JWTSigningKey,
		Issuer:     cfg.Auth.JWTIssuer,
	})
}

func printToken(jwtService *auth.JWTService, user string) error {
	if jwtService == nil {
		return errors.New("JWT_SIGNING_KEY is not set")
	}
	token, expiresAt, err := jwtService.GenerateAccessToken(user)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}

func run(cfg *config.Config, jwtService *auth.JWTService, log zerolog.Logger) error {
	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Server.Environment).
		Msg("starting Alfred travel API")

	ctx := context.Background()

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
	if tp.Exporting() {
		log.Info().Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics(tp.MeterProvider())
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer services.Close()

	authenticator := auth.NewAuthenticator(auth.AuthenticatorConfig{
		AppKey: cfg.Auth.AppKey,
		JWT:    jwtService,
	})
	if !authenticator.Enabled() {
		log.Warn().Msg("APP_KEY and JWT_SIGNING_KEY are unset, /travel is open to anyone")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:         Version,
		BuildTime:       BuildTime,
		ServiceName:     serviceName,
		Logger:          log,
		Metrics:         metrics,
		Authenticator:   authenticator,
		Travel:          services.Travel,
		Planner:         services.Planner,
		Registry:        services.Registry,
		ReadinessChecks: services.Checks,
		RateLimit:       cfg.Server.RateLimit,
		RequireTLS:      cfg.Server.Environment == "production",
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
