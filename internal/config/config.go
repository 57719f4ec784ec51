// Package config loads the application configuration.
//
// Configuration is read from a YAML file (config.yml, or the path in
// ALFRED_CONFIG), completed with built-in defaults for absent sections,
// overridden by environment variables for secrets and deployment
// settings, and validated with struct tags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/alfredhome/alfred/internal/commute"
	"github.com/alfredhome/alfred/internal/geofence"
	"github.com/alfredhome/alfred/internal/transit"
)

// ErrInvalid is returned when the configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the application configuration.
type Config struct {
	Server       ServerConfig                  `yaml:"server"`
	Auth         AuthConfig                    `yaml:"auth"`
	TfL          TfLConfig                     `yaml:"tfl"`
	TransportAPI TransportAPIConfig            `yaml:"transportapi"`
	Upstream     UpstreamConfig                `yaml:"upstream"`
	Telemetry    TelemetryConfig               `yaml:"telemetry"`
	Database     DatabaseConfig                `yaml:"database"`
	PubSub       PubSubConfig                  `yaml:"pubsub"`
	BusRoutes    map[string]transit.BusStops   `yaml:"busRoutes" validate:"dive"`
	TrainRoutes  map[string]transit.TrainRoute `yaml:"trainRoutes" validate:"dive"`
	Geofences    []geofence.Region             `yaml:"geofences" validate:"dive"`
	Users        map[string]commute.UserPlans  `yaml:"users" validate:"dive"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int    `yaml:"port" validate:"gt=0,lte=65535"`
	Environment string `yaml:"environment" validate:"required"`

	// Timezone renders clock times in legs.
	Timezone string `yaml:"timezone" validate:"required"`

	// RateLimit is requests per minute per client. Default: 100.
	RateLimit int `yaml:"rateLimit" validate:"gte=0"`
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	// AppKey is the shared key accepted as app_key or X-API-Key.
	AppKey string `yaml:"appKey"`

	// JWTSigningKey signs and verifies bearer tokens.
	JWTSigningKey string `yaml:"jwtSigningKey"`

	// JWTIssuer is the expected token issuer.
	JWTIssuer string `yaml:"jwtIssuer"`
}

// TfLConfig configures the TfL client.
type TfLConfig struct {
	BaseURL string `yaml:"baseURL" validate:"omitempty,url"`
	APIKey  string `yaml:"apiKey"`
}

// TransportAPIConfig configures the TransportAPI client.
type TransportAPIConfig struct {
	BaseURL string `yaml:"baseURL" validate:"omitempty,url"`
	AppID   string `yaml:"appID"`
	AppKey  string `yaml:"appKey"`
}

// UpstreamConfig configures the shared upstream HTTP client.
type UpstreamConfig struct {
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
	BreakerTimeout time.Duration `yaml:"breakerTimeout" validate:"gt=0"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlpEndpoint" validate:"required_if=Enabled true"`
}

// DatabaseConfig switches plan storage to PostgreSQL. Connection settings
// come from DB_* environment variables.
type DatabaseConfig struct {
	Enabled bool `yaml:"enabled"`

	// SeedFromConfig writes the configured users into the database at startup.
	SeedFromConfig bool `yaml:"seedFromConfig"`
}

// PubSubConfig configures the commute worker.
type PubSubConfig struct {
	ProjectID    string `yaml:"projectID"`
	Subscription string `yaml:"subscription"`
	ResultTopic  string `yaml:"resultTopic"`
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalid, c.Server.Timezone, err)
	}
	return loc, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
