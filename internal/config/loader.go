package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/alfredhome/alfred/internal/commute"
	"github.com/alfredhome/alfred/internal/geofence"
)

// DefaultPath is read when ALFRED_CONFIG is unset.
const DefaultPath = "config.yml"

// Load reads the file named by ALFRED_CONFIG (or config.yml), applies
// environment overrides and validates the result. A missing default file
// is not an error: the built-in defaults are used instead.
func Load() (*Config, error) {
	path := os.Getenv("ALFRED_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg, err := LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		cfg = Default()
	} else if err != nil {
		return nil, err
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile parses a YAML file and fills absent sections with defaults.
// It neither applies environment overrides nor validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and fills absent sections with defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %w", ErrInvalid, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = def.Server.Environment
	}
	if cfg.Server.Timezone == "" {
		cfg.Server.Timezone = def.Server.Timezone
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = def.Server.RateLimit
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = def.Upstream.Timeout
	}
	if cfg.Upstream.BreakerTimeout == 0 {
		cfg.Upstream.BreakerTimeout = def.Upstream.BreakerTimeout
	}
	if cfg.Telemetry.OTLPEndpoint == "" {
		cfg.Telemetry.OTLPEndpoint = def.Telemetry.OTLPEndpoint
	}
	if cfg.PubSub.Subscription == "" {
		cfg.PubSub.Subscription = def.PubSub.Subscription
	}
	if cfg.PubSub.ResultTopic == "" {
		cfg.PubSub.ResultTopic = def.PubSub.ResultTopic
	}
	if cfg.BusRoutes == nil {
		cfg.BusRoutes = def.BusRoutes
	}
	if cfg.TrainRoutes == nil {
		cfg.TrainRoutes = def.TrainRoutes
	}
	if cfg.Geofences == nil {
		cfg.Geofences = def.Geofences
	}
	if cfg.Users == nil {
		cfg.Users = def.Users
	}
}

// ApplyEnv overrides secrets and deployment settings from the environment.
func ApplyEnv(cfg *Config) error {
	setString(&cfg.TfL.APIKey, "TFL_API_KEY")
	setString(&cfg.TransportAPI.AppID, "TRANSPORTAPI_APP_ID")
	setString(&cfg.TransportAPI.AppKey, "TRANSPORTAPI_APP_KEY")
	setString(&cfg.Auth.AppKey, "APP_KEY")
	setString(&cfg.Auth.JWTSigningKey, "JWT_SIGNING_KEY")
	setString(&cfg.Server.Environment, "APP_ENV")
	setString(&cfg.Server.Timezone, "APP_TIMEZONE")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.PubSub.ProjectID, "PUBSUB_PROJECT_ID")
	setString(&cfg.PubSub.Subscription, "PUBSUB_SUBSCRIPTION")
	setString(&cfg.PubSub.ResultTopic, "PUBSUB_RESULT_TOPIC")

	if v := os.Getenv("APP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: APP_PORT %q is not a number", ErrInvalid, v)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = isTrue(v)
	}
	if v := os.Getenv("DB_ENABLED"); v != "" {
		cfg.Database.Enabled = isTrue(v)
	}
	return nil
}

// Validate checks struct constraints, commute plan graphs and geofences.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := commute.ValidateUserPlans(c.Users); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if len(c.Users) > 0 && !c.hasRegion(geofence.HomeRegion) {
		return fmt.Errorf("%w: users are configured but no %q geofence is defined", ErrInvalid, geofence.HomeRegion)
	}
	return nil
}

func (c *Config) hasRegion(name string) bool {
	for _, r := range c.Geofences {
		if strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func isTrue(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
