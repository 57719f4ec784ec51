package config

import (
	"time"

	"github.com/alfredhome/alfred/internal/commute"
	"github.com/alfredhome/alfred/internal/geofence"
	"github.com/alfredhome/alfred/internal/transit"
	"github.com/alfredhome/alfred/pkg/geo"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:    defaultServer(),
		Upstream:  defaultUpstream(),
		Telemetry: TelemetryConfig{OTLPEndpoint: "localhost:4317"},
		PubSub: PubSubConfig{
			Subscription: "alfred-commute-requests",
			ResultTopic:  "alfred-commute-results",
		},
		BusRoutes:   DefaultBusRoutes(),
		TrainRoutes: DefaultTrainRoutes(),
		Geofences:   DefaultGeofences(),
		Users:       DefaultUsers(),
	}
}

func defaultServer() ServerConfig {
	return ServerConfig{
		Port:        8080,
		Environment: "development",
		Timezone:    "Europe/London",
		RateLimit:   100,
	}
}

func defaultUpstream() UpstreamConfig {
	return UpstreamConfig{
		Timeout:        10 * time.Second,
		BreakerTimeout: 30 * time.Second,
	}
}

// DefaultBusRoutes returns the supported bus routes and their stop points.
func DefaultBusRoutes() map[string]transit.BusStops {
	return map[string]transit.BusStops{
		"9":   {Home: "490013766H"},
		"380": {Home: "490013012S"},
		"486": {Home: "490001058H", Away: "490010374B"},
		"161": {Home: "490010374A"},
	}
}

// DefaultTrainRoutes returns the fixed departure board routes from Charlton.
func DefaultTrainRoutes() map[string]transit.TrainRoute {
	return map[string]transit.TrainRoute{
		"CHX": {From: "CTN", Destination: "CHX", Platform: "1"},
		"CST": {From: "CTN", Destination: "CST", Platform: "1"},
	}
}

// DefaultGeofences returns the home region.
func DefaultGeofences() []geofence.Region {
	return []geofence.Region{
		{Name: geofence.HomeRegion, Center: geo.Point{Lat: 51.4868, Lon: 0.0316}, RadiusMeters: 500},
	}
}

// DefaultUsers returns the built-in commute plans.
func DefaultUsers() map[string]commute.UserPlans {
	prerequisite := 0
	return map[string]commute.UserPlans{
		"JP": {
			Home: []commute.Descriptor{
				{Order: 0, Mode: transit.ModeTrain, Params: commute.Params{Route: "CHX"}},
				{Order: 1, Mode: transit.ModeTube, Params: commute.Params{Line: "northern"}},
				{Order: 2, Mode: transit.ModeBus, Params: commute.Params{Route: "486"}},
				{Order: 3, Mode: transit.ModeTube, Params: commute.Params{Line: "jubilee"}},
				{Order: 4, Mode: transit.ModeTube, Params: commute.Params{Line: "northern"}},
			},
			Away: []commute.Descriptor{
				{Order: 0, Mode: transit.ModeBus, Params: commute.Params{Route: "486"}},
				{Order: 1, Mode: transit.ModeBus, Params: commute.Params{Route: "161"}},
			},
		},
		"Fran": {
			Home: []commute.Descriptor{
				{Order: 0, Mode: transit.ModeTrain, Params: commute.Params{StartID: "CTN", Destination: "LBG"}},
				{Order: 1, Mode: transit.ModeBus, Params: commute.Params{Route: "9"}},
				{
					Order:         2,
					Mode:          transit.ModeTrain,
					Params:        commute.Params{StartID: "LBG", Destination: "CST"},
					DependsOn:     &prerequisite,
					BufferMinutes: 5,
				},
				{Order: 3, Mode: transit.ModeTube, Params: commute.Params{Line: "district"}},
			},
		},
	}
}
