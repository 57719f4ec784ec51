package commute

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredhome/alfred/internal/transit"
)

const tracerName = "github.com/alfredhome/alfred/internal/commute"

// LegSource fetches normalized legs. *transit.Service implements it.
type LegSource interface {
	TubeStatus(ctx context.Context, line string) (*transit.Leg, error)
	NextTube(ctx context.Context, line, startID string) (*transit.Leg, error)
	NextBus(ctx context.Context, route string, atHome bool) (*transit.Leg, error)
	NextTrain(ctx context.Context, q transit.TrainQuery) (*transit.Leg, error)
}

// Locator classifies a coordinate pair. *geofence.Evaluator implements it.
type Locator interface {
	AtHome(lat, lon string) (bool, error)
}

// PlannerConfig holds configuration for the commute planner.
type PlannerConfig struct {
	// Repository supplies per-user plans.
	Repository Repository

	// Legs fetches individual legs.
	Legs LegSource

	// Locator decides whether the user is at home.
	Locator Locator

	// Now returns the current time (default: time.Now).
	Now func() time.Time

	// Tracer for per-leg spans (default: global tracer provider).
	Tracer trace.Tracer

	// Logger for planner operations.
	Logger zerolog.Logger
}

// Planner resolves a user's commute and fetches its legs.
type Planner struct {
	repo    Repository
	legs    LegSource
	locator Locator
	now     func() time.Time
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// NewPlanner creates a new commute planner.
func NewPlanner(cfg PlannerConfig) *Planner {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Planner{
		repo:    cfg.Repository,
		legs:    cfg.Legs,
		locator: cfg.Locator,
		now:     now,
		tracer:  tracer,
		logger:  cfg.Logger.With().Str("component", "commute").Logger(),
	}
}

// GetCommute returns the commute of user from the given location.
// Empty lat and lon mean the user is at home.
func (p *Planner) GetCommute(ctx context.Context, user, lat, lon string) (*Result, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, &transit.ValidationError{Field: "user"}
	}

	atHome, err := p.locator.AtHome(lat, lon)
	if err != nil {
		return nil, &transit.ValidationError{Field: "lat/long", Reason: err.Error()}
	}

	plan, err := p.repo.Plan(ctx, user, atHome)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			p.logger.Info().Str("user", user).Msg("user is not supported")
		}
		return nil, err
	}

	p.logger.Debug().
		Str("user", plan.User).
		Bool("at_home", atHome).
		Int("legs", len(plan.Descriptors)).
		Msg("commute plan selected")

	result := &Result{
		User:           plan.User,
		AtHome:         atHome,
		CommuteResults: []*transit.Leg{},
	}
	if len(plan.Descriptors) == 0 {
		return result, nil
	}
	if err := ValidatePlan(plan.Descriptors); err != nil {
		return nil, err
	}

	legs, err := p.dispatch(ctx, plan)
	if err != nil {
		p.logger.Error().Err(err).Str("user", plan.User).Msg("commute leg failed")
		return nil, err
	}

	sort.SliceStable(legs, func(i, j int) bool { return legs[i].Order < legs[j].Order })
	for _, leg := range legs {
		result.AnyDisruptions = result.AnyDisruptions || leg.Disruption
	}
	result.CommuteResults = legs

	return result, nil
}

// fetch resolves one descriptor into a leg.
func (p *Planner) fetch(ctx context.Context, d Descriptor, atHome bool, prereq *transit.Leg) (*transit.Leg, error) {
	switch d.Mode {
	case transit.ModeTube:
		line := d.Params.Line
		if line == "" {
			line = d.Params.Route
		}
		if d.Params.StartID != "" {
			return p.legs.NextTube(ctx, line, d.Params.StartID)
		}
		return p.legs.TubeStatus(ctx, line)

	case transit.ModeBus:
		direction := atHome
		if d.Params.AtHome != nil {
			direction = *d.Params.AtHome
		}
		return p.legs.NextBus(ctx, d.Params.Route, direction)

	case transit.ModeTrain:
		q := transit.TrainQuery{
			Route:              d.Params.Route,
			StartID:            d.Params.StartID,
			Destination:        d.Params.Destination,
			DepartureOffset:    time.Duration(d.Params.DepartureTimeOffset) * time.Minute,
			DisruptionOverride: d.Params.DisruptionOverride,
		}
		if d.DependsOn != nil {
			q.DepartureOffset = p.connectionOffset(prereq, d.BufferMinutes)
		}
		return p.legs.NextTrain(ctx, q)
	}

	return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidPlan, d.Mode)
}

// connectionOffset is the time from now until the prerequisite arrives,
// plus the buffer. A prerequisite without a known arrival contributes
// nothing, so the dependent leg departs after the buffer alone.
func (p *Planner) connectionOffset(prereq *transit.Leg, bufferMinutes int) time.Duration {
	buffer := time.Duration(bufferMinutes) * time.Minute
	if prereq == nil || prereq.ArrivesAt.IsZero() {
		return buffer
	}

	offset := prereq.ArrivesAt.Sub(p.now()) + buffer
	if offset < buffer {
		return buffer
	}
	return offset
}
