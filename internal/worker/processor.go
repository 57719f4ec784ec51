// Package worker computes commutes for home-automation triggers received
// over Google Cloud Pub/Sub and publishes the summaries to a result topic.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/alfredhome/alfred/internal/commute"
	"github.com/alfredhome/alfred/internal/transit"
)

const meterName = "github.com/alfredhome/alfred/internal/worker"

// ErrMalformedTrigger is returned for trigger payloads that are not JSON.
// Such messages are acknowledged and dropped.
var ErrMalformedTrigger = errors.New("malformed trigger message")

// Message outcomes.
const (
	OutcomePublished = "published"
	OutcomeRejected  = "rejected"
	OutcomeDropped   = "dropped"
	OutcomeRetry     = "retry"
)

// Trigger asks for the commute of a user at a location.
// Empty coordinates mean the user is at home.
type Trigger struct {
	User string `json:"user"`
	Lat  string `json:"lat,omitempty"`
	Long string `json:"long,omitempty"`
}

// Result is the message published for each handled trigger.
type Result struct {
	ID             string         `json:"id"`
	TriggerID      string         `json:"triggerId"`
	User           string         `json:"user"`
	AtHome         bool           `json:"atHome"`
	AnyDisruptions bool           `json:"anyDisruptions"`
	CommuteResults []*transit.Leg `json:"commuteResults"`
	Error          string         `json:"error,omitempty"`
	GeneratedAt    time.Time      `json:"generatedAt"`
}

// CommuteComputer computes a commute. *commute.Planner implements it.
type CommuteComputer interface {
	GetCommute(ctx context.Context, user, lat, long string) (*commute.Result, error)
}

// Publisher sends encoded results and returns the server message id.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// ProcessorConfig holds configuration for the trigger processor.
type ProcessorConfig struct {
	Planner   CommuteComputer
	Publisher Publisher

	// MeterProvider for message counters (default: global provider).
	MeterProvider metric.MeterProvider

	// Now returns the current time (default: time.Now).
	Now func() time.Time

	Logger zerolog.Logger
}

// Processor turns trigger payloads into published results.
type Processor struct {
	planner   CommuteComputer
	publisher Publisher
	now       func() time.Time
	logger    zerolog.Logger
	messages  metric.Int64Counter
}

// NewProcessor creates a new trigger processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	messages, err := mp.Meter(meterName).Int64Counter(
		"alfred.worker.messages",
		metric.WithDescription("Trigger messages handled by outcome"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating message counter: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Processor{
		planner:   cfg.Planner,
		publisher: cfg.Publisher,
		now:       now,
		logger:    cfg.Logger.With().Str("component", "worker").Logger(),
		messages:  messages,
	}, nil
}

// Process handles one trigger message.
//
// A nil error means the message is done and should be acknowledged: either a
// result was published, or the payload was rejected with an error result.
// ErrMalformedTrigger should also be acknowledged. Any other error is
// transient and the message should be redelivered.
func (p *Processor) Process(ctx context.Context, triggerID string, data []byte) error {
	outcome, err := p.process(ctx, triggerID, data)
	p.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return err
}

func (p *Processor) process(ctx context.Context, triggerID string, data []byte) (string, error) {
	logger := p.logger.With().Str("trigger_id", triggerID).Logger()

	var trigger Trigger
	if err := json.Unmarshal(data, &trigger); err != nil {
		logger.Warn().Err(err).Msg("dropping malformed trigger")
		return OutcomeDropped, fmt.Errorf("%w: %w", ErrMalformedTrigger, err)
	}
	trigger.User = strings.TrimSpace(trigger.User)

	result := Result{
		ID:             uuid.NewString(),
		TriggerID:      triggerID,
		User:           trigger.User,
		CommuteResults: []*transit.Leg{},
		GeneratedAt:    p.now().UTC(),
	}

	outcome := OutcomePublished
	c, err := p.planner.GetCommute(ctx, trigger.User, trigger.Lat, trigger.Long)
	switch {
	case err == nil:
		result.User = c.User
		result.AtHome = c.AtHome
		result.AnyDisruptions = c.AnyDisruptions
		result.CommuteResults = c.CommuteResults
	case isRejection(err):
		logger.Info().Err(err).Str("user", trigger.User).Msg("trigger rejected")
		result.Error = err.Error()
		outcome = OutcomeRejected
	default:
		logger.Error().Err(err).Str("user", trigger.User).Msg("commute failed, requesting redelivery")
		return OutcomeRetry, fmt.Errorf("computing commute: %w", err)
	}

	body, err := json.Marshal(result)
	if err != nil {
		return OutcomeRetry, fmt.Errorf("encoding result: %w", err)
	}

	attrs := map[string]string{
		"user":      result.User,
		"triggerId": triggerID,
	}
	if result.Error != "" {
		attrs["error"] = "true"
	}

	serverID, err := p.publisher.Publish(ctx, body, attrs)
	if err != nil {
		logger.Error().Err(err).Msg("publishing result failed")
		return OutcomeRetry, fmt.Errorf("publishing result: %w", err)
	}

	logger.Info().
		Str("result_id", result.ID).
		Str("message_id", serverID).
		Str("user", result.User).
		Bool("any_disruptions", result.AnyDisruptions).
		Int("legs", len(result.CommuteResults)).
		Msg("commute published")

	return outcome, nil
}

// isRejection reports whether err is caused by the trigger itself, so that
// redelivery cannot succeed.
func isRejection(err error) bool {
	var verr *transit.ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, commute.ErrUnknownUser) ||
		errors.Is(err, commute.ErrInvalidPlan) ||
		errors.Is(err, transit.ErrUnsupportedRoute)
}
