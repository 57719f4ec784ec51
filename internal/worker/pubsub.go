package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubConfig holds configuration for the Pub/Sub subscriber.
type PubSubConfig struct {
	ProjectID    string
	Subscription string
	ResultTopic  string

	// MaxOutstanding bounds concurrently handled triggers. Default: 10.
	MaxOutstanding int

	Logger zerolog.Logger
}

// PubSub receives triggers from a subscription and publishes results to a
// topic.
type PubSub struct {
	client       *pubsub.Client
	subscriber   *pubsub.Subscriber
	publisher    *pubsub.Publisher
	subscription string
	logger       zerolog.Logger
}

// NewPubSub connects to Pub/Sub.
func NewPubSub(ctx context.Context, cfg PubSubConfig) (*PubSub, error) {
	if cfg.ProjectID == "" || cfg.Subscription == "" || cfg.ResultTopic == "" {
		return nil, errors.New("pubsub project, subscription and result topic are required")
	}
	if cfg.MaxOutstanding <= 0 {
		cfg.MaxOutstanding = 10
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.Subscription)
	subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	subscriber.ReceiveSettings.MaxExtension = 2 * time.Minute

	return &PubSub{
		client:       client,
		subscriber:   subscriber,
		publisher:    client.Publisher(cfg.ResultTopic),
		subscription: cfg.Subscription,
		logger:       cfg.Logger.With().Str("component", "pubsub").Logger(),
	}, nil
}

// Publish sends one result and waits for the server id.
func (ps *PubSub) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	res := ps.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes})
	return res.Get(ctx)
}

// Run receives triggers until ctx is cancelled.
func (ps *PubSub) Run(ctx context.Context, p *Processor) error {
	ps.logger.Info().Str("subscription", ps.subscription).Msg("receiving triggers")

	return ps.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		ps.logger.Debug().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Msg("received trigger")

		err := p.Process(ctx, msg.ID, msg.Data)
		if err != nil && !errors.Is(err, ErrMalformedTrigger) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close flushes pending results and closes the client.
func (ps *PubSub) Close() error {
	ps.publisher.Stop()
	return ps.client.Close()
}

var _ Publisher = (*PubSub)(nil)
