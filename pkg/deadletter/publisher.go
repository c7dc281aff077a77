package deadletter

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// GooglePublisherConfig holds settings for the Pub/Sub dead-letter publisher.
type GooglePublisherConfig struct {
	TopicID        string
	ConfirmTimeout time.Duration
}

// NewGooglePublisherDefaults provides sensible defaults for a topic.
func NewGooglePublisherDefaults(topicID string) *GooglePublisherConfig {
	return &GooglePublisherConfig{
		TopicID:        topicID,
		ConfirmTimeout: 20 * time.Second,
	}
}

// GooglePublisher publishes dead-letter records directly to a Pub/Sub topic.
// Publishing blocks until the broker confirms the record: a record must be
// durably on the side topic before the original message is acked away.
type GooglePublisher struct {
	topic          *pubsub.Topic
	confirmTimeout time.Duration
	logger         zerolog.Logger
}

// NewGooglePublisher creates the publisher, verifying the topic exists
// within the context's deadline.
func NewGooglePublisher(ctx context.Context, cfg *GooglePublisherConfig, client *pubsub.Client, logger zerolog.Logger) (*GooglePublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	topic := client.Topic(cfg.TopicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	return &GooglePublisher{
		topic:          topic,
		confirmTimeout: cfg.ConfirmTimeout,
		logger:         logger.With().Str("component", "GooglePublisher").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

// Publish sends a single record payload and waits for broker confirmation.
func (p *GooglePublisher) Publish(ctx context.Context, payload []byte, attributes map[string]string) error {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attributes,
	})

	getCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	msgID, err := result.Get(getCtx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to publish dead-letter record.")
		return fmt.Errorf("publish to %s: %w", p.topic.ID(), err)
	}
	p.logger.Debug().Str("published_msg_id", msgID).Msg("Dead-letter record published.")
	return nil
}

// Stop flushes any pending publishes, respecting the context's timeout.
func (p *GooglePublisher) Stop(ctx context.Context) error {
	if p.topic == nil {
		return nil
	}
	stopDone := make(chan struct{})
	go func() {
		p.topic.Stop()
		close(stopDone)
	}()
	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
