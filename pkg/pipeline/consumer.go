package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// MessageConsumer is the interface for an envelope source. It hands
// envelopes to the relay via a channel and shuts down on Stop.
type MessageConsumer interface {
	// Messages returns the channel the relay worker receives from.
	Messages() <-chan Message
	// Start begins consumption.
	Start(ctx context.Context) error
	// Stop ceases consumption and waits for background work to finish.
	Stop(ctx context.Context) error
	// Done is closed when the consumer has completely shut down.
	Done() <-chan struct{}
}

// GooglePubsubConsumerConfig holds configuration for the pull consumer.
type GooglePubsubConsumerConfig struct {
	SubscriptionID string
	// MaxOutstanding bounds in-flight deliveries. The relay runs it at 1:
	// events sharing a session id must not be processed out of order, and
	// the broker only preserves order when one message is outstanding.
	MaxOutstanding int
	ExistsTimeout  time.Duration
	StopTimeout    time.Duration
}

// NewGooglePubsubConsumerDefaults provides the relay's defaults for a
// subscription.
func NewGooglePubsubConsumerDefaults(subID string) *GooglePubsubConsumerConfig {
	return &GooglePubsubConsumerConfig{
		SubscriptionID: subID,
		MaxOutstanding: 1,
		ExistsTimeout:  20 * time.Second,
		StopTimeout:    30 * time.Second,
	}
}

// GooglePubsubConsumer pulls envelopes from a Pub/Sub subscription.
type GooglePubsubConsumer struct {
	subscription  *pubsub.Subscription
	logger        zerolog.Logger
	outputChan    chan Message
	stopTimeout   time.Duration
	stopOnce      sync.Once
	cancelReceive context.CancelFunc
	wg            sync.WaitGroup
	doneChan      chan struct{}
}

// NewGooglePubsubConsumer creates a consumer, verifying the subscription
// exists before returning.
func NewGooglePubsubConsumer(ctx context.Context, cfg *GooglePubsubConsumerConfig, client *pubsub.Client, logger zerolog.Logger) (*GooglePubsubConsumer, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	sub := client.Subscription(cfg.SubscriptionID)

	existsCtx, cancel := context.WithTimeout(ctx, cfg.ExistsTimeout)
	defer cancel()
	exists, err := sub.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check subscription %s: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("subscription %s does not exist", cfg.SubscriptionID)
	}

	if cfg.MaxOutstanding <= 0 {
		cfg.MaxOutstanding = 1
	}
	sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
	sub.ReceiveSettings.NumGoroutines = 1

	return &GooglePubsubConsumer{
		subscription: sub,
		logger:       logger.With().Str("component", "GooglePubsubConsumer").Str("subscription_id", cfg.SubscriptionID).Logger(),
		outputChan:   make(chan Message, cfg.MaxOutstanding),
		stopTimeout:  cfg.StopTimeout,
		doneChan:     make(chan struct{}),
	}, nil
}

// Messages returns the channel envelopes are delivered on.
func (c *GooglePubsubConsumer) Messages() <-chan Message { return c.outputChan }

// Start begins receiving from the subscription in a background goroutine.
func (c *GooglePubsubConsumer) Start(ctx context.Context) error {
	c.logger.Info().Msg("Starting Pub/Sub message consumption...")
	receiveCtx, cancel := context.WithCancel(ctx)
	c.cancelReceive = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(c.outputChan)
		defer close(c.doneChan)
		defer c.logger.Info().Msg("Pub/Sub Receive goroutine stopped.")

		err := c.subscription.Receive(receiveCtx, func(_ context.Context, msg *pubsub.Message) {
			payloadCopy := make([]byte, len(msg.Data))
			copy(payloadCopy, msg.Data)

			envelope := Message{
				ID:           msg.ID,
				Payload:      payloadCopy,
				Attributes:   msg.Attributes,
				PublishTime:  msg.PublishTime,
				Acknowledger: NewOnceAcknowledger(msg.Ack, msg.Nack),
			}

			select {
			case c.outputChan <- envelope:
			case <-receiveCtx.Done():
				msg.Nack()
				c.logger.Warn().Str("msg_id", msg.ID).Msg("Consumer stopping, Nacking message.")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		}
	}()
	return nil
}

// Stop cancels the receive loop and waits for it to drain.
func (c *GooglePubsubConsumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping Pub/Sub consumer...")
		if c.cancelReceive != nil {
			c.cancelReceive()
		}
		select {
		case <-c.doneChan:
			c.logger.Info().Msg("Pub/Sub Receive goroutine confirmed stopped.")
		case <-time.After(c.stopTimeout):
			stopErr = fmt.Errorf("timeout waiting for Pub/Sub Receive goroutine to stop")
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
	})
	return stopErr
}

// Done returns the channel closed on complete shutdown.
func (c *GooglePubsubConsumer) Done() <-chan struct{} { return c.doneChan }
