package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// RelayService drives the pull path: it receives envelopes from a consumer
// and resolves each through the processing chain. It runs a single worker —
// together with the consumer's flow control of one outstanding message this
// preserves ordering for envelopes sharing a session id.
type RelayService struct {
	consumer  MessageConsumer
	processor *Processor
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

// NewRelayService creates a RelayService.
func NewRelayService(consumer MessageConsumer, processor *Processor, logger zerolog.Logger) (*RelayService, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer cannot be nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}
	return &RelayService{
		consumer:  consumer,
		processor: processor,
		logger:    logger.With().Str("service", "RelayService").Logger(),
	}, nil
}

// Start begins the consumer and the worker loop.
func (s *RelayService) Start(ctx context.Context) error {
	s.logger.Info().Msg("Starting relay service...")

	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message consumer: %w", err)
	}

	s.wg.Add(1)
	go s.worker(ctx)

	s.logger.Info().Msg("Relay service started successfully.")
	return nil
}

// Stop ceases consumption, then waits for the in-flight message (at most
// one) to finish.
func (s *RelayService) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping relay service...")

	if err := s.consumer.Stop(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Error during consumer stop, continuing shutdown.")
	}

	workerDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(workerDone)
	}()

	select {
	case <-workerDone:
		s.logger.Info().Msg("Relay worker completed gracefully.")
	case <-ctx.Done():
		s.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for relay worker to finish.")
		return ctx.Err()
	}

	s.logger.Info().Msg("Relay service stopped.")
	return nil
}

// worker processes envelopes strictly one at a time, in delivery order.
func (s *RelayService) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Relay worker shutting down due to context cancellation.")
			return
		case msg, ok := <-s.consumer.Messages():
			if !ok {
				s.logger.Info().Msg("Consumer channel closed, relay worker exiting.")
				return
			}
			s.processor.ProcessEnvelope(ctx, msg)
		}
	}
}
