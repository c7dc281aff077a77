package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/deadletter"
	"github.com/illmade-knight/go-crm-relay/pkg/dispatch"
	"github.com/illmade-knight/go-crm-relay/pkg/seen"
	"github.com/illmade-knight/go-crm-relay/pkg/validation"
)

// DefaultProcessTimeout bounds a single processing attempt. A timeout nacks
// the envelope for redelivery rather than dead-lettering it: slow is not
// the same as poisoned.
const DefaultProcessTimeout = 30 * time.Second

// Processor runs the decode, validate, dispatch and process chain for one
// envelope, routing failures to the dead-letter controller. It is shared by
// the pull listener and the push endpoint and is safe for concurrent use.
type Processor struct {
	validator      *validation.Validator
	registry       *dispatch.Registry
	dlq            *deadletter.Controller
	seenStore      seen.Store
	processTimeout time.Duration
	logger         zerolog.Logger
}

// NewProcessor wires the chain. The seen store may be nil, disabling
// duplicate suppression.
func NewProcessor(
	validator *validation.Validator,
	registry *dispatch.Registry,
	dlq *deadletter.Controller,
	seenStore seen.Store,
	processTimeout time.Duration,
	logger zerolog.Logger,
) (*Processor, error) {
	if validator == nil {
		return nil, fmt.Errorf("validator cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if dlq == nil {
		return nil, fmt.Errorf("dead-letter controller cannot be nil")
	}
	if processTimeout <= 0 {
		processTimeout = DefaultProcessTimeout
	}
	return &Processor{
		validator:      validator,
		registry:       registry,
		dlq:            dlq,
		seenStore:      seenStore,
		processTimeout: processTimeout,
		logger:         logger.With().Str("component", "Processor").Logger(),
	}, nil
}

// ProcessEnvelope resolves one envelope end to end and calls exactly one of
// Ack or Nack on it. Redelivered dead-letter records re-enter at the
// processing stage; everything else runs the full chain.
func (p *Processor) ProcessEnvelope(ctx context.Context, msg Message) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.processTimeout)
	defer cancel()

	if p.alreadyProcessed(attemptCtx, msg) {
		p.logger.Info().Str("msg_id", msg.ID).Msg("Duplicate delivery, Acking without reprocessing.")
		msg.Acknowledger.Ack()
		return
	}

	if record, ok := deadletter.ParseRecord(msg.Payload); ok {
		p.processRecord(attemptCtx, msg, *record)
		return
	}
	p.processEvent(attemptCtx, msg)
}

// processEvent runs the full chain for a first-delivery event.
func (p *Processor) processEvent(ctx context.Context, msg Message) {
	event, err := crmevents.Decode(msg.Payload)
	if err != nil {
		p.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Failed to decode message.")
		p.deadLetter(ctx, msg, err)
		return
	}

	result, err := p.validator.Validate(event)
	if err != nil {
		p.logger.Error().Err(err).Str("msg_id", msg.ID).Str("event_type", event.Type).Msg("No validator for event type.")
		p.deadLetter(ctx, msg, err)
		return
	}
	if !result.IsValid {
		failure := &validation.FailedError{Errors: result.Errors}
		p.logger.Error().Err(failure).Str("msg_id", msg.ID).Str("event_type", event.Type).Msg("Event failed validation.")
		p.deadLetter(ctx, msg, failure)
		return
	}

	handler, err := p.registry.Get(event.Type)
	if err != nil {
		p.logger.Error().Err(err).Str("msg_id", msg.ID).Str("event_type", event.Type).Msg("No handler for event type.")
		p.deadLetter(ctx, msg, err)
		return
	}

	if procErr := p.invoke(ctx, handler, event); procErr != nil {
		if timedOut(ctx, procErr) {
			p.logger.Warn().Str("msg_id", msg.ID).Str("event_type", event.Type).Msg("Processing timed out, Nacking for redelivery.")
			msg.Acknowledger.Nack()
			return
		}
		p.logger.Error().Err(procErr).Str("msg_id", msg.ID).Str("event_type", event.Type).Msg("Handler failed.")
		p.deadLetter(ctx, msg, procErr)
		return
	}

	p.markProcessed(ctx, msg)
	p.logger.Info().Str("msg_id", msg.ID).Str("event_type", event.Type).Str("session_id", event.SessionID()).Msg("Event processed successfully.")
	msg.Acknowledger.Ack()
}

// processRecord handles a redelivered dead-letter record. Decoding and
// validation already succeeded on first delivery (non-retryable records are
// dropped here), so the record re-enters at the processing stage.
func (p *Processor) processRecord(ctx context.Context, msg Message, record deadletter.Record) {
	if p.dlq.ShouldDrop(record) {
		p.dlq.Drop(ctx, record)
		p.markProcessed(ctx, msg)
		msg.Acknowledger.Ack()
		return
	}

	event, err := crmevents.Decode([]byte(record.OriginalMessage.Data))
	if err != nil {
		// The preserved payload no longer decodes; nothing can recover it.
		p.logger.Error().Err(err).Str("original_msg_id", record.OriginalMessage.ID).Msg("Dead-letter record payload no longer decodes, dropping.")
		p.dlq.Drop(ctx, record)
		msg.Acknowledger.Ack()
		return
	}

	handler, err := p.registry.Get(event.Type)
	if err != nil {
		p.logger.Error().Err(err).Str("original_msg_id", record.OriginalMessage.ID).Msg("No handler for dead-letter record, dropping.")
		p.dlq.Drop(ctx, record)
		msg.Acknowledger.Ack()
		return
	}

	if procErr := p.invoke(ctx, handler, event); procErr != nil {
		if timedOut(ctx, procErr) {
			p.logger.Warn().Str("original_msg_id", record.OriginalMessage.ID).Msg("Retry timed out, Nacking for redelivery.")
			msg.Acknowledger.Nack()
			return
		}
		p.logger.Error().Err(procErr).
			Str("original_msg_id", record.OriginalMessage.ID).
			Int("retry_count", record.RetryCount).
			Msg("Retry failed, republishing with incremented count.")
		p.deadLetter(ctx, msg, procErr)
		return
	}

	p.markProcessed(ctx, msg)
	p.logger.Info().Str("original_msg_id", record.OriginalMessage.ID).Int("retry_count", record.RetryCount).Msg("Dead-letter record processed successfully.")
	msg.Acknowledger.Ack()
}

// invoke runs the handler in its own goroutine so an expired attempt can be
// abandoned. A handler panic is a processing failure, not a pipeline crash.
func (p *Processor) invoke(ctx context.Context, handler dispatch.Handler, event *crmevents.Event) error {
	done := make(chan error, 1)
	go func() {
		done <- func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &dispatch.ProcessingError{Reason: fmt.Sprintf("handler panic: %v", r)}
				}
			}()
			result, herr := handler.Process(ctx, event)
			if herr != nil {
				if errors.Is(herr, context.DeadlineExceeded) {
					return herr
				}
				return &dispatch.ProcessingError{Reason: herr.Error()}
			}
			if !result.Success {
				return &dispatch.ProcessingError{Reason: result.Error}
			}
			return nil
		}()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deadLetter publishes the failure and acks the envelope; the record now
// carries the retry state. If the publish itself fails the envelope is
// nacked so the broker redelivers it instead of losing it.
func (p *Processor) deadLetter(ctx context.Context, msg Message, failure error) {
	original := deadletter.OriginalMessage{
		ID:          msg.ID,
		Data:        string(msg.Payload),
		Attributes:  msg.Attributes,
		PublishTime: msg.PublishTime.UTC().Format(time.RFC3339),
	}

	// The attempt context may already be exhausted; give the publish its
	// own bounded context so a slow handler doesn't also lose the record.
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.processTimeout)
	defer cancel()

	if err := p.dlq.Publish(publishCtx, original, msg.Payload, failure); err != nil {
		p.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Failed to publish dead-letter record, Nacking.")
		msg.Acknowledger.Nack()
		return
	}
	msg.Acknowledger.Ack()
}

func (p *Processor) alreadyProcessed(ctx context.Context, msg Message) bool {
	if p.seenStore == nil || msg.ID == "" {
		return false
	}
	processed, err := p.seenStore.Seen(ctx, msg.ID)
	if err != nil {
		// Availability over dedupe: process rather than stall.
		p.logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Seen-store lookup failed, processing anyway.")
		return false
	}
	return processed
}

func (p *Processor) markProcessed(ctx context.Context, msg Message) {
	if p.seenStore == nil || msg.ID == "" {
		return
	}
	if err := p.seenStore.Mark(ctx, msg.ID); err != nil {
		p.logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Failed to mark message processed.")
	}
}

// timedOut reports attempts cut short by the per-message timeout or by
// shutdown cancellation. Both are transient, so the envelope is nacked for
// redelivery instead of dead-lettered.
func timedOut(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		ctx.Err() != nil
}
