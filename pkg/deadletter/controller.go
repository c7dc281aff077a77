package deadletter

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Publisher sends a serialized record to the dead-letter topic. Safe for
// concurrent use; failures on the pull and push paths publish through the
// same instance.
type Publisher interface {
	Publish(ctx context.Context, payload []byte, attributes map[string]string) error
	Stop(ctx context.Context) error
}

// Archiver persists a record that has been dropped at the retry ceiling so
// operators can inspect it after the topic has forgotten it.
type Archiver interface {
	Archive(ctx context.Context, record Record) error
}

// ControllerConfig holds dead-letter policy settings.
type ControllerConfig struct {
	MaxRetries int
}

// NewControllerDefaults provides the default policy, overridable via the
// DLQ_MAX_RETRIES environment variable.
func NewControllerDefaults() *ControllerConfig {
	cfg := &ControllerConfig{MaxRetries: 3}
	if raw := os.Getenv("DLQ_MAX_RETRIES"); raw != "" {
		if val, err := strconv.Atoi(raw); err == nil && val >= 0 {
			cfg.MaxRetries = val
		}
	}
	return cfg
}

// Controller wraps failed messages into records, republishes them, and
// enforces the retry ceiling.
type Controller struct {
	cfg       *ControllerConfig
	publisher Publisher
	archiver  Archiver
	logger    zerolog.Logger
	now       func() time.Time
}

// NewController creates a Controller. The archiver may be nil, in which case
// dropped records are only logged.
func NewController(cfg *ControllerConfig, publisher Publisher, archiver Archiver, logger zerolog.Logger) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("controller config cannot be nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("dead-letter publisher cannot be nil")
	}
	return &Controller{
		cfg:       cfg,
		publisher: publisher,
		archiver:  archiver,
		logger:    logger.With().Str("component", "DeadLetterController").Logger(),
		now:       time.Now,
	}, nil
}

// Publish routes a failed envelope to the dead-letter topic. If the payload
// is itself a redelivered record, the existing retry counter is carried
// forward and incremented; otherwise a fresh record starts at zero.
func (c *Controller) Publish(ctx context.Context, original OriginalMessage, payload []byte, failure error) error {
	var record Record
	if prior, ok := ParseRecord(payload); ok {
		record = prior.WithRetry(failure, c.now())
	} else {
		record = NewRecord(original, failure, c.now())
	}

	data, err := record.Marshal()
	if err != nil {
		return fmt.Errorf("marshal dead-letter record: %w", err)
	}
	if err := c.publisher.Publish(ctx, data, original.Attributes); err != nil {
		return fmt.Errorf("publish dead-letter record: %w", err)
	}

	c.logger.Warn().
		Str("original_msg_id", record.OriginalMessage.ID).
		Str("error_name", record.Error.Name).
		Int("retry_count", record.RetryCount).
		Msg("Message routed to dead-letter topic.")
	return nil
}

// ShouldDrop reports whether a redelivered record has exhausted its retries
// or carries a failure that can never succeed.
func (c *Controller) ShouldDrop(record Record) bool {
	return record.RetryCount >= c.cfg.MaxRetries || !record.Retryable()
}

// Drop archives a record that will not be processed again. Archive failures
// are logged, not returned: dropping is best-effort by policy and must not
// keep the record alive.
func (c *Controller) Drop(ctx context.Context, record Record) {
	c.logger.Warn().
		Str("original_msg_id", record.OriginalMessage.ID).
		Str("error_name", record.Error.Name).
		Int("retry_count", record.RetryCount).
		Msg("Dropping dead-letter record.")

	if c.archiver == nil {
		return
	}
	if err := c.archiver.Archive(ctx, record); err != nil {
		c.logger.Error().Err(err).
			Str("original_msg_id", record.OriginalMessage.ID).
			Msg("Failed to archive dropped record.")
	}
}

// MaxRetries exposes the configured ceiling for logging and inspection.
func (c *Controller) MaxRetries() int {
	return c.cfg.MaxRetries
}
