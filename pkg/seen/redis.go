package seen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis-backed marker store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL bounds how long a marker lives. It should exceed the broker's
	// redelivery horizon; after that a duplicate can no longer arrive.
	TTL time.Duration
}

// NewRedisConfigDefaults provides defaults for an address.
func NewRedisConfigDefaults(addr string) *RedisConfig {
	return &RedisConfig{
		Addr:      addr,
		KeyPrefix: "crm-relay:seen:",
		TTL:       24 * time.Hour,
	}
}

// RedisStore is the production marker store.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    zerolog.Logger
}

// NewRedisStore creates and connects the store, pinging the server to
// ensure connectivity before returning.
func NewRedisStore(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisStore{
		client:    rdb,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
		logger:    logger.With().Str("component", "RedisSeenStore").Logger(),
	}, nil
}

// Seen reports whether the message id has a live marker.
func (s *RedisStore) Seen(ctx context.Context, messageID string) (bool, error) {
	err := s.client.Get(ctx, s.keyPrefix+messageID).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return false, fmt.Errorf("redis get: %w", err)
}

// Mark records the message id with the configured TTL.
func (s *RedisStore) Mark(ctx context.Context, messageID string) error {
	if err := s.client.Set(ctx, s.keyPrefix+messageID, "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	s.logger.Info().Msg("Closing Redis client connection...")
	return s.client.Close()
}
