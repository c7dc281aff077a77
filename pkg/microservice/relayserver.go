package microservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-crm-relay/pkg/deadletter"
	"github.com/illmade-knight/go-crm-relay/pkg/pipeline"
)

// InitializationError marks a startup failure that must abort the process;
// running degraded would silently drop customer events.
type InitializationError struct {
	Component string
	Err       error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialization failed for %s: %v", e.Component, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// RelayServerConfig holds the service-level settings.
type RelayServerConfig struct {
	HTTPPort        string
	PushPath        string
	ShutdownTimeout time.Duration
}

// NewRelayServerConfigDefaults provides standard ports and paths.
func NewRelayServerConfigDefaults() *RelayServerConfig {
	return &RelayServerConfig{
		HTTPPort:        ":8080",
		PushPath:        "/push-handler",
		ShutdownTimeout: 30 * time.Second,
	}
}

// RelayServer runs the full relay: the pull pipelines, the push endpoint,
// and the HTTP surface. A deployment typically runs two pull relays — the
// main subscription and the dead-letter subscription — but any of the
// ingresses may be absent.
type RelayServer struct {
	*BaseServer
	cfg          *RelayServerConfig
	relays       []*pipeline.RelayService
	push         *pipeline.PushHandler
	dlqPublisher deadletter.Publisher
	closers      []io.Closer
	logger       zerolog.Logger
}

// NewRelayServer assembles the service. closers are released last during
// shutdown, in the order given.
func NewRelayServer(
	cfg *RelayServerConfig,
	relays []*pipeline.RelayService,
	push *pipeline.PushHandler,
	dlqPublisher deadletter.Publisher,
	closers []io.Closer,
	logger zerolog.Logger,
) (*RelayServer, error) {
	if cfg == nil {
		return nil, errors.New("relay server config cannot be nil")
	}
	if len(relays) == 0 && push == nil {
		return nil, errors.New("at least one ingress (pull relay or push handler) is required")
	}
	for _, relay := range relays {
		if relay == nil {
			return nil, errors.New("relay services cannot be nil")
		}
	}

	server := &RelayServer{
		BaseServer:   NewBaseServer(logger, cfg.HTTPPort),
		cfg:          cfg,
		relays:       relays,
		push:         push,
		dlqPublisher: dlqPublisher,
		closers:      closers,
		logger:       logger.With().Str("component", "RelayServer").Logger(),
	}
	if push != nil {
		server.Mux().Handle(cfg.PushPath, push)
	}
	return server, nil
}

// Start brings the service up: HTTP first so health probes answer, then the
// pull relays. A failure at any step is fatal.
func (s *RelayServer) Start(ctx context.Context) error {
	if err := s.BaseServer.Start(); err != nil {
		return &InitializationError{Component: "http server", Err: err}
	}
	for i, relay := range s.relays {
		if err := relay.Start(ctx); err != nil {
			return &InitializationError{Component: fmt.Sprintf("pull relay %d", i), Err: err}
		}
	}
	s.logger.Info().Str("http_port", s.GetHTTPPort()).Msg("CRM relay started.")
	return nil
}

// Shutdown stops intake first, drains in-flight work, then releases clients.
// Every step runs even when an earlier one fails; the combined error is
// returned for logging.
func (s *RelayServer) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("CRM relay shutting down...")
	var shutdownErrs []error

	for _, relay := range s.relays {
		if err := relay.Stop(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Failed to stop pull relay.")
			shutdownErrs = append(shutdownErrs, err)
		}
	}
	if s.push != nil {
		if err := s.push.Drain(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Push handler drain incomplete.")
			shutdownErrs = append(shutdownErrs, err)
		}
	}
	if err := s.BaseServer.Shutdown(ctx); err != nil {
		shutdownErrs = append(shutdownErrs, err)
	}
	if s.dlqPublisher != nil {
		if err := s.dlqPublisher.Stop(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Failed to stop dead-letter publisher.")
			shutdownErrs = append(shutdownErrs, err)
		}
	}
	for _, closer := range s.closers {
		if err := closer.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to close client.")
			shutdownErrs = append(shutdownErrs, err)
		}
	}

	s.logger.Info().Msg("CRM relay stopped.")
	return errors.Join(shutdownErrs...)
}
