// The crm-relay binary receives CRM events from Pub/Sub, pull and push, and
// dispatches them to the business handlers.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/illmade-knight/go-crm-relay/pkg/crmstore"
	"github.com/illmade-knight/go-crm-relay/pkg/deadletter"
	"github.com/illmade-knight/go-crm-relay/pkg/emailer"
	"github.com/illmade-knight/go-crm-relay/pkg/handlers"
	"github.com/illmade-knight/go-crm-relay/pkg/microservice"
	"github.com/illmade-knight/go-crm-relay/pkg/pipeline"
	"github.com/illmade-knight/go-crm-relay/pkg/seen"
	"github.com/illmade-knight/go-crm-relay/pkg/sheetlog"
	"github.com/illmade-knight/go-crm-relay/pkg/validation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "crm-relay").Logger()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Configuration load failed")
	}
	if level, parseErr := zerolog.ParseLevel(cfg.LogLevel); parseErr == nil {
		zerolog.SetGlobalLevel(level)
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var closers []io.Closer

	// Clients.
	pubsubClient, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Pub/Sub client")
	}
	closers = append(closers, pubsubClient)

	firestoreClient, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Firestore client")
	}
	closers = append(closers, firestoreClient)

	storageClient, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Storage client")
	}
	closers = append(closers, storageClient)

	bigqueryClient, err := crmstore.NewBigQueryClient(ctx, cfg.ProjectID, cfg.CredentialsFile, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	closers = append(closers, bigqueryClient)

	// Idempotency store: Redis when configured, in-memory otherwise.
	var seenStore seen.Store
	if cfg.RedisAddr != "" {
		redisCfg := seen.NewRedisConfigDefaults(cfg.RedisAddr)
		redisCfg.Password = cfg.RedisPassword
		seenStore, err = seen.NewRedisStore(ctx, redisCfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect idempotency store")
		}
	} else {
		logger.Warn().Msg("REDIS_ADDR not set, duplicate suppression is per-process only.")
		seenStore = seen.NewInMemoryStore()
	}
	closers = append(closers, seenStore)

	// Collaborators.
	customerStore, err := crmstore.NewFirestoreCustomerStore(crmstore.NewFirestoreConfigDefaults(), firestoreClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create customer store")
	}
	paymentStore, err := crmstore.NewBigQueryPaymentStore(ctx, bigqueryClient, crmstore.NewBigQueryConfigDefaults(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create payment store")
	}

	sheetsAdapter, err := sheetlog.NewGoogleSheetsAdapter(ctx, clientOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Sheets client")
	}
	sheet, err := sheetlog.NewSheetService(sheetlog.NewConfigDefaults(cfg.SpreadsheetID), sheetsAdapter, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create sheet service")
	}

	emailCfg := emailer.NewSendGridConfigDefaults(cfg.SendGridAPIKey, cfg.SendGridFrom)
	emailCfg.FromName = cfg.SendGridFromName
	sender, err := emailer.NewSendGridClient(emailCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create email client")
	}

	reports, err := handlers.NewGCSReportSource(handlers.NewGCSReportConfigDefaults(cfg.ReportsBucket), storageClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create report source")
	}

	// Dead-letter controller.
	dlqPublisher, err := deadletter.NewGooglePublisher(ctx, deadletter.NewGooglePublisherDefaults(cfg.DLQTopicID), pubsubClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create dead-letter publisher")
	}
	var archiver deadletter.Archiver
	if cfg.DLQArchiveBucket != "" {
		archiver, err = deadletter.NewGCSArchiver(
			deadletter.NewGCSClientAdapter(storageClient),
			deadletter.GCSArchiverConfig{BucketName: cfg.DLQArchiveBucket, ObjectPrefix: "dead-letter"},
			logger,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create dead-letter archiver")
		}
	}
	controller, err := deadletter.NewController(deadletter.NewControllerDefaults(), dlqPublisher, archiver, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create dead-letter controller")
	}

	// Pipeline.
	registry, err := handlers.NewDefaultRegistry(handlers.Deps{
		Store:          customerStore,
		Payments:       paymentStore,
		Sheet:          sheet,
		Email:          sender,
		Reports:        reports,
		Templates:      cfg.Templates,
		AppraisalReady: handlers.NewAppraisalReadyConfigDefaults(cfg.DashboardBaseURL),
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build handler registry")
	}

	processor, err := pipeline.NewProcessor(validation.NewValidator(), registry, controller, seenStore, cfg.ProcessTimeout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create processor")
	}

	var relays []*pipeline.RelayService
	if cfg.SubscriptionID != "" {
		consumer, consumerErr := pipeline.NewGooglePubsubConsumer(ctx, pipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID), pubsubClient, logger)
		if consumerErr != nil {
			logger.Fatal().Err(consumerErr).Msg("Failed to create Pub/Sub consumer")
		}
		relay, relayErr := pipeline.NewRelayService(consumer, processor, logger)
		if relayErr != nil {
			logger.Fatal().Err(relayErr).Msg("Failed to create relay service")
		}
		relays = append(relays, relay)
	}

	// Redelivered dead-letter records come back through their own
	// subscription and re-enter the same processor.
	if cfg.DLQSubscriptionID != "" {
		dlqConsumer, consumerErr := pipeline.NewGooglePubsubConsumer(ctx, pipeline.NewGooglePubsubConsumerDefaults(cfg.DLQSubscriptionID), pubsubClient, logger)
		if consumerErr != nil {
			logger.Fatal().Err(consumerErr).Msg("Failed to create dead-letter Pub/Sub consumer")
		}
		dlqRelay, relayErr := pipeline.NewRelayService(dlqConsumer, processor, logger)
		if relayErr != nil {
			logger.Fatal().Err(relayErr).Msg("Failed to create dead-letter relay service")
		}
		relays = append(relays, dlqRelay)
	}

	var push *pipeline.PushHandler
	if cfg.PushEnabled {
		push = pipeline.NewPushHandler(ctx, processor, logger)
	}

	serverCfg := microservice.NewRelayServerConfigDefaults()
	serverCfg.HTTPPort = cfg.HTTPPort
	server, err := microservice.NewRelayServer(serverCfg, relays, push, dlqPublisher, closers, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to assemble relay server")
	}

	if err := server.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Relay startup failed")
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown completed with errors")
		os.Exit(1)
	}
}
