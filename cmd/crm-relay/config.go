package main

import (
	"fmt"
	"os"
	"time"

	"github.com/illmade-knight/go-crm-relay/pkg/handlers"
)

// config holds everything the relay reads from the environment. Template IDs
// keep the provider's env naming so deployments carry over unchanged.
type config struct {
	ProjectID       string
	CredentialsFile string
	LogLevel        string
	HTTPPort        string

	SubscriptionID string
	PushEnabled    bool
	ProcessTimeout time.Duration

	DLQTopicID        string
	DLQSubscriptionID string
	DLQArchiveBucket  string

	RedisAddr     string
	RedisPassword string

	SpreadsheetID string
	ReportsBucket string

	SendGridAPIKey   string
	SendGridFrom     string
	SendGridFromName string
	Templates        handlers.Templates

	DashboardBaseURL string
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func loadConfig() (*config, error) {
	cfg := &config{
		ProjectID:        os.Getenv("PROJECT_ID"),
		CredentialsFile:  os.Getenv("CREDENTIALS_FILE"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		HTTPPort:         envOr("HTTP_PORT", ":8080"),
		SubscriptionID:   envOr("PUBSUB_SUBSCRIPTION_ID", "crm-messages-sub"),
		PushEnabled:      envOr("PUSH_ENABLED", "true") == "true",
		ProcessTimeout:   30 * time.Second,
		DLQTopicID:       envOr("DLQ_TOPIC_ID", "crm-messages-dlq"),
		DLQArchiveBucket: os.Getenv("DLQ_ARCHIVE_BUCKET"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		SpreadsheetID:    os.Getenv("SPREADSHEET_ID"),
		ReportsBucket:    os.Getenv("REPORTS_BUCKET"),
		SendGridAPIKey:   os.Getenv("SENDGRID_API_KEY"),
		SendGridFrom:     os.Getenv("SENDGRID_FROM_EMAIL"),
		SendGridFromName: envOr("SENDGRID_FROM_NAME", "CRM Relay"),
		Templates: handlers.Templates{
			FreeReport:      os.Getenv("SENDGRID_FREEREPORT"),
			PersonalOffer:   os.Getenv("SENDGRID_PERSONALOFFER"),
			AppraisalReady:  os.Getenv("SENDGRID_APPRAISALREADY"),
			ResetPassword:   os.Getenv("SENDGRID_RESETPASSWORD"),
			NewRegistration: os.Getenv("SENDGRID_NEWREGISTRATION"),
		},
		DashboardBaseURL: envOr("DASHBOARD_BASE_URL", "https://dashboard.example.com"),
	}

	// The retry subscription follows the DLQ topic's name by convention.
	cfg.DLQSubscriptionID = envOr("DLQ_SUBSCRIPTION_ID", cfg.DLQTopicID+"-sub")

	if raw := os.Getenv("PROCESS_TIMEOUT"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid PROCESS_TIMEOUT %q: %w", raw, err)
		}
		cfg.ProcessTimeout = timeout
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID is required")
	}
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("SPREADSHEET_ID is required")
	}
	if cfg.ReportsBucket == "" {
		return nil, fmt.Errorf("REPORTS_BUCKET is required")
	}
	if cfg.SendGridAPIKey == "" || cfg.SendGridFrom == "" {
		return nil, fmt.Errorf("SENDGRID_API_KEY and SENDGRID_FROM_EMAIL are required")
	}
	if cfg.SubscriptionID == "" && !cfg.PushEnabled {
		return nil, fmt.Errorf("no ingress configured: set PUBSUB_SUBSCRIPTION_ID or PUSH_ENABLED=true")
	}
	return cfg, nil
}
