package crmstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// BigQueryConfig holds the destination table for payment records.
type BigQueryConfig struct {
	DatasetID string
	TableID   string
}

// NewBigQueryConfigDefaults provides the standard payment ledger location.
func NewBigQueryConfigDefaults() *BigQueryConfig {
	return &BigQueryConfig{
		DatasetID: "crm",
		TableID:   "payments",
	}
}

// NewBigQueryClient creates a client, using a credentials file when one is
// configured and Application Default Credentials otherwise.
func NewBigQueryClient(ctx context.Context, projectID, credentialsFile string, logger zerolog.Logger) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	logger.Info().Str("project_id", projectID).Msg("BigQuery client created.")
	return client, nil
}

// BigQueryPaymentStore implements PaymentStore by streaming rows into the
// configured table.
type BigQueryPaymentStore struct {
	table    *bigquery.Table
	inserter *bigquery.Inserter
	logger   zerolog.Logger
}

// NewBigQueryPaymentStore verifies the destination table exists, creating it
// with a schema inferred from PaymentRecord if it does not.
func NewBigQueryPaymentStore(ctx context.Context, client *bigquery.Client, cfg *BigQueryConfig, logger zerolog.Logger) (*BigQueryPaymentStore, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	if cfg == nil {
		cfg = NewBigQueryConfigDefaults()
	}
	logger = logger.With().
		Str("component", "BigQueryPaymentStore").
		Str("dataset_id", cfg.DatasetID).
		Str("table_id", cfg.TableID).
		Logger()

	tableRef := client.Dataset(cfg.DatasetID).Table(cfg.TableID)
	_, err := tableRef.Metadata(ctx)
	if err != nil {
		if !strings.Contains(err.Error(), "notFound") {
			return nil, fmt.Errorf("get payments table metadata: %w", err)
		}
		logger.Warn().Msg("Payments table not found. Creating with inferred schema.")
		schema, inferErr := bigquery.InferSchema(PaymentRecord{})
		if inferErr != nil {
			return nil, fmt.Errorf("infer payments schema: %w", inferErr)
		}
		if createErr := tableRef.Create(ctx, &bigquery.TableMetadata{Schema: schema}); createErr != nil {
			return nil, fmt.Errorf("create payments table %s.%s: %w", cfg.DatasetID, cfg.TableID, createErr)
		}
	}

	return &BigQueryPaymentStore{
		table:    tableRef,
		inserter: tableRef.Inserter(),
		logger:   logger,
	}, nil
}

// InsertPayment streams one payment row. Row-level failures are logged
// individually before the wrapped error returns.
func (s *BigQueryPaymentStore) InsertPayment(ctx context.Context, payment *PaymentRecord) error {
	if payment == nil {
		return errors.New("payment record cannot be nil")
	}

	err := s.inserter.Put(ctx, payment)
	if err != nil {
		var multiErr bigquery.PutMultiError
		if errors.As(err, &multiErr) {
			for _, rowErr := range multiErr {
				s.logger.Error().Int("row_index", rowErr.RowIndex).Msgf("BigQuery insert error for row: %v", rowErr.Errors)
			}
		}
		return fmt.Errorf("bigquery Inserter.Put failed: %w", err)
	}

	s.logger.Debug().Str("payment_intent_id", payment.PaymentIntentID).Msg("Payment record inserted.")
	return nil
}

// Close is a no-op; the BigQuery client's lifecycle is managed externally.
func (s *BigQueryPaymentStore) Close() error {
	return nil
}
