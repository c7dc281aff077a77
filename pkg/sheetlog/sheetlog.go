// Package sheetlog records customer interactions in a Google Sheet. The
// sheet acts as a lightweight CRM view for non-technical staff, so writes
// retry through transient network failures rather than fail the event.
package sheetlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the capability handlers depend on.
type Logger interface {
	// AppendRow adds a new interaction row to the sheet.
	AppendRow(ctx context.Context, values []interface{}) error
	// UpdateEmailSubmission finds the row for sessionID and records the
	// customer's email address against it.
	UpdateEmailSubmission(ctx context.Context, sessionID, email string) error
}

// valuesAPI is the narrow slice of the Sheets values API the service uses.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, readRange string) ([][]interface{}, error)
	Append(ctx context.Context, spreadsheetID, writeRange string, values [][]interface{}) error
	Update(ctx context.Context, spreadsheetID, writeRange string, values [][]interface{}) error
}

// Config holds the sheet coordinates and retry policy.
type Config struct {
	SpreadsheetID string
	SheetName     string
	ReadRange     string
	MaxRetries    int
	RetryDelay    time.Duration
}

// NewConfigDefaults provides defaults for a spreadsheet ID.
func NewConfigDefaults(spreadsheetID string) *Config {
	return &Config{
		SpreadsheetID: spreadsheetID,
		SheetName:     "Sheet1",
		ReadRange:     "Sheet1!A:P",
		MaxRetries:    3,
		RetryDelay:    time.Second,
	}
}

// SheetService implements Logger over the Sheets v4 values API.
type SheetService struct {
	cfg    *Config
	api    valuesAPI
	logger zerolog.Logger
}

// NewSheetService creates a service over the given API client.
func NewSheetService(cfg *Config, api valuesAPI, logger zerolog.Logger) (*SheetService, error) {
	if cfg == nil || cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID is required")
	}
	if api == nil {
		return nil, fmt.Errorf("sheets API client cannot be nil")
	}
	return &SheetService{
		cfg:    cfg,
		api:    api,
		logger: logger.With().Str("component", "SheetService").Logger(),
	}, nil
}

// AppendRow adds one row of interaction data, retrying transient failures.
func (s *SheetService) AppendRow(ctx context.Context, values []interface{}) error {
	err := s.retryOperation(ctx, func() error {
		return s.api.Append(ctx, s.cfg.SpreadsheetID, s.cfg.SheetName, [][]interface{}{values})
	})
	if err != nil {
		return fmt.Errorf("append sheet row: %w", err)
	}
	s.logger.Info().Msg("Successfully appended row to sheet.")
	return nil
}

// UpdateEmailSubmission writes the customer email into column I of the row
// whose session ID occupies column B.
func (s *SheetService) UpdateEmailSubmission(ctx context.Context, sessionID, email string) error {
	rowIndex, err := s.findRowBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if rowIndex < 0 {
		return fmt.Errorf("session ID %s not found in spreadsheet", sessionID)
	}

	writeRange := fmt.Sprintf("%s!I%d", s.cfg.SheetName, rowIndex+1)
	err = s.retryOperation(ctx, func() error {
		return s.api.Update(ctx, s.cfg.SpreadsheetID, writeRange, [][]interface{}{{email}})
	})
	if err != nil {
		return fmt.Errorf("update email submission: %w", err)
	}
	s.logger.Info().Str("session_id", sessionID).Msg("Successfully updated email in sheet.")
	return nil
}

// findRowBySessionID returns the zero-based row index, or -1 if absent.
func (s *SheetService) findRowBySessionID(ctx context.Context, sessionID string) (int, error) {
	var rows [][]interface{}
	err := s.retryOperation(ctx, func() error {
		var getErr error
		rows, getErr = s.api.Get(ctx, s.cfg.SpreadsheetID, s.cfg.ReadRange)
		return getErr
	})
	if err != nil {
		return -1, fmt.Errorf("read sheet rows: %w", err)
	}

	for i, row := range rows {
		if len(row) > 1 && fmt.Sprintf("%v", row[1]) == sessionID {
			return i, nil
		}
	}
	return -1, nil
}

func (s *SheetService) retryOperation(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if attempt >= s.cfg.MaxRetries || !isRetryableError(lastErr) {
			return lastErr
		}
		s.logger.Info().Int("attempt", attempt+1).Int("max_retries", s.cfg.MaxRetries).Msg("Retrying sheet operation...")
		select {
		case <-time.After(s.cfg.RetryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Transient network failure signatures worth retrying. Anything else, API
// rejections included, surfaces immediately.
var retryableErrorSignatures = []string{
	"socket disconnected",
	"econnreset",
	"etimedout",
	"esockettimedout",
	"econnrefused",
	"enotfound",
	"enetunreach",
	"socket hang up",
	"connection reset",
	"connection refused",
	"i/o timeout",
	"unexpected eof",
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, signature := range retryableErrorSignatures {
		if strings.Contains(msg, signature) {
			return true
		}
	}
	return false
}
