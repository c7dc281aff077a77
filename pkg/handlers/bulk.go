package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/crmstore"
	"github.com/illmade-knight/go-crm-relay/pkg/dispatch"
	"github.com/illmade-knight/go-crm-relay/pkg/sheetlog"
)

// BulkAppraisalEmailHandler opens a draft bulk appraisal when a customer
// submits their email mid-session: the customer profile is updated, a draft
// appraisal record is stored, and the submission is logged to the audit
// spreadsheet. The sheet append is best-effort.
type BulkAppraisalEmailHandler struct {
	store  crmstore.CustomerStore
	sheet  sheetlog.Logger
	logger zerolog.Logger
}

func NewBulkAppraisalEmailHandler(store crmstore.CustomerStore, sheet sheetlog.Logger, logger zerolog.Logger) *BulkAppraisalEmailHandler {
	return &BulkAppraisalEmailHandler{
		store:  store,
		sheet:  sheet,
		logger: logger.With().Str("component", "BulkAppraisalEmailHandler").Logger(),
	}
}

func (h *BulkAppraisalEmailHandler) Process(ctx context.Context, e *crmevents.Event) (dispatch.Result, error) {
	meta := e.Metadata()
	sessionID := stringField(meta, "sessionId")
	submittedAt := time.Unix(int64(numberField(meta, "timestamp")), 0).UTC()
	now := time.Now().UTC()

	h.logger.Info().
		Str("session_id", sessionID).
		Str("email", e.CustomerEmail()).
		Msg("Processing bulk appraisal email update.")

	if err := h.store.UpsertCustomer(ctx, customerFromEvent(e, now)); err != nil {
		return dispatch.Result{Success: false, Error: fmt.Sprintf("upsert customer: %v", err)}, nil
	}

	record := crmstore.AppraisalRecord{
		SessionID:     sessionID,
		CustomerEmail: e.CustomerEmail(),
		ServiceType:   "regular",
		RequestDate:   submittedAt.Format(time.RFC3339),
		Status:        "draft",
		RecordedAt:    now,
	}
	if err := h.store.RecordAppraisal(ctx, record); err != nil {
		return dispatch.Result{Success: false, Error: fmt.Sprintf("record draft appraisal %s: %v", sessionID, err)}, nil
	}

	row := []interface{}{
		submittedAt.Format(time.RFC3339),
		sessionID,
		e.CustomerEmail(),
		"Email Submitted",
	}
	if err := h.sheet.AppendRow(ctx, row); err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to log bulk appraisal email to sheet.")
	}

	return dispatch.Result{
		Success: true,
		Fields: map[string]interface{}{
			"sessionId": sessionID,
			"email":     e.CustomerEmail(),
			"status":    "draft",
		},
	}, nil
}

// BulkAppraisalFinalizedHandler acknowledges a finalized bulk appraisal.
// Finalization is owned by the appraisal backend; the relay only records
// that the session closed.
type BulkAppraisalFinalizedHandler struct {
	logger zerolog.Logger
}

func NewBulkAppraisalFinalizedHandler(logger zerolog.Logger) *BulkAppraisalFinalizedHandler {
	return &BulkAppraisalFinalizedHandler{
		logger: logger.With().Str("component", "BulkAppraisalFinalizedHandler").Logger(),
	}
}

func (h *BulkAppraisalFinalizedHandler) Process(_ context.Context, e *crmevents.Event) (dispatch.Result, error) {
	appraisal := e.Object("appraisal")
	sessionID := stringField(appraisal, "sessionId")
	appraisalType := stringField(appraisal, "type")
	itemCount := numberField(appraisal, "itemCount")

	h.logger.Info().
		Str("session_id", sessionID).
		Str("appraisal_type", appraisalType).
		Float64("item_count", itemCount).
		Msg("Bulk appraisal finalized.")

	return dispatch.Result{
		Success: true,
		Fields: map[string]interface{}{
			"sessionId": sessionID,
			"type":      appraisalType,
			"itemCount": itemCount,
		},
	}, nil
}
