package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/crmstore"
	"github.com/illmade-knight/go-crm-relay/pkg/dispatch"
	"github.com/illmade-knight/go-crm-relay/pkg/emailer"
)

// AppraisalRequestHandler records a new appraisal request against the
// customer's profile.
type AppraisalRequestHandler struct {
	store  crmstore.CustomerStore
	logger zerolog.Logger
}

func NewAppraisalRequestHandler(store crmstore.CustomerStore, logger zerolog.Logger) *AppraisalRequestHandler {
	return &AppraisalRequestHandler{
		store:  store,
		logger: logger.With().Str("component", "AppraisalRequestHandler").Logger(),
	}
}

func (h *AppraisalRequestHandler) Process(ctx context.Context, e *crmevents.Event) (dispatch.Result, error) {
	appraisal := e.Object("appraisal")
	sessionID := stringField(appraisal, "sessionId")
	now := time.Now().UTC()

	h.logger.Info().
		Str("session_id", sessionID).
		Str("service_type", stringField(appraisal, "serviceType")).
		Msg("Processing appraisal request.")

	if err := h.store.UpsertCustomer(ctx, customerFromEvent(e, now)); err != nil {
		return dispatch.Result{Success: false, Error: fmt.Sprintf("upsert customer: %v", err)}, nil
	}

	record := crmstore.AppraisalRecord{
		SessionID:     sessionID,
		CustomerEmail: e.CustomerEmail(),
		ServiceType:   stringField(appraisal, "serviceType"),
		RequestDate:   stringField(appraisal, "requestDate"),
		Status:        stringField(appraisal, "status"),
		RecordedAt:    now,
	}
	if err := h.store.RecordAppraisal(ctx, record); err != nil {
		return dispatch.Result{Success: false, Error: fmt.Sprintf("record appraisal %s: %v", sessionID, err)}, nil
	}

	return dispatch.Result{
		Success: true,
		Fields:  map[string]interface{}{"sessionId": sessionID, "email": e.CustomerEmail()},
	}, nil
}

// AppraisalReadyConfig holds the fallback report location.
type AppraisalReadyConfig struct {
	// ReportURLTemplate receives the appraisal ID when the event carries no
	// explicit reportUrl.
	ReportURLTemplate string
}

// NewAppraisalReadyConfigDefaults points at the customer dashboard.
func NewAppraisalReadyConfigDefaults(dashboardBaseURL string) *AppraisalReadyConfig {
	return &AppraisalReadyConfig{
		ReportURLTemplate: dashboardBaseURL + "/appraisals/%s/report",
	}
}

// AppraisalReadyHandler marks the appraisal delivered and emails the
// customer a link to the finished report. The store update is best-effort:
// a bookkeeping failure must not withhold the customer's notification.
type AppraisalReadyHandler struct {
	cfg       *AppraisalReadyConfig
	store     crmstore.CustomerStore
	email     emailer.Sender
	templates Templates
	logger    zerolog.Logger
}

func NewAppraisalReadyHandler(cfg *AppraisalReadyConfig, store crmstore.CustomerStore, email emailer.Sender, templates Templates, logger zerolog.Logger) *AppraisalReadyHandler {
	return &AppraisalReadyHandler{
		cfg:       cfg,
		store:     store,
		email:     email,
		templates: templates,
		logger:    logger.With().Str("component", "AppraisalReadyHandler").Logger(),
	}
}

func (h *AppraisalReadyHandler) Process(ctx context.Context, e *crmevents.Event) (dispatch.Result, error) {
	appraisal := e.Object("appraisal")
	appraisalID := stringField(appraisal, "id")
	now := time.Now().UTC()

	h.logger.Info().Str("appraisal_id", appraisalID).Msg("Processing appraisal ready notification.")

	if err := h.store.UpsertCustomer(ctx, customerFromEvent(e, now)); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to upsert customer.")
	}
	if err := h.store.MarkAppraisalComplete(ctx, appraisalID); err != nil {
		h.logger.Warn().Err(err).Str("appraisal_id", appraisalID).Msg("Failed to mark appraisal complete.")
	}

	reportURL := stringField(appraisal, "reportUrl")
	if reportURL == "" {
		reportURL = fmt.Sprintf(h.cfg.ReportURLTemplate, appraisalID)
	}

	err := h.email.SendTemplate(ctx, emailer.TemplateEmail{
		To:         e.CustomerEmail(),
		TemplateID: h.templates.AppraisalReady,
		TemplateData: map[string]interface{}{
			"name":            displayName(e),
			"appraisalId":     appraisalID,
			"reportUrl":       reportURL,
			"itemDescription": stringField(appraisal, "itemDescription"),
			"estimatedValue":  stringField(appraisal, "estimatedValue"),
		},
	})
	if err != nil {
		return dispatch.Result{Success: false, Error: fmt.Sprintf("send ready notification: %v", err)}, nil
	}

	return dispatch.Result{
		Success: true,
		Fields:  map[string]interface{}{"appraisalId": appraisalID, "email": e.CustomerEmail()},
	}, nil
}
