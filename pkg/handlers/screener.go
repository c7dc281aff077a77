package handlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/dispatch"
	"github.com/illmade-knight/go-crm-relay/pkg/emailer"
	"github.com/illmade-knight/go-crm-relay/pkg/sheetlog"
)

// ReportSource fetches the pre-rendered free report for a screener session.
type ReportSource interface {
	FetchReport(ctx context.Context, sessionID string) (string, error)
}

// ScreenerHandler delivers the free report for a completed screener session.
// The sheet update is best-effort: a CRM logging failure must never block the
// customer's report. The report fetch and send are the decisive steps.
type ScreenerHandler struct {
	sheet     sheetlog.Logger
	email     emailer.Sender
	reports   ReportSource
	templates Templates
	logger    zerolog.Logger
}

func NewScreenerHandler(sheet sheetlog.Logger, email emailer.Sender, reports ReportSource, templates Templates, logger zerolog.Logger) *ScreenerHandler {
	return &ScreenerHandler{
		sheet:     sheet,
		email:     email,
		reports:   reports,
		templates: templates,
		logger:    logger.With().Str("component", "ScreenerHandler").Logger(),
	}
}

func (h *ScreenerHandler) Process(ctx context.Context, e *crmevents.Event) (dispatch.Result, error) {
	sessionID := e.SessionID()
	email := e.CustomerEmail()
	h.logger.Info().Str("session_id", sessionID).Msg("Processing screener notification.")

	emailLogged := true
	if err := h.sheet.UpdateEmailSubmission(ctx, sessionID, email); err != nil {
		emailLogged = false
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to log email submission to sheet.")
	}

	reportHTML, err := h.reports.FetchReport(ctx, sessionID)
	if err != nil {
		return dispatch.Result{
			Success: false,
			Error:   fmt.Sprintf("fetch report for session %s: %v", sessionID, err),
			Fields:  map[string]interface{}{"emailLogged": emailLogged, "reportSent": false},
		}, nil
	}

	err = h.email.SendTemplate(ctx, emailer.TemplateEmail{
		To:         email,
		TemplateID: h.templates.FreeReport,
		TemplateData: map[string]interface{}{
			"name":       displayName(e),
			"reportHtml": reportHTML,
			"sessionId":  sessionID,
		},
	})
	if err != nil {
		return dispatch.Result{
			Success: false,
			Error:   fmt.Sprintf("send free report: %v", err),
			Fields:  map[string]interface{}{"emailLogged": emailLogged, "reportSent": false},
		}, nil
	}

	h.logger.Info().Str("session_id", sessionID).Msg("Free report sent.")
	return dispatch.Result{
		Success: true,
		Fields: map[string]interface{}{
			"sessionId":   sessionID,
			"emailLogged": emailLogged,
			"reportSent":  true,
		},
	}, nil
}
