package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/crmstore"
	"github.com/illmade-knight/go-crm-relay/pkg/dispatch"
	"github.com/illmade-knight/go-crm-relay/pkg/sheetlog"
)

// GmailInteractionHandler records an inbound customer email against the
// profile and appends it to the interaction sheet.
type GmailInteractionHandler struct {
	store  crmstore.CustomerStore
	sheet  sheetlog.Logger
	logger zerolog.Logger
}

func NewGmailInteractionHandler(store crmstore.CustomerStore, sheet sheetlog.Logger, logger zerolog.Logger) *GmailInteractionHandler {
	return &GmailInteractionHandler{
		store:  store,
		sheet:  sheet,
		logger: logger.With().Str("component", "GmailInteractionHandler").Logger(),
	}
}

func (h *GmailInteractionHandler) Process(ctx context.Context, e *crmevents.Event) (dispatch.Result, error) {
	emailBlock := e.Object("email")
	messageID := stringField(emailBlock, "messageId")
	subject := stringField(emailBlock, "subject")
	now := time.Now().UTC()

	h.logger.Info().
		Str("message_id", messageID).
		Str("thread_id", stringField(emailBlock, "threadId")).
		Msg("Processing Gmail interaction.")

	if err := h.store.UpsertCustomer(ctx, customerFromEvent(e, now)); err != nil {
		return dispatch.Result{Success: false, Error: fmt.Sprintf("upsert customer: %v", err)}, nil
	}

	row := []interface{}{
		stringField(emailBlock, "timestamp"),
		messageID,
		e.CustomerEmail(),
		subject,
		classifyEmail(subject),
		"replied",
	}
	if err := h.sheet.AppendRow(ctx, row); err != nil {
		return dispatch.Result{Success: false, Error: fmt.Sprintf("append interaction row: %v", err)}, nil
	}

	return dispatch.Result{
		Success: true,
		Fields:  map[string]interface{}{"messageId": messageID, "email": e.CustomerEmail()},
	}, nil
}

// classifyEmail buckets an inbound email by subject keywords. "inquiry" is
// the default when nothing matches.
func classifyEmail(subject string) string {
	s := strings.ToLower(subject)
	switch {
	case strings.Contains(s, "help") || strings.Contains(s, "support") || strings.Contains(s, "assistance"):
		return "support"
	case strings.Contains(s, "report") || strings.Contains(s, "issue"):
		return "report"
	case strings.Contains(s, "offer") || strings.Contains(s, "quote") || strings.Contains(s, "price"):
		return "offer"
	default:
		return "inquiry"
	}
}
