package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/crmstore"
	"github.com/illmade-knight/go-crm-relay/pkg/dispatch"
)

// ChatSummaryHandler persists a completed chat session against the
// customer's profile.
type ChatSummaryHandler struct {
	store  crmstore.CustomerStore
	logger zerolog.Logger
}

func NewChatSummaryHandler(store crmstore.CustomerStore, logger zerolog.Logger) *ChatSummaryHandler {
	return &ChatSummaryHandler{
		store:  store,
		logger: logger.With().Str("component", "ChatSummaryHandler").Logger(),
	}
}

func (h *ChatSummaryHandler) Process(ctx context.Context, e *crmevents.Event) (dispatch.Result, error) {
	chat := e.Object("chat")
	sessionID := stringField(chat, "sessionId")
	email := e.CustomerEmail()
	now := time.Now().UTC()

	h.logger.Info().
		Str("session_id", sessionID).
		Float64("message_count", numberField(chat, "messageCount")).
		Msg("Processing chat summary.")

	if err := h.store.UpsertCustomer(ctx, customerFromEvent(e, now)); err != nil {
		return dispatch.Result{Success: false, Error: fmt.Sprintf("upsert customer: %v", err)}, nil
	}

	record := crmstore.ChatRecord{
		SessionID:         sessionID,
		StartedAt:         stringField(chat, "startedAt"),
		EndedAt:           stringField(chat, "endedAt"),
		MessageCount:      int64(numberField(chat, "messageCount")),
		SatisfactionScore: numberField(chat, "satisfactionScore"),
		Summary:           stringField(chat, "summary"),
		Sentiment:         stringField(chat, "sentiment"),
		Topics:            stringsField(chat, "topics"),
		RecordedAt:        now,
	}
	if err := h.store.RecordChat(ctx, email, record); err != nil {
		return dispatch.Result{Success: false, Error: fmt.Sprintf("record chat %s: %v", sessionID, err)}, nil
	}

	return dispatch.Result{
		Success: true,
		Fields:  map[string]interface{}{"sessionId": sessionID, "email": email},
	}, nil
}
