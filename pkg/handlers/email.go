package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/dispatch"
	"github.com/illmade-knight/go-crm-relay/pkg/emailer"
)

// ResetPasswordHandler emails the customer a password reset link.
type ResetPasswordHandler struct {
	email     emailer.Sender
	templates Templates
	logger    zerolog.Logger
}

func NewResetPasswordHandler(email emailer.Sender, templates Templates, logger zerolog.Logger) *ResetPasswordHandler {
	return &ResetPasswordHandler{
		email:     email,
		templates: templates,
		logger:    logger.With().Str("component", "ResetPasswordHandler").Logger(),
	}
}

func (h *ResetPasswordHandler) Process(ctx context.Context, e *crmevents.Event) (dispatch.Result, error) {
	to := e.CustomerEmail()
	h.logger.Info().Str("email", to).Msg("Processing reset password request.")

	err := h.email.SendTemplate(ctx, emailer.TemplateEmail{
		To:         to,
		TemplateID: h.templates.ResetPassword,
		TemplateData: map[string]interface{}{
			"token": e.String("token"),
			"email": to,
			"year":  time.Now().Year(),
		},
	})
	if err != nil {
		return dispatch.Result{Success: false, Error: fmt.Sprintf("send reset password email: %v", err)}, nil
	}

	return dispatch.Result{
		Success: true,
		Fields:  map[string]interface{}{"email": to},
	}, nil
}

// NewRegistrationHandler sends the welcome email for a fresh account.
type NewRegistrationHandler struct {
	email     emailer.Sender
	templates Templates
	logger    zerolog.Logger
}

func NewNewRegistrationHandler(email emailer.Sender, templates Templates, logger zerolog.Logger) *NewRegistrationHandler {
	return &NewRegistrationHandler{
		email:     email,
		templates: templates,
		logger:    logger.With().Str("component", "NewRegistrationHandler").Logger(),
	}
}

func (h *NewRegistrationHandler) Process(ctx context.Context, e *crmevents.Event) (dispatch.Result, error) {
	to := e.CustomerEmail()
	name := displayName(e)
	h.logger.Info().Str("email", to).Str("name", name).Msg("Processing new registration email.")

	err := h.email.SendTemplate(ctx, emailer.TemplateEmail{
		To:         to,
		TemplateID: h.templates.NewRegistration,
		TemplateData: map[string]interface{}{
			"name":  name,
			"email": to,
			"year":  time.Now().Year(),
		},
	})
	if err != nil {
		return dispatch.Result{Success: false, Error: fmt.Sprintf("Email sending failed: %v", err)}, nil
	}

	return dispatch.Result{
		Success: true,
		Fields:  map[string]interface{}{"email": to},
	}, nil
}
