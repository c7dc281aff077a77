package handlers

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/crmstore"
	"github.com/illmade-knight/go-crm-relay/pkg/dispatch"
	"github.com/illmade-knight/go-crm-relay/pkg/emailer"
	"github.com/illmade-knight/go-crm-relay/pkg/sheetlog"
)

// Deps bundles the collaborators the full handler set needs.
type Deps struct {
	Store          crmstore.CustomerStore
	Payments       crmstore.PaymentStore
	Sheet          sheetlog.Logger
	Email          emailer.Sender
	Reports        ReportSource
	Templates      Templates
	AppraisalReady *AppraisalReadyConfig
	Logger         zerolog.Logger
}

// NewDefaultRegistry wires every event type in the catalogue to its handler.
func NewDefaultRegistry(deps Deps) (*dispatch.Registry, error) {
	if deps.Store == nil || deps.Payments == nil || deps.Sheet == nil || deps.Email == nil || deps.Reports == nil {
		return nil, fmt.Errorf("all handler collaborators are required")
	}
	if deps.AppraisalReady == nil {
		return nil, fmt.Errorf("appraisal ready config is required")
	}

	return dispatch.NewRegistry(map[string]dispatch.Handler{
		crmevents.TypeScreenerNotification:       NewScreenerHandler(deps.Sheet, deps.Email, deps.Reports, deps.Templates, deps.Logger),
		crmevents.TypeChatSummary:                NewChatSummaryHandler(deps.Store, deps.Logger),
		crmevents.TypeGmailInteraction:           NewGmailInteractionHandler(deps.Store, deps.Sheet, deps.Logger),
		crmevents.TypeAppraisalRequest:           NewAppraisalRequestHandler(deps.Store, deps.Logger),
		crmevents.TypeAppraisalReadyNotification: NewAppraisalReadyHandler(deps.AppraisalReady, deps.Store, deps.Email, deps.Templates, deps.Logger),
		crmevents.TypeStripePayment:              NewStripePaymentHandler(deps.Store, deps.Payments, deps.Logger),
		crmevents.TypeResetPasswordRequest:       NewResetPasswordHandler(deps.Email, deps.Templates, deps.Logger),
		crmevents.TypeNewRegistrationEmail:       NewNewRegistrationHandler(deps.Email, deps.Templates, deps.Logger),
		crmevents.TypeBulkAppraisalEmailUpdate:   NewBulkAppraisalEmailHandler(deps.Store, deps.Sheet, deps.Logger),
		crmevents.TypeBulkAppraisalFinalized:     NewBulkAppraisalFinalizedHandler(deps.Logger),
	})
}
