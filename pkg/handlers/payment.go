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

// StripePaymentHandler updates the customer profile and streams the payment
// into the analytics ledger. Both writes must land for the event to count as
// processed; a redelivery overwrites the profile and re-inserts an identical
// ledger row keyed by payment intent.
type StripePaymentHandler struct {
	store    crmstore.CustomerStore
	payments crmstore.PaymentStore
	logger   zerolog.Logger
}

func NewStripePaymentHandler(store crmstore.CustomerStore, payments crmstore.PaymentStore, logger zerolog.Logger) *StripePaymentHandler {
	return &StripePaymentHandler{
		store:    store,
		payments: payments,
		logger:   logger.With().Str("component", "StripePaymentHandler").Logger(),
	}
}

func (h *StripePaymentHandler) Process(ctx context.Context, e *crmevents.Event) (dispatch.Result, error) {
	payment := e.Object("payment")
	paymentMeta, _ := payment["metadata"].(map[string]interface{})
	checkoutSessionID := stringField(payment, "checkoutSessionId")
	now := time.Now().UTC()

	h.logger.Info().
		Str("checkout_session_id", checkoutSessionID).
		Str("payment_intent_id", stringField(payment, "paymentIntentId")).
		Float64("amount", numberField(payment, "amount")).
		Msg("Processing Stripe payment.")

	if err := h.store.UpsertCustomer(ctx, customerFromEvent(e, now)); err != nil {
		return dispatch.Result{Success: false, Error: fmt.Sprintf("upsert customer: %v", err)}, nil
	}

	record := &crmstore.PaymentRecord{
		CheckoutSessionID: checkoutSessionID,
		PaymentIntentID:   stringField(payment, "paymentIntentId"),
		CustomerEmail:     e.CustomerEmail(),
		StripeCustomerID:  stringField(e.Object("customer"), "stripeCustomerId"),
		Amount:            numberField(payment, "amount"),
		Currency:          stringField(payment, "currency"),
		Status:            stringField(payment, "status"),
		ServiceType:       stringField(paymentMeta, "serviceType"),
		SessionID:         stringField(paymentMeta, "sessionId"),
		ReceivedAt:        now,
	}
	if err := h.payments.InsertPayment(ctx, record); err != nil {
		return dispatch.Result{Success: false, Error: fmt.Sprintf("insert payment %s: %v", checkoutSessionID, err)}, nil
	}

	return dispatch.Result{
		Success: true,
		Fields:  map[string]interface{}{"checkoutSessionId": checkoutSessionID, "email": e.CustomerEmail()},
	}, nil
}
