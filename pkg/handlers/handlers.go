// Package handlers holds the business processors behind the dispatch
// registry, one per event type. Each handler depends only on narrow
// collaborator interfaces so the pipeline can be exercised without any
// cloud backends.
package handlers

import (
	"time"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/crmstore"
)

// Templates maps each outbound email to its provider template ID.
type Templates struct {
	FreeReport      string
	PersonalOffer   string
	AppraisalReady  string
	ResetPassword   string
	NewRegistration string
}

// stringField pulls a string out of a decoded JSON object.
func stringField(obj map[string]interface{}, name string) string {
	if obj == nil {
		return ""
	}
	value, _ := obj[name].(string)
	return value
}

// numberField pulls a number out of a decoded JSON object.
func numberField(obj map[string]interface{}, name string) float64 {
	if obj == nil {
		return 0
	}
	value, _ := obj[name].(float64)
	return value
}

// stringsField converts a JSON array field to a string slice, skipping
// non-string entries.
func stringsField(obj map[string]interface{}, name string) []string {
	if obj == nil {
		return nil
	}
	raw, ok := obj[name].([]interface{})
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			values = append(values, s)
		}
	}
	return values
}

// customerFromEvent builds the profile update every handler applies.
func customerFromEvent(e *crmevents.Event, now time.Time) crmstore.Customer {
	customer := crmstore.Customer{
		Email:         e.CustomerEmail(),
		Name:          e.CustomerName(),
		FirstSeen:     now,
		LastSeen:      now,
		LastEventType: e.Type,
	}
	if obj := e.Object("customer"); obj != nil {
		customer.StripeCustomerID = stringField(obj, "stripeCustomerId")
	}
	return customer
}

// displayName falls back to a generic salutation when the customer never
// gave a name.
func displayName(e *crmevents.Event) string {
	if name := e.CustomerName(); name != "" {
		return name
	}
	return "Valued Customer"
}
