// Package crmstore persists customer state. Firestore holds the mutable
// customer profile and chat history; BigQuery receives the append-only
// payment ledger for analytics.
package crmstore

import (
	"context"
	"time"
)

// Customer is the profile document keyed by email address.
type Customer struct {
	Email            string    `firestore:"email"`
	Name             string    `firestore:"name,omitempty"`
	StripeCustomerID string    `firestore:"stripeCustomerId,omitempty"`
	FirstSeen        time.Time `firestore:"firstSeen"`
	LastSeen         time.Time `firestore:"lastSeen"`
	LastEventType    string    `firestore:"lastEventType"`
}

// ChatRecord is one completed chat session, stored under the customer.
type ChatRecord struct {
	SessionID         string    `firestore:"sessionId"`
	StartedAt         string    `firestore:"startedAt"`
	EndedAt           string    `firestore:"endedAt"`
	MessageCount      int64     `firestore:"messageCount"`
	SatisfactionScore float64   `firestore:"satisfactionScore"`
	Summary           string    `firestore:"summary"`
	Sentiment         string    `firestore:"sentiment"`
	Topics            []string  `firestore:"topics,omitempty"`
	RecordedAt        time.Time `firestore:"recordedAt"`
}

// AppraisalRecord tracks one appraisal request through to delivery.
type AppraisalRecord struct {
	SessionID     string    `firestore:"sessionId"`
	CustomerEmail string    `firestore:"customerEmail"`
	ServiceType   string    `firestore:"serviceType"`
	RequestDate   string    `firestore:"requestDate"`
	Status        string    `firestore:"status"`
	RecordedAt    time.Time `firestore:"recordedAt"`
}

// PaymentRecord is one settled payment, streamed to BigQuery.
type PaymentRecord struct {
	CheckoutSessionID string    `bigquery:"checkout_session_id"`
	PaymentIntentID   string    `bigquery:"payment_intent_id"`
	CustomerEmail     string    `bigquery:"customer_email"`
	StripeCustomerID  string    `bigquery:"stripe_customer_id"`
	Amount            float64   `bigquery:"amount"`
	Currency          string    `bigquery:"currency"`
	Status            string    `bigquery:"status"`
	ServiceType       string    `bigquery:"service_type"`
	SessionID         string    `bigquery:"session_id"`
	ReceivedAt        time.Time `bigquery:"received_at"`
}

// CustomerStore is the profile persistence capability handlers depend on.
type CustomerStore interface {
	// UpsertCustomer merges the profile into the customer document,
	// creating it on first contact and preserving FirstSeen thereafter.
	UpsertCustomer(ctx context.Context, customer Customer) error
	// GetCustomer fetches a profile by email.
	GetCustomer(ctx context.Context, email string) (*Customer, error)
	// RecordChat stores a chat record under the customer's document.
	RecordChat(ctx context.Context, email string, chat ChatRecord) error
	// RecordAppraisal stores an appraisal request keyed by session ID.
	RecordAppraisal(ctx context.Context, appraisal AppraisalRecord) error
	// MarkAppraisalComplete flags an appraisal document as delivered.
	MarkAppraisalComplete(ctx context.Context, appraisalID string) error
	Close() error
}

// PaymentStore is the payment ledger capability.
type PaymentStore interface {
	InsertPayment(ctx context.Context, payment *PaymentRecord) error
	Close() error
}
