package crmstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds the collection layout for the customer store.
type FirestoreConfig struct {
	CustomersCollection  string
	ChatsSubcollection   string
	AppraisalsCollection string
}

// NewFirestoreConfigDefaults provides the standard collection names.
func NewFirestoreConfigDefaults() *FirestoreConfig {
	return &FirestoreConfig{
		CustomersCollection:  "customers",
		ChatsSubcollection:   "chats",
		AppraisalsCollection: "appraisals",
	}
}

// FirestoreCustomerStore implements CustomerStore on Firestore. Customer
// documents are keyed by email so repeated events converge on one profile.
type FirestoreCustomerStore struct {
	cfg    *FirestoreConfig
	client *firestore.Client
	logger zerolog.Logger
}

// NewFirestoreCustomerStore creates a store around an injected client. The
// client's lifecycle is managed by the caller.
func NewFirestoreCustomerStore(cfg *FirestoreConfig, client *firestore.Client, logger zerolog.Logger) (*FirestoreCustomerStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	if cfg == nil {
		cfg = NewFirestoreConfigDefaults()
	}
	return &FirestoreCustomerStore{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("component", "FirestoreCustomerStore").Logger(),
	}, nil
}

// UpsertCustomer merges the profile into the customer document. FirstSeen is
// only written on creation so later events cannot rewind it.
func (s *FirestoreCustomerStore) UpsertCustomer(ctx context.Context, customer Customer) error {
	if customer.Email == "" {
		return fmt.Errorf("customer email is required")
	}

	docRef := s.client.Collection(s.cfg.CustomersCollection).Doc(customer.Email)
	update := map[string]interface{}{
		"email":         customer.Email,
		"lastSeen":      customer.LastSeen,
		"lastEventType": customer.LastEventType,
	}
	if customer.Name != "" {
		update["name"] = customer.Name
	}
	if customer.StripeCustomerID != "" {
		update["stripeCustomerId"] = customer.StripeCustomerID
	}

	_, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) != codes.NotFound {
			return fmt.Errorf("firestore get for %s: %w", customer.Email, err)
		}
		update["firstSeen"] = customer.FirstSeen
	}

	if _, err := docRef.Set(ctx, update, firestore.MergeAll); err != nil {
		s.logger.Error().Err(err).Str("email", customer.Email).Msg("Failed to upsert customer document.")
		return fmt.Errorf("firestore set for %s: %w", customer.Email, err)
	}
	s.logger.Debug().Str("email", customer.Email).Msg("Customer document upserted.")
	return nil
}

// GetCustomer fetches a profile by email.
func (s *FirestoreCustomerStore) GetCustomer(ctx context.Context, email string) (*Customer, error) {
	docSnap, err := s.client.Collection(s.cfg.CustomersCollection).Doc(email).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("customer not found: %w", err)
		}
		return nil, fmt.Errorf("firestore get for %s: %w", email, err)
	}

	var customer Customer
	if err := docSnap.DataTo(&customer); err != nil {
		return nil, fmt.Errorf("firestore DataTo for %s: %w", email, err)
	}
	return &customer, nil
}

// RecordChat stores the chat under customers/<email>/chats/<sessionId>.
// Redelivered summaries overwrite the same document rather than duplicate.
func (s *FirestoreCustomerStore) RecordChat(ctx context.Context, email string, chat ChatRecord) error {
	if email == "" || chat.SessionID == "" {
		return fmt.Errorf("email and session ID are required")
	}

	docRef := s.client.
		Collection(s.cfg.CustomersCollection).Doc(email).
		Collection(s.cfg.ChatsSubcollection).Doc(chat.SessionID)
	if _, err := docRef.Set(ctx, chat); err != nil {
		s.logger.Error().Err(err).Str("email", email).Str("session_id", chat.SessionID).Msg("Failed to record chat.")
		return fmt.Errorf("firestore set chat %s: %w", chat.SessionID, err)
	}
	s.logger.Debug().Str("email", email).Str("session_id", chat.SessionID).Msg("Chat record stored.")
	return nil
}

// RecordAppraisal stores the request keyed by session ID so the ready
// notification can find it later.
func (s *FirestoreCustomerStore) RecordAppraisal(ctx context.Context, appraisal AppraisalRecord) error {
	if appraisal.SessionID == "" {
		return fmt.Errorf("appraisal session ID is required")
	}

	docRef := s.client.Collection(s.cfg.AppraisalsCollection).Doc(appraisal.SessionID)
	if _, err := docRef.Set(ctx, appraisal); err != nil {
		s.logger.Error().Err(err).Str("session_id", appraisal.SessionID).Msg("Failed to record appraisal.")
		return fmt.Errorf("firestore set appraisal %s: %w", appraisal.SessionID, err)
	}
	return nil
}

// MarkAppraisalComplete flags the appraisal document as delivered.
func (s *FirestoreCustomerStore) MarkAppraisalComplete(ctx context.Context, appraisalID string) error {
	if appraisalID == "" {
		return fmt.Errorf("appraisal ID is required")
	}

	docRef := s.client.Collection(s.cfg.AppraisalsCollection).Doc(appraisalID)
	_, err := docRef.Set(ctx, map[string]interface{}{
		"status":    "delivered",
		"delivered": true,
	}, firestore.MergeAll)
	if err != nil {
		s.logger.Error().Err(err).Str("appraisal_id", appraisalID).Msg("Failed to mark appraisal complete.")
		return fmt.Errorf("firestore set appraisal %s: %w", appraisalID, err)
	}
	return nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (s *FirestoreCustomerStore) Close() error {
	return nil
}
