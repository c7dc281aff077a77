package handlers_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/crmstore"
	"github.com/illmade-knight/go-crm-relay/pkg/emailer"
	"github.com/illmade-knight/go-crm-relay/pkg/handlers"
)

// eventFromJSON decodes a payload through the real codec so tests exercise
// the same shapes production sees.
func eventFromJSON(t *testing.T, payload string) *crmevents.Event {
	t.Helper()
	event, err := crmevents.Decode([]byte(payload))
	require.NoError(t, err)
	return event
}

type mockCustomerStore struct {
	mu         sync.Mutex
	customers  []crmstore.Customer
	chats      []crmstore.ChatRecord
	appraisals []crmstore.AppraisalRecord
	completed  []string

	upsertErr    error
	chatErr      error
	appraisalErr error
	completeErr  error
}

func (m *mockCustomerStore) UpsertCustomer(_ context.Context, customer crmstore.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.customers = append(m.customers, customer)
	return nil
}

func (m *mockCustomerStore) GetCustomer(_ context.Context, _ string) (*crmstore.Customer, error) {
	return nil, nil
}

func (m *mockCustomerStore) RecordChat(_ context.Context, _ string, chat crmstore.ChatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chatErr != nil {
		return m.chatErr
	}
	m.chats = append(m.chats, chat)
	return nil
}

func (m *mockCustomerStore) RecordAppraisal(_ context.Context, appraisal crmstore.AppraisalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appraisalErr != nil {
		return m.appraisalErr
	}
	m.appraisals = append(m.appraisals, appraisal)
	return nil
}

func (m *mockCustomerStore) MarkAppraisalComplete(_ context.Context, appraisalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	m.completed = append(m.completed, appraisalID)
	return nil
}

func (m *mockCustomerStore) Close() error { return nil }

type mockPaymentStore struct {
	mu        sync.Mutex
	payments  []crmstore.PaymentRecord
	insertErr error
}

func (m *mockPaymentStore) InsertPayment(_ context.Context, payment *crmstore.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.payments = append(m.payments, *payment)
	return nil
}

func (m *mockPaymentStore) Close() error { return nil }

type sheetUpdate struct {
	sessionID string
	email     string
}

type mockSheet struct {
	mu        sync.Mutex
	rows      [][]interface{}
	updates   []sheetUpdate
	appendErr error
	updateErr error
}

func (m *mockSheet) AppendRow(_ context.Context, values []interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.rows = append(m.rows, values)
	return nil
}

func (m *mockSheet) UpdateEmailSubmission(_ context.Context, sessionID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, sheetUpdate{sessionID: sessionID, email: email})
	return nil
}

type mockSender struct {
	mu      sync.Mutex
	sent    []emailer.TemplateEmail
	sendErr error
}

func (m *mockSender) SendTemplate(_ context.Context, email emailer.TemplateEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, email)
	return nil
}

type mockReports struct {
	html     string
	fetchErr error
	requests []string
}

func (m *mockReports) FetchReport(_ context.Context, sessionID string) (string, error) {
	m.requests = append(m.requests, sessionID)
	if m.fetchErr != nil {
		return "", m.fetchErr
	}
	return m.html, nil
}

func testTemplates() handlers.Templates {
	return handlers.Templates{
		FreeReport:      "d-free-report",
		PersonalOffer:   "d-personal-offer",
		AppraisalReady:  "d-appraisal-ready",
		ResetPassword:   "d-reset-password",
		NewRegistration: "d-new-registration",
	}
}
