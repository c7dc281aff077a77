package handlers_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-crm-relay/pkg/handlers"
)

const bulkEmailPayload = `{
	"crmProcess": "bulkAppraisalEmailUpdate",
	"customer": {"email": "jo@example.com"},
	"metadata": {
		"origin": "bulk-uploader",
		"sessionId": "bulk-77",
		"environment": "production",
		"timestamp": 1767427200
	}
}`

func TestBulkAppraisalEmailHandler_OpensDraftAppraisal(t *testing.T) {
	store := &mockCustomerStore{}
	sheet := &mockSheet{}
	handler := handlers.NewBulkAppraisalEmailHandler(store, sheet, zerolog.Nop())

	result, err := handler.Process(context.Background(), eventFromJSON(t, bulkEmailPayload))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "bulk-77", result.Fields["sessionId"])
	assert.Equal(t, "draft", result.Fields["status"])

	require.Len(t, store.customers, 1)
	assert.Equal(t, "jo@example.com", store.customers[0].Email)

	require.Len(t, store.appraisals, 1)
	appraisal := store.appraisals[0]
	assert.Equal(t, "bulk-77", appraisal.SessionID)
	assert.Equal(t, "jo@example.com", appraisal.CustomerEmail)
	assert.Equal(t, "regular", appraisal.ServiceType)
	assert.Equal(t, "draft", appraisal.Status)
	assert.Equal(t, "2026-01-03T08:00:00Z", appraisal.RequestDate)

	require.Len(t, sheet.rows, 1)
	row := sheet.rows[0]
	assert.Equal(t, "2026-01-03T08:00:00Z", row[0])
	assert.Equal(t, "bulk-77", row[1])
	assert.Equal(t, "jo@example.com", row[2])
	assert.Equal(t, "Email Submitted", row[3])
}

func TestBulkAppraisalEmailHandler_SheetFailureIsBestEffort(t *testing.T) {
	store := &mockCustomerStore{}
	sheet := &mockSheet{appendErr: errors.New("ECONNRESET")}
	handler := handlers.NewBulkAppraisalEmailHandler(store, sheet, zerolog.Nop())

	result, err := handler.Process(context.Background(), eventFromJSON(t, bulkEmailPayload))
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, store.appraisals, 1)
}

func TestBulkAppraisalEmailHandler_StoreFailureFails(t *testing.T) {
	store := &mockCustomerStore{appraisalErr: errors.New("firestore unavailable")}
	handler := handlers.NewBulkAppraisalEmailHandler(store, &mockSheet{}, zerolog.Nop())

	result, err := handler.Process(context.Background(), eventFromJSON(t, bulkEmailPayload))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "record draft appraisal")
}

func TestBulkAppraisalFinalizedHandler_Acknowledges(t *testing.T) {
	handler := handlers.NewBulkAppraisalFinalizedHandler(zerolog.Nop())

	payload := `{
		"crmProcess": "bulkAppraisalFinalized",
		"customer": {"email": "jo@example.com"},
		"appraisal": {"type": "insurance", "itemCount": 12, "sessionId": "bulk-77"},
		"metadata": {"origin": "bulk-uploader", "environment": "production", "timestamp": 1767427200}
	}`

	result, err := handler.Process(context.Background(), eventFromJSON(t, payload))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "bulk-77", result.Fields["sessionId"])
	assert.Equal(t, "insurance", result.Fields["type"])
	assert.Equal(t, float64(12), result.Fields["itemCount"])
}
