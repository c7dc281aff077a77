package deadletter_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/deadletter"
	"github.com/illmade-knight/go-crm-relay/pkg/dispatch"
	"github.com/illmade-knight/go-crm-relay/pkg/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testOriginal() deadletter.OriginalMessage {
	return deadletter.OriginalMessage{
		ID:          "msg-1",
		Data:        `{"crmProcess":"screenerNotification"}`,
		Attributes:  map[string]string{"origin": "web"},
		PublishTime: testNow.Format(time.RFC3339),
	}
}

func TestNewRecord_StartsAtZero(t *testing.T) {
	record := deadletter.NewRecord(testOriginal(), errors.New("boom"), testNow)

	assert.Equal(t, 0, record.RetryCount)
	assert.Equal(t, "msg-1", record.OriginalMessage.ID)
	assert.Equal(t, deadletter.NameProcessingError, record.Error.Name)
	assert.Equal(t, "boom", record.Error.Message)
	assert.Equal(t, "2025-06-01T12:00:00Z", record.Error.Timestamp)
}

func TestWithRetry_ReplacesRatherThanMutates(t *testing.T) {
	first := deadletter.NewRecord(testOriginal(), errors.New("first failure"), testNow)

	second := first.WithRetry(errors.New("second failure"), testNow.Add(time.Minute))

	assert.Equal(t, 0, first.RetryCount, "original record must be unchanged")
	assert.Equal(t, "first failure", first.Error.Message)
	assert.Equal(t, 1, second.RetryCount)
	assert.Equal(t, "second failure", second.Error.Message)
	assert.Equal(t, first.OriginalMessage, second.OriginalMessage)
}

func TestRecord_WireSchema(t *testing.T) {
	record := deadletter.NewRecord(testOriginal(), errors.New("boom"), testNow)

	payload, err := record.Marshal()
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &wire))
	assert.Contains(t, wire, "originalMessage")
	assert.Contains(t, wire, "error")
	assert.Contains(t, wire, "retryCount")

	var original map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(wire["originalMessage"], &original))
	for _, key := range []string{"id", "data", "attributes", "publishTime"} {
		assert.Contains(t, original, key)
	}

	var errInfo map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(wire["error"], &errInfo))
	for _, key := range []string{"name", "message", "timestamp"} {
		assert.Contains(t, errInfo, key)
	}
}

func TestParseRecord(t *testing.T) {
	record := deadletter.NewRecord(testOriginal(), errors.New("boom"), testNow)
	payload, err := record.Marshal()
	require.NoError(t, err)

	parsed, ok := deadletter.ParseRecord(payload)
	require.True(t, ok)
	assert.Equal(t, record, *parsed)

	// Ordinary events and junk are not records.
	for _, input := range []string{
		`{"crmProcess":"screenerNotification","customer":{"email":"a@b.com"}}`,
		`{"originalMessage":{}}`,
		`{"retryCount":2}`,
		`not json`,
		`[1,2]`,
	} {
		_, ok := deadletter.ParseRecord([]byte(input))
		assert.False(t, ok, "input should not parse as a record: %s", input)
	}
}

func TestRecord_ErrorClassification(t *testing.T) {
	testCases := []struct {
		name          string
		failure       error
		wantName      string
		wantRetryable bool
	}{
		{
			name:          "decode failure",
			failure:       decodeFailure(t),
			wantName:      deadletter.NameDecodeError,
			wantRetryable: false,
		},
		{
			name:          "validation failure",
			failure:       &validation.FailedError{Errors: []string{"Missing required field: sessionId"}},
			wantName:      deadletter.NameValidationError,
			wantRetryable: false,
		},
		{
			name:          "unknown event type",
			failure:       &validation.UnknownEventTypeError{EventType: "fooBar"},
			wantName:      deadletter.NameValidationError,
			wantRetryable: false,
		},
		{
			name:          "unregistered handler",
			failure:       &dispatch.UnknownTypeError{EventType: "fooBar"},
			wantName:      deadletter.NameValidationError,
			wantRetryable: false,
		},
		{
			name:          "handler failure",
			failure:       &dispatch.ProcessingError{Reason: "email provider unavailable"},
			wantName:      deadletter.NameProcessingError,
			wantRetryable: true,
		},
		{
			name:          "unclassified failure",
			failure:       errors.New("panic: nil map write"),
			wantName:      deadletter.NameProcessingError,
			wantRetryable: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record := deadletter.NewRecord(testOriginal(), tc.failure, testNow)
			assert.Equal(t, tc.wantName, record.Error.Name)
			assert.Equal(t, tc.wantRetryable, record.Retryable())
		})
	}
}

func decodeFailure(t *testing.T) error {
	t.Helper()
	_, err := crmevents.Decode([]byte("not json"))
	require.Error(t, err)
	return err
}
