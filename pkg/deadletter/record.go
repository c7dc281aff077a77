// Package deadletter captures failed pipeline messages as retry-counted
// records on a side topic instead of discarding them.
package deadletter

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/dispatch"
	"github.com/illmade-knight/go-crm-relay/pkg/validation"
)

// Error taxonomy names carried on dead-letter records. Decode and validation
// failures are permanent; processing failures are retried up to the ceiling.
const (
	NameDecodeError     = "DecodeError"
	NameValidationError = "ValidationError"
	NameProcessingError = "ProcessingError"
)

// OriginalMessage preserves the failed envelope as delivered by the broker.
type OriginalMessage struct {
	ID          string            `json:"id"`
	Data        string            `json:"data"`
	Attributes  map[string]string `json:"attributes"`
	PublishTime string            `json:"publishTime"`
}

// ErrorInfo describes the failure that produced or re-produced a record.
type ErrorInfo struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Record is the dead-letter envelope. Records are immutable values: a retry
// produces a replacement record with RetryCount+1, never an in-place update,
// because the broker only supports publishing new messages.
type Record struct {
	OriginalMessage OriginalMessage `json:"originalMessage"`
	Error           ErrorInfo       `json:"error"`
	RetryCount      int             `json:"retryCount"`
}

// NewRecord wraps a freshly failed envelope with RetryCount 0.
func NewRecord(original OriginalMessage, failure error, now time.Time) Record {
	return Record{
		OriginalMessage: original,
		Error:           newErrorInfo(failure, now),
		RetryCount:      0,
	}
}

// WithRetry returns the replacement record for a failed reprocessing
// attempt, carrying the prior count plus one and the latest error.
func (r Record) WithRetry(failure error, now time.Time) Record {
	next := r
	next.Error = newErrorInfo(failure, now)
	next.RetryCount = r.RetryCount + 1
	return next
}

// Retryable reports whether reprocessing could ever succeed. Malformed bytes
// and structurally invalid events never become valid on redelivery.
func (r Record) Retryable() bool {
	switch r.Error.Name {
	case NameDecodeError, NameValidationError:
		return false
	default:
		return true
	}
}

// Marshal serializes the record for publishing.
func (r Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// ParseRecord recognizes a redelivered dead-letter record by its structure:
// a JSON object carrying both originalMessage and retryCount. Ordinary
// events never carry that pair, so retries of retries keep incrementing the
// same counter instead of wrapping a record inside a new one.
func ParseRecord(payload []byte) (*Record, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, false
	}
	if _, ok := probe["originalMessage"]; !ok {
		return nil, false
	}
	if _, ok := probe["retryCount"]; !ok {
		return nil, false
	}
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, false
	}
	return &record, true
}

func newErrorInfo(failure error, now time.Time) ErrorInfo {
	return ErrorInfo{
		Name:      classify(failure),
		Message:   failure.Error(),
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// classify maps a pipeline failure onto the record taxonomy. Anything not
// recognized as a decode or validation failure came from a handler and is
// treated as retryable.
func classify(failure error) string {
	var decodeErr *crmevents.DecodeError
	if errors.As(failure, &decodeErr) {
		return NameDecodeError
	}
	var failedErr *validation.FailedError
	if errors.As(failure, &failedErr) {
		return NameValidationError
	}
	var unknownEventErr *validation.UnknownEventTypeError
	if errors.As(failure, &unknownEventErr) {
		return NameValidationError
	}
	var unknownTypeErr *dispatch.UnknownTypeError
	if errors.As(failure, &unknownTypeErr) {
		return NameValidationError
	}
	return NameProcessingError
}
