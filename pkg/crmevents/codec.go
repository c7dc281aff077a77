package crmevents

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// discriminatorField is the JSON key carrying the event type tag.
const discriminatorField = "crmProcess"

// DecodeError reports bytes that could not be turned into an Event: invalid
// JSON, or JSON whose top level is not an object.
type DecodeError struct {
	cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event: %v", e.cause)
}

func (e *DecodeError) Unwrap() error {
	return e.cause
}

// Decode parses raw message bytes into an Event. It never panics: any input
// yields either an Event or a *DecodeError. The event type tag is read from
// the crmProcess field and may be empty if the payload does not carry one;
// resolving whether a tag is known is the validator's and registry's job.
func Decode(raw []byte) (*Event, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &DecodeError{cause: err}
	}
	if fields == nil {
		return nil, &DecodeError{cause: fmt.Errorf("payload is JSON null, expected an object")}
	}
	eventType, _ := fields[discriminatorField].(string)
	return &Event{Type: eventType, Fields: fields}, nil
}

// DecodeBase64 decodes a base64 text payload (as delivered by a push
// webhook body) and then parses it like Decode.
func DecodeBase64(data string) (*Event, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, &DecodeError{cause: fmt.Errorf("invalid base64 payload: %w", err)}
	}
	return Decode(raw)
}

// Encode serializes an Event back to message bytes. The discriminator field
// is written from Type so a decode of the output yields an equal event.
func Encode(e *Event) ([]byte, error) {
	fields := make(map[string]interface{}, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[discriminatorField] = e.Type
	return json.Marshal(fields)
}
