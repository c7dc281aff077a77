// Package validation performs structural validation of decoded CRM events.
// A validator is a pure function over the decoded fields: it never touches
// the network or a database, and the same event always yields the same
// result.
package validation

import (
	"fmt"
	"strings"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
)

// Result reports the outcome of validating a single event. Errors are
// human-readable and ordered by the rule table, so repeated runs produce
// identical output.
type Result struct {
	IsValid bool
	Errors  []string
}

// FailedError reports an event that has a rule set but failed one or more
// of its checks.
type FailedError struct {
	Errors []string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("Invalid message format: %s", strings.Join(e.Errors, ", "))
}

// UnknownEventTypeError reports an event whose type tag has no rule set.
// It is distinct from a failed Result: no rules exist, rather than rules
// failing.
type UnknownEventTypeError struct {
	EventType string
}

func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("Unknown eventType: %s", e.EventType)
}

// Validator holds the per-event-type rule tables. The tables are fixed at
// construction; Validate performs no mutation, so a Validator is safe for
// concurrent use.
type Validator struct {
	rules map[string]RuleSet
}

// NewValidator returns a Validator covering the full event catalogue.
func NewValidator() *Validator {
	return &Validator{rules: defaultRules()}
}

// Validate checks the event against its type's rule table. A non-nil error
// is returned only when the event type has no rule set; in that case the
// Result still carries the failure so callers that only inspect the Result
// see a deterministic outcome.
func (v *Validator) Validate(e *crmevents.Event) (Result, error) {
	rules, ok := v.rules[e.Type]
	if !ok {
		err := &UnknownEventTypeError{EventType: e.Type}
		return Result{IsValid: false, Errors: []string{err.Error()}}, err
	}

	var errs []string
	for _, field := range rules.Fields {
		errs = appendFieldErrors(errs, e.Fields, "", field)
	}
	for _, block := range rules.Nested {
		parent, ok := e.Fields[block.Parent].(map[string]interface{})
		if !ok {
			// The parent's own presence/kind failure is already reported
			// by the top-level rules.
			continue
		}
		for _, field := range block.Fields {
			errs = appendFieldErrors(errs, parent, block.Parent+".", field)
		}
	}
	if rules.Extra != nil {
		errs = append(errs, rules.Extra(e)...)
	}

	return Result{IsValid: len(errs) == 0, Errors: errs}, nil
}

// appendFieldErrors checks one field of an object and appends any failure
// messages. prefix qualifies nested field names ("customer." etc).
func appendFieldErrors(errs []string, fields map[string]interface{}, prefix string, field Field) []string {
	value, present := fields[field.Name]
	if !present || value == nil {
		return append(errs, fmt.Sprintf("Missing required field: %s%s", prefix, field.Name))
	}
	if !kindMatches(field.Kind, value) {
		return append(errs, fmt.Sprintf("Invalid type for %s%s: expected %s, got %s",
			prefix, field.Name, field.Kind, jsonKind(value)))
	}
	return errs
}

func kindMatches(kind Kind, value interface{}) bool {
	switch kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindNumber:
		_, ok := value.(float64)
		return ok
	case KindObject:
		// Arrays satisfy object-kind fields, matching the loose typing of
		// upstream publishers (topics, attachments and the like arrive as
		// JSON arrays).
		switch value.(type) {
		case map[string]interface{}, []interface{}:
			return true
		}
		return false
	default:
		return false
	}
}

func jsonKind(value interface{}) string {
	switch value.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		return "null"
	}
}
