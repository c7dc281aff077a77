package crmevents

// Known event type tags. The dispatch registry decides which of these are
// actually live in a given deployment; the codec treats the tag as opaque.
const (
	TypeScreenerNotification       = "screenerNotification"
	TypeChatSummary                = "chatSummary"
	TypeGmailInteraction           = "gmailInteraction"
	TypeAppraisalRequest           = "appraisalRequest"
	TypeAppraisalReadyNotification = "appraisalReadyNotification"
	TypeStripePayment              = "stripePayment"
	TypeResetPasswordRequest       = "resetPasswordRequest"
	TypeNewRegistrationEmail       = "newRegistrationEmail"
	TypeBulkAppraisalEmailUpdate   = "bulkAppraisalEmailUpdate"
	TypeBulkAppraisalFinalized     = "bulkAppraisalFinalized"
)

// Event is the decoded representation of a single CRM message. Type holds the
// crmProcess discriminator; Fields holds the complete decoded JSON object, so
// validators and handlers can reach type-specific payload blocks.
type Event struct {
	Type   string
	Fields map[string]interface{}
}

// String returns the string value of a top-level field, or "" if the field is
// absent or not a string.
func (e *Event) String(key string) string {
	s, _ := e.Fields[key].(string)
	return s
}

// Number returns the numeric value of a top-level field. JSON numbers decode
// as float64.
func (e *Event) Number(key string) (float64, bool) {
	n, ok := e.Fields[key].(float64)
	return n, ok
}

// Object returns a nested object field, or nil if the field is absent or not
// an object.
func (e *Event) Object(key string) map[string]interface{} {
	o, _ := e.Fields[key].(map[string]interface{})
	return o
}

// SessionID returns the correlation identifier for the event. Most event
// types carry it top-level; chat summaries nest it under the chat block,
// appraisals under the appraisal block, payments under the payment metadata,
// and bulk appraisal updates under the event metadata.
func (e *Event) SessionID() string {
	if s := e.String("sessionId"); s != "" {
		return s
	}
	if chat := e.Object("chat"); chat != nil {
		if s, ok := chat["sessionId"].(string); ok {
			return s
		}
	}
	if appraisal := e.Object("appraisal"); appraisal != nil {
		if s, ok := appraisal["sessionId"].(string); ok {
			return s
		}
	}
	if payment := e.Object("payment"); payment != nil {
		if meta, ok := payment["metadata"].(map[string]interface{}); ok {
			if s, ok := meta["sessionId"].(string); ok {
				return s
			}
		}
	}
	if meta := e.Metadata(); meta != nil {
		if s, ok := meta["sessionId"].(string); ok {
			return s
		}
	}
	return ""
}

// CustomerEmail returns customer.email, or "" if absent.
func (e *Event) CustomerEmail() string {
	if customer := e.Object("customer"); customer != nil {
		if s, ok := customer["email"].(string); ok {
			return s
		}
	}
	return ""
}

// CustomerName returns customer.name, or "" if absent.
func (e *Event) CustomerName() string {
	if customer := e.Object("customer"); customer != nil {
		if s, ok := customer["name"].(string); ok {
			return s
		}
	}
	return ""
}

// Metadata returns the free-form metadata block, or nil if absent.
func (e *Event) Metadata() map[string]interface{} {
	return e.Object("metadata")
}
