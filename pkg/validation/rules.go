package validation

import "github.com/illmade-knight/go-crm-relay/pkg/crmevents"

// Kind is the expected JSON kind of a required field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Field names a required field and the kind it must decode to.
type Field struct {
	Name string
	Kind Kind
}

// NestedBlock lists required fields inside a top-level object field. The
// block's own presence is checked by the top-level rules; nested checks only
// run when the block exists and is an object.
type NestedBlock struct {
	Parent string
	Fields []Field
}

// RuleSet is the structural requirement table for one event type. Extra
// holds checks that don't fit the presence/kind pattern (e.g. minimum token
// length); it must stay pure.
type RuleSet struct {
	Fields []Field
	Nested []NestedBlock
	Extra  func(e *crmevents.Event) []string
}

// customerEmail is the nested requirement shared by every event type.
var customerEmail = NestedBlock{
	Parent: "customer",
	Fields: []Field{{Name: "email", Kind: KindString}},
}

// defaultRules returns the rule table for the full event catalogue.
func defaultRules() map[string]RuleSet {
	return map[string]RuleSet{
		crmevents.TypeScreenerNotification: {
			Fields: []Field{
				{Name: "crmProcess", Kind: KindString},
				{Name: "customer", Kind: KindObject},
				{Name: "sessionId", Kind: KindString},
				{Name: "metadata", Kind: KindObject},
				{Name: "timestamp", Kind: KindNumber},
			},
			Nested: []NestedBlock{customerEmail},
		},
		crmevents.TypeChatSummary: {
			Fields: []Field{
				{Name: "crmProcess", Kind: KindString},
				{Name: "customer", Kind: KindObject},
				{Name: "chat", Kind: KindObject},
				{Name: "metadata", Kind: KindObject},
			},
			Nested: []NestedBlock{
				{Parent: "chat", Fields: []Field{
					{Name: "sessionId", Kind: KindString},
					{Name: "startedAt", Kind: KindString},
					{Name: "endedAt", Kind: KindString},
					{Name: "messageCount", Kind: KindNumber},
					{Name: "satisfactionScore", Kind: KindNumber},
					{Name: "summary", Kind: KindString},
					{Name: "topics", Kind: KindObject},
					{Name: "sentiment", Kind: KindString},
				}},
				customerEmail,
			},
		},
		crmevents.TypeGmailInteraction: {
			Fields: []Field{
				{Name: "crmProcess", Kind: KindString},
				{Name: "customer", Kind: KindObject},
				{Name: "email", Kind: KindObject},
				{Name: "metadata", Kind: KindObject},
			},
			Nested: []NestedBlock{
				{Parent: "email", Fields: []Field{
					{Name: "messageId", Kind: KindString},
					{Name: "threadId", Kind: KindString},
					{Name: "subject", Kind: KindString},
					{Name: "content", Kind: KindString},
					{Name: "timestamp", Kind: KindString},
					{Name: "classification", Kind: KindObject},
				}},
				customerEmail,
			},
		},
		crmevents.TypeAppraisalRequest: {
			Fields: []Field{
				{Name: "crmProcess", Kind: KindString},
				{Name: "customer", Kind: KindObject},
				{Name: "appraisal", Kind: KindObject},
				{Name: "metadata", Kind: KindObject},
			},
			Nested: []NestedBlock{
				{Parent: "appraisal", Fields: []Field{
					{Name: "serviceType", Kind: KindString},
					{Name: "sessionId", Kind: KindString},
					{Name: "requestDate", Kind: KindString},
					{Name: "status", Kind: KindString},
				}},
				{Parent: "customer", Fields: []Field{
					{Name: "email", Kind: KindString},
					{Name: "name", Kind: KindString},
				}},
			},
		},
		crmevents.TypeAppraisalReadyNotification: {
			Fields: []Field{
				{Name: "crmProcess", Kind: KindString},
				{Name: "customer", Kind: KindObject},
				{Name: "appraisal", Kind: KindObject},
				{Name: "metadata", Kind: KindObject},
			},
			Nested: []NestedBlock{
				{Parent: "appraisal", Fields: []Field{
					{Name: "id", Kind: KindString},
					{Name: "sessionId", Kind: KindString},
				}},
				customerEmail,
			},
		},
		crmevents.TypeStripePayment: {
			Fields: []Field{
				{Name: "crmProcess", Kind: KindString},
				{Name: "customer", Kind: KindObject},
				{Name: "payment", Kind: KindObject},
				{Name: "metadata", Kind: KindObject},
			},
			Nested: []NestedBlock{
				{Parent: "customer", Fields: []Field{
					{Name: "email", Kind: KindString},
					{Name: "name", Kind: KindString},
					{Name: "stripeCustomerId", Kind: KindString},
				}},
				{Parent: "payment", Fields: []Field{
					{Name: "checkoutSessionId", Kind: KindString},
					{Name: "paymentIntentId", Kind: KindString},
					{Name: "amount", Kind: KindNumber},
					{Name: "currency", Kind: KindString},
					{Name: "status", Kind: KindString},
					{Name: "metadata", Kind: KindObject},
				}},
			},
			Extra: stripePaymentMetadata,
		},
		crmevents.TypeResetPasswordRequest: {
			Fields: []Field{
				{Name: "crmProcess", Kind: KindString},
				{Name: "customer", Kind: KindObject},
				{Name: "token", Kind: KindString},
				{Name: "metadata", Kind: KindObject},
			},
			Nested: []NestedBlock{customerEmail},
			Extra:  resetTokenLength,
		},
		crmevents.TypeNewRegistrationEmail: {
			Fields: []Field{
				{Name: "crmProcess", Kind: KindString},
				{Name: "customer", Kind: KindObject},
				{Name: "metadata", Kind: KindObject},
			},
			Nested: []NestedBlock{customerEmail},
		},
		crmevents.TypeBulkAppraisalEmailUpdate: {
			Fields: []Field{
				{Name: "crmProcess", Kind: KindString},
				{Name: "customer", Kind: KindObject},
				{Name: "metadata", Kind: KindObject},
			},
			Nested: []NestedBlock{
				customerEmail,
				{Parent: "metadata", Fields: []Field{
					{Name: "origin", Kind: KindString},
					{Name: "sessionId", Kind: KindString},
					{Name: "environment", Kind: KindString},
					{Name: "timestamp", Kind: KindNumber},
				}},
			},
		},
		crmevents.TypeBulkAppraisalFinalized: {
			Fields: []Field{
				{Name: "crmProcess", Kind: KindString},
				{Name: "customer", Kind: KindObject},
				{Name: "appraisal", Kind: KindObject},
				{Name: "metadata", Kind: KindObject},
			},
			Nested: []NestedBlock{
				customerEmail,
				{Parent: "appraisal", Fields: []Field{
					{Name: "type", Kind: KindString},
					{Name: "itemCount", Kind: KindNumber},
					{Name: "sessionId", Kind: KindString},
				}},
				{Parent: "metadata", Fields: []Field{
					{Name: "origin", Kind: KindString},
					{Name: "environment", Kind: KindString},
					{Name: "timestamp", Kind: KindNumber},
				}},
			},
			Extra: bulkFinalizedEnums,
		},
	}
}

func stripePaymentMetadata(e *crmevents.Event) []string {
	payment := e.Object("payment")
	if payment == nil {
		return nil
	}
	meta, ok := payment["metadata"].(map[string]interface{})
	if !ok {
		return nil
	}
	var errs []string
	if _, ok := meta["serviceType"]; !ok {
		errs = append(errs, "Missing required field: payment.metadata.serviceType")
	}
	if _, ok := meta["sessionId"]; !ok {
		errs = append(errs, "Missing required field: payment.metadata.sessionId")
	}
	return errs
}

// bulkFinalizedEnums restricts the appraisal type and deployment environment
// to their closed value sets.
func bulkFinalizedEnums(e *crmevents.Event) []string {
	var errs []string
	if appraisal := e.Object("appraisal"); appraisal != nil {
		if appraisalType, ok := appraisal["type"].(string); ok && appraisalType != "" {
			switch appraisalType {
			case "regular", "insurance", "tax":
			default:
				errs = append(errs, "Invalid appraisal type: "+appraisalType)
			}
		}
	}
	if meta := e.Metadata(); meta != nil {
		if env, ok := meta["environment"].(string); ok && env != "" {
			if env != "production" && env != "development" {
				errs = append(errs, "Invalid environment value")
			}
		}
	}
	return errs
}

const minResetTokenLength = 32

func resetTokenLength(e *crmevents.Event) []string {
	token, ok := e.Fields["token"].(string)
	if !ok || token == "" {
		return nil
	}
	if len(token) < minResetTokenLength {
		return []string{"Token must be at least 32 characters long"}
	}
	return nil
}
