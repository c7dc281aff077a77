// Package dispatch routes decoded events to the handler registered for
// their event type.
package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
)

// Result is returned by every handler. Success=false is a business-level
// failure and is treated exactly like a returned error by the pipeline;
// Fields carries handler-specific output for logging and inspection.
type Result struct {
	Success bool
	Error   string
	Fields  map[string]interface{}
}

// Handler is the single capability the pipeline requires of an event
// processor. Implementations must not return an error for business-level
// failures; those are reported with Success=false.
type Handler interface {
	Process(ctx context.Context, event *crmevents.Event) (Result, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, event *crmevents.Event) (Result, error)

func (f HandlerFunc) Process(ctx context.Context, event *crmevents.Event) (Result, error) {
	return f(ctx, event)
}

// ProcessingError reports a handler that returned Success=false or panicked
// partway through. Reason carries the handler's own failure message when it
// provided one.
type ProcessingError struct {
	Reason string
}

func (e *ProcessingError) Error() string {
	if e.Reason == "" {
		return "Processing failed without specific error"
	}
	return e.Reason
}

// UnknownTypeError reports a dispatch request for an event type with no
// registered handler.
type UnknownTypeError struct {
	EventType string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("no handler registered for event type %q", e.EventType)
}

// Registry is an immutable event-type to handler mapping. It is built once
// during startup and read-only afterwards, so lookups need no
// synchronization.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a frozen registry from the given mapping. The input map
// is copied; later mutation of it does not affect the registry.
func NewRegistry(handlers map[string]Handler) (*Registry, error) {
	if len(handlers) == 0 {
		return nil, fmt.Errorf("registry requires at least one handler")
	}
	frozen := make(map[string]Handler, len(handlers))
	for eventType, handler := range handlers {
		if eventType == "" {
			return nil, fmt.Errorf("handler registered with empty event type")
		}
		if handler == nil {
			return nil, fmt.Errorf("nil handler registered for event type %q", eventType)
		}
		frozen[eventType] = handler
	}
	return &Registry{handlers: frozen}, nil
}

// Get returns the handler responsible for an event type, or an
// *UnknownTypeError when none is registered.
func (r *Registry) Get(eventType string) (Handler, error) {
	handler, ok := r.handlers[eventType]
	if !ok {
		return nil, &UnknownTypeError{EventType: eventType}
	}
	return handler, nil
}

// Types returns the registered event types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for eventType := range r.handlers {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}
