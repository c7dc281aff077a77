package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// pushRequest mirrors the broker's push delivery body:
// {"message": {"data": <base64>, "attributes": {...}, "messageId": "...", "publishTime": "..."}}.
type pushRequest struct {
	Message      *pushMessage `json:"message"`
	Subscription string       `json:"subscription"`
}

type pushMessage struct {
	Data        string            `json:"data"`
	Attributes  map[string]string `json:"attributes"`
	MessageID   string            `json:"messageId"`
	PublishTime string            `json:"publishTime"`
}

// PushHandler serves the broker's push delivery endpoint. The webhook
// contract requires a fast response: the handler validates the outer
// request shape, returns 204, and resolves the business outcome in a
// detached background task whose only externally visible effect is an
// eventual dead-letter publish. The HTTP status never reflects the business
// outcome.
type PushHandler struct {
	processor *Processor
	logger    zerolog.Logger
	wg        sync.WaitGroup
	baseCtx   context.Context
}

// NewPushHandler creates a PushHandler. baseCtx bounds the background tasks'
// lifetime; it should be the service's shutdown context.
func NewPushHandler(baseCtx context.Context, processor *Processor, logger zerolog.Logger) *PushHandler {
	return &PushHandler{
		processor: processor,
		logger:    logger.With().Str("component", "PushHandler").Logger(),
		baseCtx:   baseCtx,
	}
}

// ServeHTTP handles POST deliveries. Structural problems with the request
// itself return 400; everything after the fast-ack is asynchronous.
func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn().Err(err).Msg("Push request body is not valid JSON.")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == nil {
		http.Error(w, "no message found", http.StatusBadRequest)
		return
	}
	if req.Message.Data == "" {
		http.Error(w, "message has no data", http.StatusBadRequest)
		return
	}

	msg := h.toMessage(req.Message)

	// Fast-ack before the business outcome is known; failures are routed
	// to the dead-letter controller by the background task.
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.processor.ProcessEnvelope(h.baseCtx, msg)
	}()

	w.WriteHeader(http.StatusNoContent)
}

// Drain waits for in-flight background tasks, respecting the context's
// deadline.
func (h *PushHandler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// toMessage converts a push delivery to the pipeline's envelope form. The
// payload stays base64 until the codec runs, mirroring the wire format; the
// acknowledgment already happened at the HTTP layer, so the handle is a
// no-op.
func (h *PushHandler) toMessage(pm *pushMessage) Message {
	publishTime, err := time.Parse(time.RFC3339, pm.PublishTime)
	if err != nil {
		publishTime = time.Now().UTC()
	}

	payload, err := base64.StdEncoding.DecodeString(pm.Data)
	if err != nil {
		// Keep the raw text: the codec will fail it and the dead-letter
		// record preserves what actually arrived.
		payload = []byte(pm.Data)
	}

	return Message{
		ID:           pm.MessageID,
		Payload:      payload,
		Attributes:   pm.Attributes,
		PublishTime:  publishTime,
		Acknowledger: NopAcknowledger{},
	}
}
