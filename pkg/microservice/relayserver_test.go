package microservice_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/deadletter"
	"github.com/illmade-knight/go-crm-relay/pkg/dispatch"
	"github.com/illmade-knight/go-crm-relay/pkg/microservice"
	"github.com/illmade-knight/go-crm-relay/pkg/pipeline"
	"github.com/illmade-knight/go-crm-relay/pkg/seen"
	"github.com/illmade-knight/go-crm-relay/pkg/validation"
)

type noopPublisher struct{}

func (noopPublisher) Publish(_ context.Context, _ []byte, _ map[string]string) error { return nil }
func (noopPublisher) Stop(_ context.Context) error                                   { return nil }

type noopArchiver struct{}

func (noopArchiver) Archive(_ context.Context, _ deadletter.Record) error { return nil }

type stubConsumer struct {
	msgChan  chan pipeline.Message
	doneChan chan struct{}
	stopOnce sync.Once
}

func newStubConsumer() *stubConsumer {
	return &stubConsumer{
		msgChan:  make(chan pipeline.Message, 4),
		doneChan: make(chan struct{}),
	}
}

func (c *stubConsumer) Messages() <-chan pipeline.Message { return c.msgChan }
func (c *stubConsumer) Start(_ context.Context) error     { return nil }
func (c *stubConsumer) Stop(_ context.Context) error {
	c.stopOnce.Do(func() {
		close(c.msgChan)
		close(c.doneChan)
	})
	return nil
}
func (c *stubConsumer) Done() <-chan struct{} { return c.doneChan }

type recordingHandler struct {
	mu    sync.Mutex
	count int
}

func (h *recordingHandler) Process(_ context.Context, _ *crmevents.Event) (dispatch.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	return dispatch.Result{Success: true}, nil
}

func (h *recordingHandler) processed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func newTestServer(t *testing.T) (*microservice.RelayServer, *stubConsumer, *stubConsumer, *recordingHandler) {
	t.Helper()

	handler := &recordingHandler{}
	registry, err := dispatch.NewRegistry(map[string]dispatch.Handler{
		crmevents.TypeNewRegistrationEmail: handler,
	})
	require.NoError(t, err)

	controller, err := deadletter.NewController(&deadletter.ControllerConfig{MaxRetries: 3}, noopPublisher{}, noopArchiver{}, zerolog.Nop())
	require.NoError(t, err)

	processor, err := pipeline.NewProcessor(validation.NewValidator(), registry, controller, seen.NewInMemoryStore(), 2*time.Second, zerolog.Nop())
	require.NoError(t, err)

	consumer := newStubConsumer()
	relay, err := pipeline.NewRelayService(consumer, processor, zerolog.Nop())
	require.NoError(t, err)

	dlqConsumer := newStubConsumer()
	dlqRelay, err := pipeline.NewRelayService(dlqConsumer, processor, zerolog.Nop())
	require.NoError(t, err)

	push := pipeline.NewPushHandler(context.Background(), processor, zerolog.Nop())

	cfg := microservice.NewRelayServerConfigDefaults()
	cfg.HTTPPort = ":0"
	server, err := microservice.NewRelayServer(cfg, []*pipeline.RelayService{relay, dlqRelay}, push, noopPublisher{}, nil, zerolog.Nop())
	require.NoError(t, err)
	return server, consumer, dlqConsumer, handler
}

func TestNewRelayServer_RequiresAnIngress(t *testing.T) {
	cfg := microservice.NewRelayServerConfigDefaults()
	_, err := microservice.NewRelayServer(cfg, nil, nil, noopPublisher{}, nil, zerolog.Nop())
	require.ErrorContains(t, err, "at least one ingress")
}

func TestRelayServer_ServesBothIngresses(t *testing.T) {
	server, consumer, dlqConsumer, handler := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx))

	baseURL := "http://localhost" + server.GetHTTPPort()

	t.Run("Healthz", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/healthz")
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	registrationPayload := `{
		"crmProcess": "newRegistrationEmail",
		"customer": {"email": "jo@example.com"},
		"metadata": {}
	}`

	t.Run("PushIngress", func(t *testing.T) {
		body, err := json.Marshal(map[string]interface{}{
			"message": map[string]interface{}{
				"data":      base64.StdEncoding.EncodeToString([]byte(registrationPayload)),
				"messageId": "push-1",
			},
		})
		require.NoError(t, err)

		resp, err := http.Post(baseURL+"/push-handler", "application/json", strings.NewReader(string(body)))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		require.Eventually(t, func() bool {
			return handler.processed() >= 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("PullIngress", func(t *testing.T) {
		before := handler.processed()
		ack := &onceAck{}
		consumer.msgChan <- pipeline.Message{
			ID:           fmt.Sprintf("pull-%d", before),
			Payload:      []byte(registrationPayload),
			PublishTime:  time.Now().UTC(),
			Acknowledger: ack,
		}
		require.Eventually(t, func() bool {
			return handler.processed() > before
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("DeadLetterIngress", func(t *testing.T) {
		before := handler.processed()
		record, err := json.Marshal(map[string]interface{}{
			"originalMessage": map[string]interface{}{
				"id":   "original-1",
				"data": registrationPayload,
			},
			"error":      map[string]interface{}{"name": "ProcessingError", "message": "handler failed"},
			"retryCount": 1,
		})
		require.NoError(t, err)

		dlqConsumer.msgChan <- pipeline.Message{
			ID:           "dlq-1",
			Payload:      record,
			PublishTime:  time.Now().UTC(),
			Acknowledger: &onceAck{},
		}
		require.Eventually(t, func() bool {
			return handler.processed() > before
		}, 2*time.Second, 10*time.Millisecond)
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	require.NoError(t, server.Shutdown(shutdownCtx))
}

type onceAck struct{}

func (onceAck) Ack()  {}
func (onceAck) Nack() {}
