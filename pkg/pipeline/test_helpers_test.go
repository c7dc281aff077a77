package pipeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-crm-relay/pkg/crmevents"
	"github.com/illmade-knight/go-crm-relay/pkg/deadletter"
	"github.com/illmade-knight/go-crm-relay/pkg/dispatch"
	"github.com/illmade-knight/go-crm-relay/pkg/pipeline"
	"github.com/illmade-knight/go-crm-relay/pkg/seen"
	"github.com/illmade-knight/go-crm-relay/pkg/validation"
)

// --- acknowledgment double ---

// testAck counts Ack/Nack calls so tests can assert exactly one resolution
// and inspect which.
type testAck struct {
	mu    sync.Mutex
	acks  int
	nacks int
}

func (a *testAck) Ack() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
}

func (a *testAck) Nack() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
}

func (a *testAck) Acked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks > 0
}

func (a *testAck) Nacked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nacks > 0
}

func (a *testAck) Resolved() bool { return a.Acked() || a.Nacked() }

// --- dead-letter capture ---

// capturePublisher retains every published dead-letter payload.
type capturePublisher struct {
	mu        sync.Mutex
	published [][]byte
}

func (p *capturePublisher) Publish(_ context.Context, payload []byte, _ map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	p.published = append(p.published, buf)
	return nil
}

func (p *capturePublisher) Stop(_ context.Context) error { return nil }

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func (p *capturePublisher) record(t *testing.T, i int) deadletter.Record {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.Greater(t, len(p.published), i)
	record, ok := deadletter.ParseRecord(p.published[i])
	require.True(t, ok)
	return *record
}

type captureArchiver struct {
	mu       sync.Mutex
	archived []deadletter.Record
}

func (a *captureArchiver) Archive(_ context.Context, record deadletter.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, record)
	return nil
}

func (a *captureArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.archived)
}

// --- consumer double ---

// mockConsumer is a channel-backed MessageConsumer for relay tests.
type mockConsumer struct {
	msgChan   chan pipeline.Message
	doneChan  chan struct{}
	stopOnce  sync.Once
	mu        sync.Mutex
	startCnt  int
	stopCnt   int
}

func newMockConsumer(buffer int) *mockConsumer {
	return &mockConsumer{
		msgChan:  make(chan pipeline.Message, buffer),
		doneChan: make(chan struct{}),
	}
}

func (m *mockConsumer) Messages() <-chan pipeline.Message { return m.msgChan }

func (m *mockConsumer) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCnt++
	return nil
}

func (m *mockConsumer) Stop(_ context.Context) error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopCnt++
		m.mu.Unlock()
		close(m.msgChan)
		close(m.doneChan)
	})
	return nil
}

func (m *mockConsumer) Done() <-chan struct{} { return m.doneChan }

func (m *mockConsumer) push(msg pipeline.Message) { m.msgChan <- msg }

func (m *mockConsumer) startCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCnt
}

// --- processor fixture ---

type processorFixture struct {
	processor *pipeline.Processor
	publisher *capturePublisher
	archiver  *captureArchiver
	store     *seen.InMemoryStore
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	timeout time.Duration
	store   seen.Store
}

func withTimeout(d time.Duration) fixtureOption {
	return func(c *fixtureConfig) { c.timeout = d }
}

// newProcessorFixture assembles a Processor around the given handlers with
// capture doubles for the dead-letter side effects.
func newProcessorFixture(t *testing.T, handlers map[string]dispatch.Handler, opts ...fixtureOption) *processorFixture {
	t.Helper()

	cfg := &fixtureConfig{timeout: 2 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}

	publisher := &capturePublisher{}
	archiver := &captureArchiver{}
	controller, err := deadletter.NewController(&deadletter.ControllerConfig{MaxRetries: 3}, publisher, archiver, zerolog.Nop())
	require.NoError(t, err)

	registry, err := dispatch.NewRegistry(handlers)
	require.NoError(t, err)

	store := seen.NewInMemoryStore()
	processor, err := pipeline.NewProcessor(validation.NewValidator(), registry, controller, store, cfg.timeout, zerolog.Nop())
	require.NoError(t, err)

	return &processorFixture{
		processor: processor,
		publisher: publisher,
		archiver:  archiver,
		store:     store,
	}
}

// --- message builders ---

const validScreenerPayload = `{
	"crmProcess": "screenerNotification",
	"customer": {"email": "a@b.com"},
	"sessionId": "s1",
	"metadata": {"origin": "web"},
	"timestamp": 1700000000
}`

func newEnvelope(id string, payload string) (pipeline.Message, *testAck) {
	ack := &testAck{}
	return pipeline.Message{
		ID:           id,
		Payload:      []byte(payload),
		Attributes:   map[string]string{"origin": "test"},
		PublishTime:  time.Now().UTC(),
		Acknowledger: ack,
	}, ack
}

// countingHandler records how many events it processed and in what order.
type countingHandler struct {
	mu       sync.Mutex
	events   []*crmevents.Event
	result   dispatch.Result
	err      error
	block    chan struct{}
	panicMsg string
}

func (h *countingHandler) Process(ctx context.Context, event *crmevents.Event) (dispatch.Result, error) {
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return dispatch.Result{}, ctx.Err()
		}
	}
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.result, h.err
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *countingHandler) sessionOrder() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	order := make([]string, 0, len(h.events))
	for _, event := range h.events {
		order = append(order, event.SessionID())
	}
	return order
}

func okResult() dispatch.Result { return dispatch.Result{Success: true} }
