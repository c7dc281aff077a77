// Package pipeline implements the CRM relay's message ingestion and
// dispatch pipeline: a pull-mode Pub/Sub consumer and a push-mode webhook
// endpoint both feed the same decode, validate, dispatch and dead-letter
// chain.
package pipeline

import (
	"sync"
	"time"
)

// Acknowledger is the explicit acknowledgment handle for a delivered
// envelope. Exactly one of Ack or Nack must take effect per envelope; it is
// threaded through the chain as a value so tests can assert which was
// called.
type Acknowledger interface {
	// Ack removes the envelope from the live queue.
	Ack()
	// Nack requests redelivery from the broker.
	Nack()
}

// Message is the borrowed representation of one broker envelope. The
// pipeline owns it only for the duration of processing.
type Message struct {
	ID           string
	Payload      []byte
	Attributes   map[string]string
	PublishTime  time.Time
	Acknowledger Acknowledger
}

// onceAcknowledger resolves an envelope at most once; later calls to either
// method are ignored, so a double-ack is a no-op rather than a crash.
type onceAcknowledger struct {
	once sync.Once
	ack  func()
	nack func()
}

// NewOnceAcknowledger wraps raw ack/nack callbacks so that only the first
// resolution takes effect.
func NewOnceAcknowledger(ack func(), nack func()) Acknowledger {
	return &onceAcknowledger{ack: ack, nack: nack}
}

func (a *onceAcknowledger) Ack() {
	a.once.Do(func() {
		if a.ack != nil {
			a.ack()
		}
	})
}

func (a *onceAcknowledger) Nack() {
	a.once.Do(func() {
		if a.nack != nil {
			a.nack()
		}
	})
}

// NopAcknowledger is used on the push path, where the HTTP response has
// already acknowledged delivery and there is nothing left to resolve.
type NopAcknowledger struct{}

func (NopAcknowledger) Ack()  {}
func (NopAcknowledger) Nack() {}
