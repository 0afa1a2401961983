// Package events provides in-process pub/sub for queue domain events.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Queue event types. The audit scalars on a DoctorQueue are the
// latest-event projection of this stream.
const (
	TypeVisitAdded          = "VISIT_ADDED"
	TypePatientCheckedIn    = "PATIENT_CHECKED_IN"
	TypeCallNext            = "CALL_NEXT"
	TypePatientSkipped      = "PATIENT_SKIPPED"
	TypeConsultationStarted = "CONSULTATION_STARTED"
	TypeConsultationEnded   = "CONSULTATION_ENDED"
	TypeQueueClosed         = "QUEUE_CLOSED"
)

// Event is a lightweight domain event emitted after a queue mutation commits.
type Event struct {
	Type      string
	QueueID   string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event Event) error

// Bus provides in-process pub/sub for events.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON marshals payload and publishes it under the given type.
func (b *Bus) PublishJSON(eventType, queueID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.Publish(Event{Type: eventType, QueueID: queueID, Payload: data})
	return nil
}
