package shared

import "time"

// EventType names a domain event.
type EventType string

// События реестра.
const (
	EventStudentEnrolled EventType = "gradebook.student_enrolled"
	EventGradeRecorded   EventType = "gradebook.grade_recorded"
)

// Event is implemented by every domain event.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time

	// AggregateID is the student the event is about.
	AggregateID() string

	// Payload is a flat view of the event for logs.
	Payload() map[string]any
}

// BaseEvent carries the fields every event has. Embed it by value.
type BaseEvent struct {
	Type          EventType
	At            time.Time
	Aggregate     string
	CorrelationID string
}

// NewBaseEvent stamps a new event with the current UTC time.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{Type: eventType, At: time.Now().UTC(), Aggregate: aggregateID}
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.At }
func (e BaseEvent) AggregateID() string   { return e.Aggregate }

// WithCorrelationID returns a copy tagged with the command's correlation id.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT BUS CONTRACTS
// ══════════════════════════════════════════════════════════════════════════════

// EventHandler handles one event. Its error is reported by the bus, never
// returned to the publisher.
type EventHandler func(event Event) error

// EventPublisher is what command handlers depend on.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber is what event handlers register with.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
