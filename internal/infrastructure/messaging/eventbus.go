// Package messaging implements the in-process event bus for the gradebook.
// Commands publish roster events here; projection handlers subscribe to them.
package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/gradebook/internal/domain/shared"
)

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a value recovered from a handler.
	ErrHandlerPanic = errors.New("handler panicked")
)

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode hands events to a worker pool instead of the publishing goroutine.
	AsyncMode bool

	// WorkerPoolSize is the number of async workers.
	WorkerPoolSize int

	// QueueSize bounds pending async events; Publish blocks when it is full.
	QueueSize int

	Logger *slog.Logger

	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns the defaults.
// The CLI runs the bus synchronously so output order is deterministic.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      false,
		WorkerPoolSize: 4,
		QueueSize:      256,
		EnableMetrics:  true,
	}
}

// InMemoryEventBus is an in-memory implementation of shared.EventBus.
//
// Handlers of one event run in subscription order: typed handlers first, then
// catch-all ones. Handler errors and panics are logged and counted, never
// returned to the publisher. In async mode Close drains the queue.
type InMemoryEventBus struct {
	id      string
	logger  *slog.Logger
	metrics *EventBusMetrics

	mu       sync.RWMutex
	handlers map[shared.EventType][]shared.EventHandler
	catchAll []shared.EventHandler
	closed   bool

	queue   chan delivery // nil in sync mode
	workers sync.WaitGroup
}

// delivery carries the handlers resolved at publish time, so workers never
// take the bus lock.
type delivery struct {
	event    shared.Event
	handlers []shared.EventHandler
}

// NewInMemoryEventBus creates a new in-memory event bus and, in async mode,
// starts its workers.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	id := uuid.NewString()
	bus := &InMemoryEventBus{
		id:       id,
		logger:   config.Logger.With("bus_id", id),
		handlers: make(map[shared.EventType][]shared.EventHandler),
	}
	if config.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}

	if config.AsyncMode {
		workers := max(config.WorkerPoolSize, 1)
		bus.queue = make(chan delivery, max(config.QueueSize, 0))
		bus.workers.Add(workers)
		for i := 0; i < workers; i++ {
			go bus.work()
		}
	}

	return bus
}

// ID returns the unique identifier of this bus instance.
func (b *InMemoryEventBus) ID() string {
	return b.id
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.subscribe(handler, func() {
		b.handlers[eventType] = append(b.handlers[eventType], handler)
	})
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.subscribe(handler, func() {
		b.catchAll = append(b.catchAll, handler)
	})
}

func (b *InMemoryEventBus) subscribe(handler shared.EventHandler, add func()) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

// Publish delivers the event to its handlers, or queues it in async mode.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	if b.metrics != nil {
		b.metrics.recordPublish(event.EventType())
	}

	handlers := b.handlersFor(event.EventType())
	if b.queue != nil {
		// Close takes the write lock before closing the queue, so the send is safe.
		b.queue <- delivery{event: event, handlers: handlers}
		b.mu.RUnlock()
		return nil
	}
	b.mu.RUnlock()

	b.dispatch(event, handlers)
	return nil
}

// handlersFor must be called with b.mu held.
func (b *InMemoryEventBus) handlersFor(eventType shared.EventType) []shared.EventHandler {
	typed := b.handlers[eventType]
	out := make([]shared.EventHandler, 0, len(typed)+len(b.catchAll))
	out = append(out, typed...)
	return append(out, b.catchAll...)
}

func (b *InMemoryEventBus) work() {
	defer b.workers.Done()

	for d := range b.queue {
		b.dispatch(d.event, d.handlers)
	}
}

func (b *InMemoryEventBus) dispatch(event shared.Event, handlers []shared.EventHandler) {
	if len(handlers) == 0 {
		b.logger.Debug("no handlers for event", "event_type", event.EventType())
		return
	}

	for _, handler := range handlers {
		start := time.Now()
		err := invoke(handler, event)
		if b.metrics != nil {
			b.metrics.recordHandler(time.Since(start), err == nil)
		}
		if err != nil {
			b.logger.Error("handler error",
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"error", err,
			)
		}
	}
}

func invoke(handler shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return handler(event)
}

// Close stops accepting events and waits until queued events are handled.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.queue != nil {
		close(b.queue)
	}
	b.mu.Unlock()

	b.workers.Wait()
	b.logger.Debug("event bus closed")
	return nil
}

// Metrics returns the bus metrics, or nil when disabled.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts published events and handler outcomes.
type EventBusMetrics struct {
	mu        sync.Mutex
	published map[shared.EventType]int64

	executions atomic.Int64
	failures   atomic.Int64
	busyNanos  atomic.Int64
}

// NewEventBusMetrics creates an empty metrics tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{published: make(map[shared.EventType]int64)}
}

func (m *EventBusMetrics) recordPublish(eventType shared.EventType) {
	m.mu.Lock()
	m.published[eventType]++
	m.mu.Unlock()
}

func (m *EventBusMetrics) recordHandler(d time.Duration, ok bool) {
	m.executions.Add(1)
	m.busyNanos.Add(int64(d))
	if !ok {
		m.failures.Add(1)
	}
}

// Published returns how many events of the given type were published.
func (m *EventBusMetrics) Published(eventType shared.EventType) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published[eventType]
}

// EventBusMetricsSnapshot is a point-in-time copy of the metrics.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64
	TotalHandlerExecs      int64
	HandlerFailures        int64
	HandlerSuccessRate     float64
	AverageHandlerDuration time.Duration
}

// Snapshot returns a copy of current metrics.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	s := EventBusMetricsSnapshot{
		TotalHandlerExecs:  m.executions.Load(),
		HandlerFailures:    m.failures.Load(),
		HandlerSuccessRate: 1.0,
	}

	m.mu.Lock()
	for _, n := range m.published {
		s.TotalPublished += n
	}
	m.mu.Unlock()

	if s.TotalHandlerExecs > 0 {
		s.HandlerSuccessRate = float64(s.TotalHandlerExecs-s.HandlerFailures) / float64(s.TotalHandlerExecs)
		s.AverageHandlerDuration = time.Duration(m.busyNanos.Load() / s.TotalHandlerExecs)
	}
	return s
}
