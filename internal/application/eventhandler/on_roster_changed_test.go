package eventhandler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/gradebook/internal/domain/gradebook"
	"github.com/alem-hub/gradebook/internal/domain/shared"
	"github.com/alem-hub/gradebook/internal/infrastructure/messaging"
	"github.com/alem-hub/gradebook/pkg/retry"
)

type fakeSink struct {
	mu       sync.Mutex
	name     string
	failures []error
	calls    int
	last     []gradebook.AverageEntry
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Project(_ context.Context, entries []gradebook.AverageEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}
	s.last = entries
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig() RosterChangedConfig {
	return RosterChangedConfig{
		ProjectTimeout: time.Second,
		Retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(time.Millisecond),
			retry.WithMaxDelay(2*time.Millisecond),
			retry.WithJitter(0),
		),
	}
}

func TestOnRosterChanged_ProjectsThroughBus(t *testing.T) {
	registry := gradebook.NewRegistry()
	sink := &fakeSink{name: "memory"}
	handler := NewOnRosterChangedHandler(registry, []gradebook.ProjectionSink{sink}, quietLogger(), fastConfig())

	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = quietLogger()
	bus := messaging.NewInMemoryEventBus(busConfig)
	require.NoError(t, handler.Register(bus))

	registry.Enroll("Bob")
	require.NoError(t, bus.Publish(gradebook.NewStudentEnrolledEvent("Bob")))

	registry.RecordGrade("Bob", 80)
	stats, _ := registry.Stats("Bob")
	require.NoError(t, bus.Publish(gradebook.NewGradeRecordedEvent("Bob", 80, stats)))
	require.NoError(t, bus.Close())

	assert.Equal(t, 2, sink.calls)
	assert.Equal(t, []gradebook.AverageEntry{{StudentID: "Bob", Average: 80.0}}, sink.last)
}

func TestOnRosterChanged_RetriesTransientFailures(t *testing.T) {
	registry := gradebook.NewRegistry()
	registry.Enroll("Alice")

	transient := shared.WrapError("redis", "Project", shared.ErrServiceUnavailable, "connection refused", nil)
	sink := &fakeSink{name: "flaky", failures: []error{transient, transient}}
	handler := NewOnRosterChangedHandler(registry, []gradebook.ProjectionSink{sink}, quietLogger(), fastConfig())

	err := handler.Handle(gradebook.NewStudentEnrolledEvent("Alice"))
	require.NoError(t, err)
	assert.Equal(t, 3, sink.calls)
	assert.Len(t, sink.last, 1)
}

func TestOnRosterChanged_PermanentFailureIsNotRetried(t *testing.T) {
	registry := gradebook.NewRegistry()
	broken := &fakeSink{name: "broken", failures: []error{errors.New("schema mismatch")}}
	healthy := &fakeSink{name: "healthy"}
	handler := NewOnRosterChangedHandler(registry,
		[]gradebook.ProjectionSink{broken, healthy}, quietLogger(), fastConfig())

	err := handler.Handle(gradebook.NewStudentEnrolledEvent("Alice"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrProjectionFailed)
	assert.True(t, shared.IsExternalService(err))
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, healthy.calls)
}

func TestOnRosterChanged_FailureLeavesRegistryUntouched(t *testing.T) {
	registry := gradebook.NewRegistry()
	registry.Enroll("Alice")
	registry.RecordGrade("Alice", 90)
	before := registry.Version()

	failing := &fakeSink{name: "down", failures: []error{errors.New("boom")}}
	handler := NewOnRosterChangedHandler(registry, []gradebook.ProjectionSink{failing}, quietLogger(), fastConfig())

	assert.Error(t, handler.Handle(gradebook.NewStudentEnrolledEvent("Alice")))
	assert.Equal(t, before, registry.Version())
	assert.Equal(t, 90.0, registry.AverageGrade("Alice"))
}

func TestOnRosterChanged_NoSinks(t *testing.T) {
	handler := NewOnRosterChangedHandler(gradebook.NewRegistry(), nil, nil, RosterChangedConfig{})
	assert.NoError(t, handler.Handle(gradebook.NewStudentEnrolledEvent("Alice")))
}

func TestOnRosterChanged_BreakerDisablesFailingSink(t *testing.T) {
	registry := gradebook.NewRegistry()
	registry.Enroll("Alice")

	down := shared.WrapError("redis", "Project", shared.ErrServiceUnavailable, "connection refused", nil)
	failing := &fakeSink{name: "down", failures: []error{down, down, down, down}}
	healthy := &fakeSink{name: "healthy"}

	config := fastConfig()
	config.Retrier = retry.New(retry.WithMaxAttempts(1))
	config.BreakerThreshold = 2
	config.BreakerCooldown = time.Hour
	handler := NewOnRosterChangedHandler(registry,
		[]gradebook.ProjectionSink{failing, healthy}, quietLogger(), config)

	event := gradebook.NewStudentEnrolledEvent("Alice")
	for i := 0; i < 4; i++ {
		registry.RecordGrade("Alice", 90)
		err := handler.Handle(event)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrProjectionFailed)
	}

	// Two failures open the circuit, the remaining deliveries skip the sink.
	assert.Equal(t, 2, failing.calls)
	assert.Equal(t, 4, healthy.calls)
}

func TestOnRosterChanged_PermanentFailuresKeepBreakerClosed(t *testing.T) {
	registry := gradebook.NewRegistry()
	rejected := &fakeSink{name: "rejected", failures: []error{
		errors.New("constraint violated"),
		errors.New("constraint violated"),
		errors.New("constraint violated"),
	}}

	config := fastConfig()
	config.BreakerThreshold = 1
	handler := NewOnRosterChangedHandler(registry, []gradebook.ProjectionSink{rejected}, quietLogger(), config)

	for i := 0; i < 3; i++ {
		assert.Error(t, handler.Handle(gradebook.NewStudentEnrolledEvent("Alice")))
	}
	require.NoError(t, handler.Handle(gradebook.NewStudentEnrolledEvent("Alice")))
	assert.Equal(t, 4, rejected.calls)
}

func TestOnRosterChanged_SkipsSnapshotAlreadyProjected(t *testing.T) {
	registry := gradebook.NewRegistry()
	registry.Enroll("Alice")
	sink := &fakeSink{name: "memory"}
	handler := NewOnRosterChangedHandler(registry, []gradebook.ProjectionSink{sink}, quietLogger(), fastConfig())

	event := gradebook.NewStudentEnrolledEvent("Alice")
	require.NoError(t, handler.Handle(event))
	require.NoError(t, handler.Handle(event))
	assert.Equal(t, 1, sink.calls)

	registry.Enroll("Bob")
	require.NoError(t, handler.Handle(gradebook.NewStudentEnrolledEvent("Bob")))
	assert.Equal(t, 2, sink.calls)
	assert.Len(t, sink.last, 2)
}

// heldSource отдаёт первый снимок реестра, но возвращает его только после release.
type heldSource struct {
	*gradebook.Registry
	once    sync.Once
	taken   chan struct{}
	release chan struct{}
}

func (s *heldSource) AveragesSnapshot() (uint64, []gradebook.AverageEntry) {
	version, entries := s.Registry.AveragesSnapshot()
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.taken)
		<-s.release
	}
	return version, entries
}

// notifySink сообщает о каждой успешной выгрузке.
type notifySink struct {
	fakeSink
	projected chan struct{}
}

func (s *notifySink) Project(ctx context.Context, entries []gradebook.AverageEntry) error {
	err := s.fakeSink.Project(ctx, entries)
	s.projected <- struct{}{}
	return err
}

func TestOnRosterChanged_AsyncOlderSnapshotDoesNotOverwriteNewer(t *testing.T) {
	registry := gradebook.NewRegistry()
	source := &heldSource{
		Registry: registry,
		taken:    make(chan struct{}),
		release:  make(chan struct{}),
	}
	sink := &notifySink{fakeSink: fakeSink{name: "memory"}, projected: make(chan struct{}, 4)}
	handler := NewOnRosterChangedHandler(source, []gradebook.ProjectionSink{sink}, quietLogger(), fastConfig())

	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.AsyncMode = true
	busConfig.WorkerPoolSize = 2
	busConfig.Logger = quietLogger()
	bus := messaging.NewInMemoryEventBus(busConfig)
	require.NoError(t, handler.Register(bus))

	registry.Enroll("Alice")
	require.NoError(t, bus.Publish(gradebook.NewStudentEnrolledEvent("Alice")))
	<-source.taken

	// The first delivery holds the [Alice] view while the second one projects [Alice, Bob].
	registry.Enroll("Bob")
	require.NoError(t, bus.Publish(gradebook.NewStudentEnrolledEvent("Bob")))
	select {
	case <-sink.projected:
	case <-time.After(5 * time.Second):
		t.Fatal("second delivery was not projected")
	}

	close(source.release)
	require.NoError(t, bus.Close())

	assert.Equal(t, registry.AllAverages(), sink.last)
	assert.Equal(t, 1, sink.calls)
}
