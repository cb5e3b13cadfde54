// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the grade registry.
// They own the side effects the registry itself never performs:
// logging outcomes and publishing domain events.
package command

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alem-hub/gradebook/internal/domain/gradebook"
	"github.com/alem-hub/gradebook/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL STUDENT COMMAND
// Adds a student to the roster. Enrolling twice is a reported no-op.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollStudentCommand contains the data needed to enroll a student.
type EnrollStudentCommand struct {
	// StudentID is the case-sensitive student identifier.
	StudentID string

	// CorrelationID for tracing. Generated when empty.
	CorrelationID string
}

// Validate validates the command.
func (c EnrollStudentCommand) Validate() error {
	if gradebook.StudentID(c.StudentID).IsEmpty() {
		return shared.ErrEmptyStudentID
	}
	return nil
}

// EnrollStudentResult contains the outcome of enrollment.
type EnrollStudentResult struct {
	StudentID     gradebook.StudentID
	Outcome       gradebook.EnrollResult
	CorrelationID string
}

// Enrolled reports whether the student was newly added.
func (r EnrollStudentResult) Enrolled() bool {
	return r.Outcome == gradebook.Enrolled
}

// EnrollStudentHandler handles the EnrollStudentCommand.
type EnrollStudentHandler struct {
	registry       *gradebook.Registry
	eventPublisher shared.EventPublisher
	logger         *slog.Logger
}

// NewEnrollStudentHandler creates a new EnrollStudentHandler.
// eventPublisher may be nil, in which case no events are published.
func NewEnrollStudentHandler(
	registry *gradebook.Registry,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *EnrollStudentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrollStudentHandler{
		registry:       registry,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Handle executes the enroll student command.
func (h *EnrollStudentHandler) Handle(ctx context.Context, cmd EnrollStudentCommand) (*EnrollStudentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = uuid.NewString()
	}

	id := gradebook.StudentID(cmd.StudentID)
	outcome := h.registry.Enroll(id)

	log := h.logger.With("student_id", cmd.StudentID, "correlation_id", cmd.CorrelationID)
	switch outcome {
	case gradebook.Enrolled:
		log.InfoContext(ctx, cmd.StudentID+" enrolled successfully")
		event := gradebook.NewStudentEnrolledEvent(id)
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		publish(ctx, h.eventPublisher, log, event)
	case gradebook.AlreadyEnrolled:
		log.InfoContext(ctx, cmd.StudentID+" is already enrolled")
	}

	return &EnrollStudentResult{
		StudentID:     id,
		Outcome:       outcome,
		CorrelationID: cmd.CorrelationID,
	}, nil
}

// publish sends an event if a publisher is configured.
// Publishing failures never change a command's outcome.
func publish(ctx context.Context, publisher shared.EventPublisher, log *slog.Logger, event shared.Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(event); err != nil {
		log.WarnContext(ctx, "failed to publish event",
			"event_type", event.EventType(),
			"error", err,
		)
	}
}
