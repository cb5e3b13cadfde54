package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alem-hub/gradebook/internal/domain/gradebook"
	"github.com/alem-hub/gradebook/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD GRADE COMMAND
// Appends a grade to an enrolled student's record.
// Unknown students are reported through the outcome, not as an error.
// ══════════════════════════════════════════════════════════════════════════════

// RecordGradeCommand contains the data needed to record a grade.
type RecordGradeCommand struct {
	// StudentID is the case-sensitive student identifier.
	StudentID string

	// Grade is the value to append. Any integer unless the registry has a range.
	Grade int

	// CorrelationID for tracing. Generated when empty.
	CorrelationID string
}

// Validate validates the command.
func (c RecordGradeCommand) Validate() error {
	if gradebook.StudentID(c.StudentID).IsEmpty() {
		return shared.ErrEmptyStudentID
	}
	return nil
}

// RecordGradeResult contains the outcome of recording a grade.
type RecordGradeResult struct {
	StudentID     gradebook.StudentID
	Grade         int
	Outcome       gradebook.RecordResult
	NewAverage    float64
	CorrelationID string
}

// Recorded reports whether the grade was appended.
func (r RecordGradeResult) Recorded() bool {
	return r.Outcome == gradebook.Recorded
}

// RecordGradeHandler handles the RecordGradeCommand.
type RecordGradeHandler struct {
	registry       *gradebook.Registry
	eventPublisher shared.EventPublisher
	logger         *slog.Logger
}

// NewRecordGradeHandler creates a new RecordGradeHandler.
func NewRecordGradeHandler(
	registry *gradebook.Registry,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *RecordGradeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordGradeHandler{
		registry:       registry,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Handle executes the record grade command.
func (h *RecordGradeHandler) Handle(ctx context.Context, cmd RecordGradeCommand) (*RecordGradeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = uuid.NewString()
	}

	id := gradebook.StudentID(cmd.StudentID)
	outcome := h.registry.RecordGrade(id, cmd.Grade)

	result := &RecordGradeResult{
		StudentID:     id,
		Grade:         cmd.Grade,
		Outcome:       outcome,
		CorrelationID: cmd.CorrelationID,
	}

	log := h.logger.With("student_id", cmd.StudentID, "correlation_id", cmd.CorrelationID)
	switch outcome {
	case gradebook.Recorded:
		stats, _ := h.registry.Stats(id)
		result.NewAverage = stats.Average
		log.InfoContext(ctx, fmt.Sprintf("grade %d added for %s", cmd.Grade, cmd.StudentID),
			"grade_count", stats.Count,
			"average", stats.Average,
		)
		event := gradebook.NewGradeRecordedEvent(id, cmd.Grade, stats)
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		publish(ctx, h.eventPublisher, log, event)
	case gradebook.StudentNotFound:
		log.InfoContext(ctx, "student not found", "grade", cmd.Grade)
	case gradebook.GradeOutOfRange:
		gradeRange, _ := h.registry.GradeRange()
		log.WarnContext(ctx, "grade rejected: out of range",
			"grade", cmd.Grade,
			"range", gradeRange.String(),
		)
	}

	return result, nil
}
