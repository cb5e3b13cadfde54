package gradebook

import (
	"github.com/alem-hub/gradebook/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// Roster Events
// ═══════════════════════════════════════════════════════════════════════════

// StudentEnrolledEvent публикуется после успешного зачисления.
type StudentEnrolledEvent struct {
	shared.BaseEvent
	StudentID StudentID
}

// Payload implements Event interface.
func (e StudentEnrolledEvent) Payload() map[string]any {
	return map[string]any{
		"student_id": string(e.StudentID),
	}
}

// NewStudentEnrolledEvent создаёт StudentEnrolledEvent.
func NewStudentEnrolledEvent(id StudentID) StudentEnrolledEvent {
	return StudentEnrolledEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventStudentEnrolled, string(id)),
		StudentID: id,
	}
}

// GradeRecordedEvent публикуется после добавления оценки.
type GradeRecordedEvent struct {
	shared.BaseEvent
	StudentID  StudentID
	Grade      int      
	GradeCount int      
	NewAverage float64  
}

// Payload implements Event interface.
func (e GradeRecordedEvent) Payload() map[string]any {
	return map[string]any{
		"student_id":  string(e.StudentID),
		"grade":       e.Grade,
		"grade_count": e.GradeCount,
		"new_average": e.NewAverage,
	}
}

// NewGradeRecordedEvent создаёт GradeRecordedEvent.
func NewGradeRecordedEvent(id StudentID, grade int, stats Stats) GradeRecordedEvent {
	return GradeRecordedEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventGradeRecorded, string(id)),
		StudentID:  id,
		Grade:      grade,
		GradeCount: stats.Count,
		NewAverage: stats.Average,
	}
}
