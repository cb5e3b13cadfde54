// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"

	"github.com/alem-hub/gradebook/internal/domain/gradebook"
	"github.com/alem-hub/gradebook/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET AVERAGE QUERY
// Returns a single student's average with the registry's 0.0 sentinel intact.
// ══════════════════════════════════════════════════════════════════════════════

// GetAverageQuery contains parameters for the average lookup.
type GetAverageQuery struct {
	StudentID string
}

// Validate validates the query.
func (q GetAverageQuery) Validate() error {
	if q.StudentID == "" {
		return shared.ErrEmptyStudentID
	}
	return nil
}

// GetAverageResult contains the average.
type GetAverageResult struct {
	StudentID gradebook.StudentID

	// Average is 0.0 both for unknown students and for students without grades.
	Average float64

	// Enrolled lets callers tell the two 0.0 cases apart when they need to.
	Enrolled bool
}

// GetAverageHandler handles GetAverageQuery.
type GetAverageHandler struct {
	registry *gradebook.Registry
}

// NewGetAverageHandler creates a new GetAverageHandler.
func NewGetAverageHandler(registry *gradebook.Registry) *GetAverageHandler {
	return &GetAverageHandler{registry: registry}
}

// Handle executes the query.
func (h *GetAverageHandler) Handle(ctx context.Context, q GetAverageQuery) (*GetAverageResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	id := gradebook.StudentID(q.StudentID)
	return &GetAverageResult{
		StudentID: id,
		Average:   h.registry.AverageGrade(id),
		Enrolled:  h.registry.IsEnrolled(id),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT STATS QUERY
// Strict variant: unknown students are an error here.
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentStatsQuery contains parameters for the stats lookup.
type GetStudentStatsQuery struct {
	StudentID string
}

// GetStudentStatsResult contains the aggregates and the ordered grades.
type GetStudentStatsResult struct {
	Stats  gradebook.Stats
	Grades []int
}

// GetStudentStatsHandler handles GetStudentStatsQuery.
type GetStudentStatsHandler struct {
	registry *gradebook.Registry
}

// NewGetStudentStatsHandler creates a new GetStudentStatsHandler.
func NewGetStudentStatsHandler(registry *gradebook.Registry) *GetStudentStatsHandler {
	return &GetStudentStatsHandler{registry: registry}
}

// Handle executes the query.
// Returns shared.ErrStudentNotFound for students that were never enrolled.
func (h *GetStudentStatsHandler) Handle(ctx context.Context, q GetStudentStatsQuery) (*GetStudentStatsResult, error) {
	if q.StudentID == "" {
		return nil, shared.ErrEmptyStudentID
	}

	id := gradebook.StudentID(q.StudentID)
	stats, ok := h.registry.Stats(id)
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	grades, _ := h.registry.Grades(id)

	return &GetStudentStatsResult{Stats: stats, Grades: grades}, nil
}
