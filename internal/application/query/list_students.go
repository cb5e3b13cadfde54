package query

import (
	"context"
	"sort"

	"github.com/alem-hub/gradebook/internal/domain/gradebook"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListStudentsQuery contains parameters for listing the roster.
type ListStudentsQuery struct {
	// Sorted requests ascending order. The registry itself guarantees no order.
	Sorted bool
}

// ListStudentsResult contains the roster.
type ListStudentsResult struct {
	Students   []gradebook.StudentID
	TotalCount int
}

// ListStudentsHandler handles ListStudentsQuery.
type ListStudentsHandler struct {
	registry *gradebook.Registry
}

// NewListStudentsHandler creates a new ListStudentsHandler.
func NewListStudentsHandler(registry *gradebook.Registry) *ListStudentsHandler {
	return &ListStudentsHandler{registry: registry}
}

// Handle executes the query.
func (h *ListStudentsHandler) Handle(ctx context.Context, q ListStudentsQuery) (*ListStudentsResult, error) {
	students := h.registry.AllStudents()
	if q.Sorted {
		sort.Slice(students, func(i, j int) bool { return students[i] < students[j] })
	}

	return &ListStudentsResult{
		Students:   students,
		TotalCount: len(students),
	}, nil
}
