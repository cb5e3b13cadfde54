package gradebook

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/gradebook/internal/domain/shared"
)

func TestRegistry_Enroll(t *testing.T) {
	registry := NewRegistry()

	assert.Equal(t, Enrolled, registry.Enroll("Alice"))
	assert.Equal(t, AlreadyEnrolled, registry.Enroll("Alice"))
	assert.Equal(t, 1, registry.Count())

	grades, ok := registry.Grades("Alice")
	require.True(t, ok)
	assert.Empty(t, grades)
}

func TestRegistry_Enroll_PreservesGrades(t *testing.T) {
	registry := NewRegistry()
	registry.Enroll("Alice")
	registry.RecordGrade("Alice", 70)
	registry.RecordGrade("Alice", 80)

	assert.Equal(t, AlreadyEnrolled, registry.Enroll("Alice"))

	grades, ok := registry.Grades("Alice")
	require.True(t, ok)
	assert.Equal(t, []int{70, 80}, grades)
}

func TestRegistry_Enroll_CaseSensitive(t *testing.T) {
	registry := NewRegistry()

	assert.Equal(t, Enrolled, registry.Enroll("alice"))
	assert.Equal(t, Enrolled, registry.Enroll("Alice"))
	assert.Equal(t, 2, registry.Count())
}

func TestRegistry_RecordGrade_UnknownStudent(t *testing.T) {
	registry := NewRegistry()

	assert.Equal(t, StudentNotFound, registry.RecordGrade("Charlie", 100))
	assert.False(t, registry.IsEnrolled("Charlie"))
	assert.Empty(t, registry.AllStudents())
	assert.Equal(t, uint64(0), registry.Version())

	registry.Enroll("Charlie")
	assert.Equal(t, 0.0, registry.AverageGrade("Charlie"))
}

func TestRegistry_RecordGrade_KeepsOrderAndDuplicates(t *testing.T) {
	registry := NewRegistry()
	registry.Enroll("Bob")

	for _, g := range []int{90, 85, 90, -5, 250} {
		assert.Equal(t, Recorded, registry.RecordGrade("Bob", g))
	}

	grades, ok := registry.Grades("Bob")
	require.True(t, ok)
	assert.Equal(t, []int{90, 85, 90, -5, 250}, grades)
}

func TestRegistry_RecordGrade_WithGradeRange(t *testing.T) {
	gradeRange, err := NewGradeRange(0, 100)
	require.NoError(t, err)

	registry := NewRegistry(WithGradeRange(gradeRange))
	registry.Enroll("Alice")

	assert.Equal(t, Recorded, registry.RecordGrade("Alice", 0))
	assert.Equal(t, Recorded, registry.RecordGrade("Alice", 100))
	assert.Equal(t, GradeOutOfRange, registry.RecordGrade("Alice", 101))
	assert.Equal(t, GradeOutOfRange, registry.RecordGrade("Alice", -1))
	assert.Equal(t, StudentNotFound, registry.RecordGrade("Bob", 500))

	grades, _ := registry.Grades("Alice")
	assert.Equal(t, []int{0, 100}, grades)

	configured, ok := registry.GradeRange()
	assert.True(t, ok)
	assert.Equal(t, "[0, 100]", configured.String())
}

func TestNewGradeRange_Invalid(t *testing.T) {
	_, err := NewGradeRange(10, 5)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.ErrorIs(t, err, shared.ErrInvalidGradeSpan)
}

func TestRegistry_AverageGrade(t *testing.T) {
	registry := NewRegistry()
	registry.Enroll("Alice")
	registry.RecordGrade("Alice", 1)
	registry.RecordGrade("Alice", 2)

	assert.Equal(t, 1.5, registry.AverageGrade("Alice"))
}

func TestRegistry_AverageGrade_SentinelIsAmbiguous(t *testing.T) {
	registry := NewRegistry()
	registry.Enroll("Empty")

	assert.Equal(t, 0.0, registry.AverageGrade("Empty"))
	assert.Equal(t, 0.0, registry.AverageGrade("Nobody"))
	assert.Equal(t, registry.AverageGrade("Empty"), registry.AverageGrade("Nobody"))

	// Stats tells the two cases apart.
	stats, ok := registry.Stats("Empty")
	assert.True(t, ok)
	assert.False(t, stats.HasGrades())

	_, ok = registry.Stats("Nobody")
	assert.False(t, ok)
}

func TestRegistry_Stats(t *testing.T) {
	registry := NewRegistry()
	registry.Enroll("Alice")
	registry.RecordGrade("Alice", 90)
	registry.RecordGrade("Alice", 85)
	registry.RecordGrade("Alice", 95)

	stats, ok := registry.Stats("Alice")
	require.True(t, ok)
	assert.Equal(t, Stats{StudentID: "Alice", Count: 3, Sum: 270, Average: 90.0}, stats)
}

func TestRegistry_Grades_ReturnsCopy(t *testing.T) {
	registry := NewRegistry()
	registry.Enroll("Alice")
	registry.RecordGrade("Alice", 50)

	grades, _ := registry.Grades("Alice")
	grades[0] = 999

	again, _ := registry.Grades("Alice")
	assert.Equal(t, []int{50}, again)
}

func TestRegistry_AllAverages_Sorted(t *testing.T) {
	registry := NewRegistry()
	for _, id := range []StudentID{"Zed", "alice", "Bob", "Alice", "bob"} {
		registry.Enroll(id)
	}
	registry.RecordGrade("Bob", 60)

	averages := registry.AllAverages()
	ids := make([]StudentID, len(averages))
	for i, e := range averages {
		ids[i] = e.StudentID
	}

	// Byte-wise ordering puts upper case before lower case.
	assert.Equal(t, []StudentID{"Alice", "Bob", "Zed", "alice", "bob"}, ids)
	assert.Equal(t, 60.0, averages[1].Average)
}

func TestRegistry_Version(t *testing.T) {
	registry := NewRegistry()

	registry.Enroll("Alice")
	assert.Equal(t, uint64(1), registry.Version())

	registry.Enroll("Alice")
	registry.RecordGrade("Nobody", 10)
	assert.Equal(t, uint64(1), registry.Version())

	registry.RecordGrade("Alice", 10)
	assert.Equal(t, uint64(2), registry.Version())
}

func TestRegistry_EndToEndScenario(t *testing.T) {
	registry := NewRegistry()

	assert.Equal(t, Enrolled, registry.Enroll("Alice"))
	assert.Equal(t, Enrolled, registry.Enroll("Bob"))
	assert.Equal(t, AlreadyEnrolled, registry.Enroll("Alice"))

	students := registry.AllStudents()
	sort.Slice(students, func(i, j int) bool { return students[i] < students[j] })
	assert.Equal(t, []StudentID{"Alice", "Bob"}, students)

	for _, g := range []int{90, 85, 95} {
		registry.RecordGrade("Alice", g)
	}
	for _, g := range []int{80, 90} {
		registry.RecordGrade("Bob", g)
	}

	assert.Equal(t, 90.0, registry.AverageGrade("Alice"))
	assert.Equal(t, 85.0, registry.AverageGrade("Bob"))
	assert.Equal(t, []AverageEntry{
		{StudentID: "Alice", Average: 90.0},
		{StudentID: "Bob", Average: 85.0},
	}, registry.AllAverages())

	assert.Equal(t, StudentNotFound, registry.RecordGrade("Charlie", 100))
	assert.False(t, registry.IsEnrolled("Charlie"))
	registry.Enroll("Charlie")
	assert.Equal(t, 0.0, registry.AverageGrade("Charlie"))
}

func TestRegistry_ConcurrentWriters(t *testing.T) {
	registry := NewRegistry()
	registry.Enroll("Alice")

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				registry.RecordGrade("Alice", 1)
				registry.Enroll("Bob")
				_ = registry.AllAverages()
			}
		}()
	}
	wg.Wait()

	stats, ok := registry.Stats("Alice")
	require.True(t, ok)
	assert.Equal(t, 800, stats.Count)
	assert.Equal(t, 2, registry.Count())
}

func TestResults_String(t *testing.T) {
	assert.Equal(t, "enrolled", Enrolled.String())
	assert.Equal(t, "already_enrolled", AlreadyEnrolled.String())
	assert.Equal(t, "recorded", Recorded.String())
	assert.Equal(t, "student_not_found", StudentNotFound.String())
	assert.Equal(t, "grade_out_of_range", GradeOutOfRange.String())
	assert.Equal(t, "unknown", EnrollResult(0).String())
	assert.True(t, Enrolled.Changed())
	assert.False(t, StudentNotFound.Changed())
}

func TestEvents_Payload(t *testing.T) {
	enrolled := NewStudentEnrolledEvent("Alice")
	assert.Equal(t, shared.EventStudentEnrolled, enrolled.EventType())
	assert.Equal(t, "Alice", enrolled.AggregateID())
	assert.Equal(t, "Alice", enrolled.Payload()["student_id"])

	recorded := NewGradeRecordedEvent("Alice", 90, Stats{StudentID: "Alice", Count: 2, Sum: 170, Average: 85})
	assert.Equal(t, shared.EventGradeRecorded, recorded.EventType())
	assert.Equal(t, 90, recorded.Payload()["grade"])
	assert.Equal(t, 85.0, recorded.Payload()["new_average"])
}
