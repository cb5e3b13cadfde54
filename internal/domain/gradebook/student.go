package gradebook

import (
	"fmt"

	"github.com/alem-hub/gradebook/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// StudentID - непрозрачный идентификатор студента (чувствителен к регистру).
// Идентификатор и есть идентичность: отдельной сущности студента нет.
type StudentID string

// String возвращает строковое представление идентификатора.
func (s StudentID) String() string {
	return string(s)
}

// IsEmpty возвращает true для пустого идентификатора.
// Реестр пустые идентификаторы не отклоняет, это забота вызывающего.
func (s StudentID) IsEmpty() bool {
	return s == ""
}

// AverageEntry - одна строка отсортированного представления средних.
type AverageEntry struct {
	StudentID StudentID `json:"student_id"`
	Average   float64   `json:"average"`
}

// Stats - агрегаты по одному студенту.
type Stats struct {
	StudentID StudentID `json:"student_id"`
	Count     int       `json:"count"`
	Sum       int       `json:"sum"`
	Average   float64   `json:"average"`
}

// HasGrades возвращает true, если у студента есть хотя бы одна оценка.
func (s Stats) HasGrades() bool {
	return s.Count > 0
}

// GradeRange - допустимый диапазон оценок (включительно с обеих сторон).
type GradeRange struct {
	Min int
	Max int
}

// NewGradeRange создаёт диапазон с проверкой Min <= Max.
func NewGradeRange(min, max int) (GradeRange, error) {
	if min > max {
		return GradeRange{}, shared.WrapError("gradebook", "Configure", shared.ErrInvalidInput,
			"invalid grade range", fmt.Errorf("%w: min=%d max=%d", shared.ErrInvalidGradeSpan, min, max))
	}
	return GradeRange{Min: min, Max: max}, nil
}

// Contains проверяет, попадает ли оценка в диапазон.
func (r GradeRange) Contains(grade int) bool {
	return grade >= r.Min && grade <= r.Max
}

// String возвращает диапазон в виде "[min, max]".
func (r GradeRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Min, r.Max)
}

// record - состояние одного зачисленного студента.
// Наличие записи в реестре и есть факт зачисления.
type record struct {
	grades []int
}

func (r *record) sum() int {
	total := 0
	for _, g := range r.grades {
		total += g
	}
	return total
}

// average считает среднее: целочисленная сумма, деление с плавающей точкой.
func (r *record) average() float64 {
	if len(r.grades) == 0 {
		return 0.0
	}
	return float64(r.sum()) / float64(len(r.grades))
}
