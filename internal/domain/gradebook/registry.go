package gradebook

import (
	"sort"
	"sync"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Registry - in-memory журнал оценок.
//
// Всё состояние - одна map от идентификатора к записи студента, поэтому
// "множество зачисленных" и "оценки по студентам" не могут разойтись.
// Изменяющие операции выполняются целиком под одной блокировкой записи.
type Registry struct {
	mu       sync.RWMutex
	students map[StudentID]*record
	version  uint64

	gradeRange *GradeRange
}

// Option настраивает Registry.
type Option func(*Registry)

// WithGradeRange включает проверку диапазона оценок.
// Без этой опции RecordGrade принимает любое целое число.
func WithGradeRange(r GradeRange) Option {
	return func(reg *Registry) {
		rc := r
		reg.gradeRange = &rc
	}
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		students: make(map[StudentID]*record),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ─────────────────────────────────────────────────────────────────────────────
// Commands
// ─────────────────────────────────────────────────────────────────────────────

// Enroll зачисляет студента. Повторный вызов ничего не меняет
// и возвращает AlreadyEnrolled; уже записанные оценки сохраняются.
func (r *Registry) Enroll(id StudentID) EnrollResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.students[id]; ok {
		return AlreadyEnrolled
	}

	r.students[id] = &record{grades: make([]int, 0)}
	r.version++
	return Enrolled
}

// RecordGrade добавляет оценку в конец списка студента.
// Для незачисленного студента возвращает StudentNotFound и запись не создаёт.
func (r *Registry) RecordGrade(id StudentID, grade int) RecordResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.students[id]
	if !ok {
		return StudentNotFound
	}
	if r.gradeRange != nil && !r.gradeRange.Contains(grade) {
		return GradeOutOfRange
	}

	rec.grades = append(rec.grades, grade)
	r.version++
	return Recorded
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

// AverageGrade возвращает среднюю оценку студента.
// 0.0 возвращается и для незачисленного студента, и для студента без оценок.
func (r *Registry) AverageGrade(id StudentID) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.students[id]
	if !ok {
		return 0.0
	}
	return rec.average()
}

// AllStudents возвращает всех зачисленных студентов.
// Порядок не определён, полагаться на него нельзя.
func (r *Registry) AllStudents() []StudentID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]StudentID, 0, len(r.students))
	for id := range r.students {
		ids = append(ids, id)
	}
	return ids
}

// AllAverages возвращает средние всех зачисленных студентов
// в строго возрастающем лексикографическом порядке идентификаторов.
func (r *Registry) AllAverages() []AverageEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedAveragesLocked()
}

// AveragesSnapshot возвращает AllAverages вместе с версией, под одной блокировкой.
func (r *Registry) AveragesSnapshot() (uint64, []AverageEntry) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.version, r.sortedAveragesLocked()
}

func (r *Registry) sortedAveragesLocked() []AverageEntry {
	entries := make([]AverageEntry, 0, len(r.students))
	for id, rec := range r.students {
		entries = append(entries, AverageEntry{StudentID: id, Average: rec.average()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StudentID < entries[j].StudentID
	})
	return entries
}

// Grades возвращает копию списка оценок в порядке записи.
func (r *Registry) Grades(id StudentID) ([]int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.students[id]
	if !ok {
		return nil, false
	}
	out := make([]int, len(rec.grades))
	copy(out, rec.grades)
	return out, true
}

// Stats возвращает агрегаты студента; второй результат false для незачисленного.
func (r *Registry) Stats(id StudentID) (Stats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.students[id]
	if !ok {
		return Stats{StudentID: id}, false
	}
	return Stats{
		StudentID: id,
		Count:     len(rec.grades),
		Sum:       rec.sum(),
		Average:   rec.average(),
	}, true
}

// IsEnrolled проверяет, зачислен ли студент.
func (r *Registry) IsEnrolled(id StudentID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.students[id]
	return ok
}

// Count возвращает количество зачисленных студентов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.students)
}

// Version растёт на каждом успешном Enroll и RecordGrade.
// No-op вызовы версию не меняют.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// GradeRange возвращает настроенный диапазон, если он есть.
func (r *Registry) GradeRange() (GradeRange, bool) {
	if r.gradeRange == nil {
		return GradeRange{}, false
	}
	return *r.gradeRange, true
}
