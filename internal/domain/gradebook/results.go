package gradebook

// ══════════════════════════════════════════════════════════════════════════════
// OPERATION RESULTS
// Исходы операций реестра. Ни один из них не является ошибкой:
// вызывающий слой сам решает, логировать, показывать пользователю или игнорировать.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollResult - исход операции Enroll.
type EnrollResult int

const (
	// Enrolled - студент зачислен, создан пустой список оценок.
	Enrolled EnrollResult = iota + 1
	// AlreadyEnrolled - студент уже был зачислен, состояние не изменилось.
	AlreadyEnrolled
)

// String возвращает имя исхода.
func (r EnrollResult) String() string {
	switch r {
	case Enrolled:
		return "enrolled"
	case AlreadyEnrolled:
		return "already_enrolled"
	default:
		return "unknown"
	}
}

// Changed возвращает true, если операция изменила состояние реестра.
func (r EnrollResult) Changed() bool {
	return r == Enrolled
}

// RecordResult - исход операции RecordGrade.
type RecordResult int

const (
	// Recorded - оценка добавлена в конец списка.
	Recorded RecordResult = iota + 1
	// StudentNotFound - студент не зачислен, состояние не изменилось.
	StudentNotFound
	// GradeOutOfRange - оценка вне настроенного диапазона, состояние не изменилось.
	// Возможен только если реестр создан с WithGradeRange.
	GradeOutOfRange
)

// String возвращает имя исхода.
func (r RecordResult) String() string {
	switch r {
	case Recorded:
		return "recorded"
	case StudentNotFound:
		return "student_not_found"
	case GradeOutOfRange:
		return "grade_out_of_range"
	default:
		return "unknown"
	}
}

// Changed возвращает true, если операция изменила состояние реестра.
func (r RecordResult) Changed() bool {
	return r == Recorded
}
