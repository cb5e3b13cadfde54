// Package gradebook содержит доменную модель журнала оценок (Grade Registry).
//
// Это ядро системы: in-memory реестр, который хранит зачисленных студентов
// и упорядоченные списки их оценок. Пакет определяет:
//
//   - Реестр (Registry): Enroll, RecordGrade, AverageGrade, AllStudents, AllAverages
//   - Value Objects: StudentID, AverageEntry, Stats, GradeRange
//   - Результаты операций: EnrollResult, RecordResult
//   - Доменные события: StudentEnrolledEvent, GradeRecordedEvent
//   - Интерфейс проекций: ProjectionSink
//
// # Архитектурные принципы
//
//  1. Нулевые внешние зависимости - только стандартная библиотека Go
//  2. Реестр никогда не возвращает ошибок и ничего не логирует:
//     исходы операций возвращаются как значения, а побочные эффекты
//     (логирование, события, проекции) делает вызывающий слой
//  3. Одна структура данных вместо двух коллекций: студент зачислен
//     тогда и только тогда, когда у него есть запись с (возможно пустым)
//     списком оценок
//
// # Пример использования
//
//	registry := gradebook.NewRegistry()
//
//	registry.Enroll("Alice")        // Enrolled
//	registry.Enroll("Alice")        // AlreadyEnrolled, оценки не трогаем
//	registry.RecordGrade("Alice", 90)
//	registry.RecordGrade("Bob", 80) // StudentNotFound, состояние не меняется
//
//	avg := registry.AverageGrade("Alice") // 90.0
//	for _, entry := range registry.AllAverages() {
//	    fmt.Println(entry.StudentID, entry.Average) // по возрастанию имени
//	}
//
// # Сентинел 0.0
//
// AverageGrade возвращает 0.0 и для незачисленного студента, и для студента
// без оценок. Это поведение сохранено намеренно; если нужно различать эти
// случаи, используйте Stats, который возвращает флаг присутствия.
package gradebook
