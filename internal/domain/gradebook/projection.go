package gradebook

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROJECTION SINK
// Проекции - это write-only побочный канал: отсортированное представление
// средних выгружается во внешние хранилища (Redis, PostgreSQL) для дашбордов.
// Реестр никогда не читает данные обратно.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// ProjectionSink принимает полный снимок средних.
type ProjectionSink interface {
	// Name возвращает имя проекции для логов.
	Name() string

	// Project заменяет ранее выгруженный снимок переданным.
	// entries отсортированы по возрастанию StudentID.
	Project(ctx context.Context, entries []AverageEntry) error
}

// AveragesSource - источник отсортированного представления средних.
// *Registry реализует этот интерфейс.
type AveragesSource interface {
	AllAverages() []AverageEntry

	// AveragesSnapshot возвращает представление вместе с версией реестра,
	// по которой проекции отбрасывают устаревшие снимки.
	AveragesSnapshot() (uint64, []AverageEntry)
}
