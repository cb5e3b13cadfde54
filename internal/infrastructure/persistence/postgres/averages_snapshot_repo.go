package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alem-hub/gradebook/internal/domain/gradebook"
	"github.com/alem-hub/gradebook/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AVERAGES SNAPSHOT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// AveragesSnapshotRepository writes the registry's averages into
// grade_average_snapshots. It implements gradebook.ProjectionSink.
type AveragesSnapshotRepository struct {
	conn *Connection
	now  func() time.Time
}

// SnapshotRow is one stored average, read back for diagnostics only.
type SnapshotRow struct {
	StudentID   gradebook.StudentID
	Average     float64
	ProjectedAt time.Time
}

// NewAveragesSnapshotRepository creates a new AveragesSnapshotRepository.
func NewAveragesSnapshotRepository(conn *Connection) *AveragesSnapshotRepository {
	return &AveragesSnapshotRepository{conn: conn, now: time.Now}
}

// Name implements gradebook.ProjectionSink.
func (r *AveragesSnapshotRepository) Name() string {
	return "postgres"
}

// Project implements gradebook.ProjectionSink.
// The table is truncated and refilled inside one transaction.
func (r *AveragesSnapshotRepository) Project(ctx context.Context, entries []gradebook.AverageEntry) error {
	projectedAt := r.now().UTC()

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM grade_average_snapshots`); err != nil {
			return fmt.Errorf("failed to clear snapshots: %w", err)
		}

		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
				INSERT INTO grade_average_snapshots (student_id, average, projected_at)
				VALUES ($1, $2, $3)
			`, string(e.StudentID), e.Average, projectedAt)
		}
		batch.Queue(`
			INSERT INTO projection_runs (total_students, projected_at)
			VALUES ($1, $2)
		`, len(entries), projectedAt)

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to insert snapshot row %d: %w", i, err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return classify("Project", err)
	}
	return nil
}

// Snapshot returns the stored averages ordered by student id.
func (r *AveragesSnapshotRepository) Snapshot(ctx context.Context) ([]SnapshotRow, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT student_id, average, projected_at
		FROM grade_average_snapshots
		ORDER BY student_id COLLATE "C"
	`)
	if err != nil {
		return nil, classify("Snapshot", err)
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var row SnapshotRow
		var id string
		if err := rows.Scan(&id, &row.Average, &row.ProjectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		row.StudentID = gradebook.StudentID(id)
		out = append(out, row)
	}

	return out, rows.Err()
}

// classify maps database errors onto the shared error kinds the retry policy
// understands. Query errors reported by the server are permanent.
func classify(op string, err error) error {
	if errors.Is(err, ErrConnectionClosed) || errors.Is(err, ErrTransactionFailed) {
		return shared.WrapError("postgres", op, shared.ErrServiceUnavailable, "database connection unavailable", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError("postgres", op, shared.ErrTimeout, "database operation timed out", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres.%s: %s (%s): %w", op, pgErr.Message, pgErr.Code, err)
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return shared.WrapError("postgres", op, shared.ErrServiceUnavailable, "database unavailable", err)
	}
	return fmt.Errorf("postgres.%s: %w", op, err)
}
