// Package proclog is the sqlx-backed ProcessingLog store: the sole
// resumption authority for the orchestrator and the backfill planner.
package proclog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	taxierrs "github.com/nyctaxi/taxietl/internal/errs"
	"github.com/nyctaxi/taxietl/pkg/models"
)

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type row struct {
	Year          int        `db:"data_year"`
	Month         int        `db:"data_month"`
	SourceFile    string     `db:"source_file"`
	RecordsLoaded int64      `db:"records_loaded"`
	StartedAt     time.Time  `db:"started_at"`
	CompletedAt   *time.Time `db:"completed_at"`
	BackfillLabel string     `db:"backfill_label"`
	Status        string     `db:"status"`
	AttemptCount  int        `db:"attempt_count"`
}

func (r row) toModel() *models.ProcessingLog {
	return &models.ProcessingLog{
		Year:          r.Year,
		Month:         r.Month,
		SourceFile:    r.SourceFile,
		RecordsLoaded: r.RecordsLoaded,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		BackfillLabel: r.BackfillLabel,
		Status:        models.ProcessingStatus(r.Status),
		AttemptCount:  r.AttemptCount,
	}
}

// Get satisfies planner.LogLookup: returns nil, nil when no row
// exists for (year, month) — "no row" is a legitimate outcome, not an
// error, satisfying the "no row → new" classification the planner needs.
func (s *Store) Get(ctx context.Context, year, month int) (*models.ProcessingLog, error) {
	var r row
	err := s.db.GetContext(ctx, &r,
		`SELECT data_year, data_month, source_file, records_loaded, started_at, completed_at, backfill_label, status, attempt_count
		 FROM data_processing_log WHERE data_year = $1 AND data_month = $2`, year, month)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, taxierrs.New(taxierrs.Fatal, fmt.Errorf("query processing log %d-%02d: %w", year, month, err))
	}
	return r.toModel(), nil
}

// MarkInProgress inserts or updates the (year, month) row to
// in_progress with started_at=startedAt, incrementing attempt_count
// on a row that already exists (a retry of a failed or interrupted
// month).
func (s *Store) MarkInProgress(ctx context.Context, year, month int, sourceFile, backfillLabel string, startedAt time.Time) error {
	const q = `
		INSERT INTO data_processing_log (data_year, data_month, source_file, started_at, backfill_label, status, attempt_count)
		VALUES ($1, $2, $3, $4, $5, 'in_progress', 1)
		ON CONFLICT (data_year, data_month) DO UPDATE SET
			source_file = EXCLUDED.source_file,
			started_at = EXCLUDED.started_at,
			backfill_label = EXCLUDED.backfill_label,
			status = 'in_progress',
			attempt_count = data_processing_log.attempt_count + 1`
	if _, err := s.db.ExecContext(ctx, q, year, month, sourceFile, startedAt, backfillLabel); err != nil {
		return taxierrs.New(taxierrs.Fatal, fmt.Errorf("mark in_progress %d-%02d: %w", year, month, err))
	}
	return nil
}

// MarkCompleted records final success: records_loaded and completed_at.
func (s *Store) MarkCompleted(ctx context.Context, year, month int, recordsLoaded int64, completedAt time.Time) error {
	const q = `
		UPDATE data_processing_log
		SET status = 'completed', records_loaded = $3, completed_at = $4
		WHERE data_year = $1 AND data_month = $2`
	if _, err := s.db.ExecContext(ctx, q, year, month, recordsLoaded, completedAt); err != nil {
		return taxierrs.New(taxierrs.Fatal, fmt.Errorf("mark completed %d-%02d: %w", year, month, err))
	}
	return nil
}

// MarkFailed records a terminal per-month failure; the month stays
// eligible for retry (bounded at 3 attempts).
func (s *Store) MarkFailed(ctx context.Context, year, month int) error {
	const q = `UPDATE data_processing_log SET status = 'failed' WHERE data_year = $1 AND data_month = $2`
	if _, err := s.db.ExecContext(ctx, q, year, month); err != nil {
		return taxierrs.New(taxierrs.Fatal, fmt.Errorf("mark failed %d-%02d: %w", year, month, err))
	}
	return nil
}

// LeaveInProgress is invoked on cancellation: a
// cancelled run commits the in-flight chunk and leaves the month's
// status as in_progress so the next invocation retries it. Since
// MarkInProgress already wrote that status at month start, this is a
// no-op kept only to make the orchestrator's cancellation path
// self-documenting at the call site.
func (s *Store) LeaveInProgress(ctx context.Context, year, month int) error {
	return nil
}

// Recent returns the most recently started rows, newest first, for
// the `taxietl status` CLI command.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.ProcessingLog, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT data_year, data_month, source_file, records_loaded, started_at, completed_at, backfill_label, status, attempt_count
		 FROM data_processing_log ORDER BY started_at DESC LIMIT $1`, limit); err != nil {
		return nil, taxierrs.New(taxierrs.Fatal, fmt.Errorf("query recent processing logs: %w", err))
	}
	out := make([]models.ProcessingLog, len(rows))
	for i, r := range rows {
		out[i] = *r.toModel()
	}
	return out, nil
}
