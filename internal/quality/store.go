package quality

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nyctaxi/taxietl/internal/errs"
	"github.com/nyctaxi/taxietl/pkg/models"
)

// Store is the sqlx-backed Sink used in production. Unlike the
// teacher's real-Sink/LogSink split (a ClickHouse client vs. a
// stderr fallback), there is one concrete Sink here; a logging
// fallback isn't needed because Pipeline.flush already logs and
// retries on write failure.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const insertQualityRecord = `
	INSERT INTO data_quality_monitor (
		monitored_at, source_file, operation, target_table, chunk_number, session_id,
		rows_attempted, rows_inserted, rows_updated, rows_deleted, rows_duplicates, rows_invalid, rows_skipped,
		duration_ms, null_violations, constraint_violations, data_type_violations, business_rule_violations, referential_violations
	) VALUES (
		:monitored_at, :source_file, :operation, :target_table, :chunk_number, :session_id,
		:rows_attempted, :rows_inserted, :rows_updated, :rows_deleted, :rows_duplicates, :rows_invalid, :rows_skipped,
		:duration_ms, :null_violations, :constraint_violations, :data_type_violations, :business_rule_violations, :referential_violations
	)`

func (s *Store) WriteQualityRecords(ctx context.Context, records []models.QualityRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]qualityRecordRow, len(records))
	for i, r := range records {
		rows[i] = toRow(r)
	}
	if _, err := s.db.NamedExecContext(ctx, insertQualityRecord, rows); err != nil {
		return errs.New(errs.ChunkUnknown, fmt.Errorf("insert quality records: %w", err))
	}
	return nil
}

// qualityRecordRow mirrors models.QualityRecord field-for-field with
// `db` tags for sqlx's named-parameter binding.
type qualityRecordRow struct {
	MonitoredAt  interface{} `db:"monitored_at"`
	SourceFile   string      `db:"source_file"`
	Operation    string      `db:"operation"`
	TargetTable  string      `db:"target_table"`
	ChunkNumber  int         `db:"chunk_number"`
	SessionID    string      `db:"session_id"`

	RowsAttempted  int64 `db:"rows_attempted"`
	RowsInserted   int64 `db:"rows_inserted"`
	RowsUpdated    int64 `db:"rows_updated"`
	RowsDeleted    int64 `db:"rows_deleted"`
	RowsDuplicates int64 `db:"rows_duplicates"`
	RowsInvalid    int64 `db:"rows_invalid"`
	RowsSkipped    int64 `db:"rows_skipped"`

	DurationMS int64 `db:"duration_ms"`

	NullViolations         int64 `db:"null_violations"`
	ConstraintViolations   int64 `db:"constraint_violations"`
	DataTypeViolations     int64 `db:"data_type_violations"`
	BusinessRuleViolations int64 `db:"business_rule_violations"`
	ReferentialViolations  int64 `db:"referential_violations"`
}

func toRow(r models.QualityRecord) qualityRecordRow {
	return qualityRecordRow{
		MonitoredAt:            r.MonitoredAt,
		SourceFile:             r.SourceFile,
		Operation:              string(r.Operation),
		TargetTable:            r.TargetTable,
		ChunkNumber:            r.ChunkNumber,
		SessionID:              r.SessionID,
		RowsAttempted:          r.RowsAttempted,
		RowsInserted:           r.RowsInserted,
		RowsUpdated:            r.RowsUpdated,
		RowsDeleted:            r.RowsDeleted,
		RowsDuplicates:         r.RowsDuplicates,
		RowsInvalid:            r.RowsInvalid,
		RowsSkipped:            r.RowsSkipped,
		DurationMS:             r.DurationMS,
		NullViolations:         r.NullViolations,
		ConstraintViolations:   r.ConstraintViolations,
		DataTypeViolations:     r.DataTypeViolations,
		BusinessRuleViolations: r.BusinessRuleViolations,
		ReferentialViolations:  r.ReferentialViolations,
	}
}
