package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nyctaxi/taxietl/internal/errs"
	"github.com/nyctaxi/taxietl/pkg/models"
)

var invalidColumns = append(append([]string{
	"failed_at", "error_type", "error_message", "source_file", "chunk_number", "row_number_in_chunk",
}, models.ColumnNames...), "raw_data_json")

// InvalidStore bulk-inserts rejected rows into yellow_taxi_trips_invalid.
// invalid_id is a BIGSERIAL so, unlike the normalized table, a plain
// CopyFrom (no staging, no conflict handling) is sufficient — there is
// no deduplication concept for quarantined rows.
type InvalidStore struct {
	pool *pgxpool.Pool
}

func NewInvalidStore(pool *pgxpool.Pool) *InvalidStore {
	return &InvalidStore{pool: pool}
}

// Insert writes rows that already carry their own ErrorCategory/message
// (type-cast failures discovered per-row in buildTripRow).
func (s *InvalidStore) Insert(ctx context.Context, rows []models.InvalidTripRow) error {
	if len(rows) == 0 {
		return nil
	}
	src := &invalidCopySource{rows: rows}
	if _, err := s.pool.CopyFrom(ctx, pgx.Identifier{"yellow_taxi_trips_invalid"}, invalidColumns, src); err != nil {
		return errs.New(errs.ChunkUnknown, fmt.Errorf("copy invalid rows: %w", err))
	}
	return nil
}

// InsertFromTripRows quarantines otherwise-valid TripRows under a
// single error category and message — used when an entire chunk's
// bulk insert fails for a reason unrelated to any individual row, and
// by internal/transform for rows rejected on a dimension lookup miss.
func (s *InvalidStore) InsertFromTripRows(ctx context.Context, rows []models.TripRow, sourceFile string, chunkNumber int, category models.ErrorCategory, message string) error {
	if len(rows) == 0 {
		return nil
	}
	invalid := make([]models.InvalidTripRow, len(rows))
	now := time.Now().UTC()
	for i, r := range rows {
		invalid[i] = models.InvalidTripRow{
			FailedAt:       now,
			ErrorCategory:  category,
			ErrorMessage:   message,
			SourceFile:     sourceFile,
			ChunkNumber:    chunkNumber,
			RowNumberInRow: r.RowNumberInRow,
			Row:            r,
		}
	}
	return s.Insert(ctx, invalid)
}

type invalidCopySource struct {
	rows []models.InvalidTripRow
	i    int
}

func (s *invalidCopySource) Next() bool {
	s.i++
	return s.i <= len(s.rows)
}

func (s *invalidCopySource) Values() ([]any, error) {
	r := s.rows[s.i-1]
	values := make([]any, 0, len(invalidColumns))
	values = append(values, r.FailedAt, string(r.ErrorCategory), r.ErrorMessage, r.SourceFile, r.ChunkNumber, r.RowNumberInRow)
	for _, col := range models.ColumnNames {
		values = append(values, tripRowColumnValue(r.Row, col))
	}
	if len(r.RawData) > 0 {
		values = append(values, string(r.RawData))
	} else {
		values = append(values, nil)
	}
	return values, nil
}

func (s *invalidCopySource) Err() error { return nil }
