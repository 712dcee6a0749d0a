package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nyctaxi/taxietl/internal/errs"
	"github.com/nyctaxi/taxietl/internal/quality"
	"github.com/nyctaxi/taxietl/pkg/models"
)

// normalizedColumns is the column order used for both the staging
// COPY and the conflict-checking INSERT ... SELECT below; it mirrors
// models.ColumnNames plus the row_hash primary key.
var normalizedColumns = append([]string{"row_hash"}, models.ColumnNames...)

// Loader drives the normalized load against one open parquet file: read chunk, cast,
// fingerprint, bulk-insert with duplicate suppression, quarantine
// failures, account quality — repeat until exhausted.
type Loader struct {
	pool         *pgxpool.Pool
	invalid      *InvalidStore
	qualityPipe  *quality.Pipeline
	log          zerolog.Logger
	sessionID    string
}

func NewLoader(pool *pgxpool.Pool, invalid *InvalidStore, qualityPipe *quality.Pipeline, log zerolog.Logger, sessionID string) *Loader {
	return &Loader{pool: pool, invalid: invalid, qualityPipe: qualityPipe, log: log.With().Str("component", "ingest").Logger(), sessionID: sessionID}
}

// LoadResult summarizes one month's normalized load.
type LoadResult struct {
	RowsAttempted int64
	RowsInserted  int64
}

// LoadMonth streams path chunk-by-chunk into the normalized table.
// A chunk-level exception never aborts the month:
// it is caught, the chunk's rows are quarantined, a CRITICAL quality
// record is emitted, and the next chunk proceeds.
func (l *Loader) LoadMonth(ctx context.Context, path, sourceFile string, chunkSize int) (LoadResult, error) {
	source, err := NewChunkSource(ctx, path, chunkSize)
	if err != nil {
		return LoadResult{}, err
	}
	defer source.Close()

	var result LoadResult
	for {
		chunk, ok, err := source.Next()
		if err != nil {
			return result, err
		}
		if !ok {
			break
		}

		chunkResult, err := l.LoadOneChunk(ctx, chunk, sourceFile)
		if err != nil {
			return result, err
		}
		result.RowsAttempted += chunkResult.RowsAttempted
		result.RowsInserted += chunkResult.RowsInserted
	}

	return result, nil
}

// LoadOneChunk runs the staging-table COPY, quarantine, and quality
// accounting for a single already-read chunk. Exported so the
// orchestrator can drive the chunk loop itself and interleave a
// cancellation check and the dimensional transform between chunks,
// while LoadMonth uses it internally for the whole-file case.
func (l *Loader) LoadOneChunk(ctx context.Context, chunk Chunk, sourceFile string) (LoadResult, error) {
	attempted := int64(len(chunk.Rows) + len(chunk.Invalid))
	result := LoadResult{RowsAttempted: attempted}

	start := time.Now()
	inserted, duplicates, loadErr := l.loadChunk(ctx, chunk, sourceFile)
	duration := time.Since(start)

	rec := models.QualityRecord{
		SourceFile:         sourceFile,
		Operation:          models.OperationNormalizedLoad,
		TargetTable:        "yellow_taxi_trips",
		ChunkNumber:        chunk.Number,
		SessionID:          l.sessionID,
		RowsAttempted:      attempted,
		RowsInvalid:        int64(len(chunk.Invalid)),
		DataTypeViolations: int64(len(chunk.Invalid)),
		DurationMS:         duration.Milliseconds(),
	}

	if loadErr != nil {
		// Catastrophic chunk failure: quarantine every row that was
		// otherwise insertable, count the chunk CRITICAL, and move on.
		l.log.Error().Err(loadErr).Int("chunk", chunk.Number).Str("source_file", sourceFile).Msg("chunk load failed, quarantining chunk")
		if qerr := l.invalid.InsertFromTripRows(ctx, chunk.Rows, sourceFile, chunk.Number, models.ErrorCategoryOther, loadErr.Error()); qerr != nil {
			return result, qerr
		}
		rec.RowsInvalid += int64(len(chunk.Rows))
		rec.ConstraintViolations += int64(len(chunk.Rows))
	} else {
		rec.RowsInserted = inserted
		rec.RowsDuplicates = duplicates
		result.RowsInserted = inserted
	}

	if len(chunk.Invalid) > 0 {
		if qerr := l.invalid.Insert(ctx, chunk.Invalid); qerr != nil {
			return result, qerr
		}
	}

	l.qualityPipe.Record(rec)
	l.log.Info().
		Int("chunk", chunk.Number).
		Int64("attempted", attempted).
		Int64("inserted", rec.RowsInserted).
		Int64("duplicates", rec.RowsDuplicates).
		Int64("invalid", rec.RowsInvalid).
		Msg("chunk processed")

	return result, nil
}

// loadChunk COPYs the chunk's castable rows into a per-transaction
// temp staging table, then moves them into the normalized table with
// ON CONFLICT DO NOTHING so the primary key on row_hash does the
// deduplication; the difference between rows copied and rows actually
// inserted is the duplicate count. COPY itself has no ON CONFLICT
// clause in Postgres, hence the staging indirection.
func (l *Loader) loadChunk(ctx context.Context, chunk Chunk, sourceFile string) (inserted, duplicates int64, err error) {
	if len(chunk.Rows) == 0 {
		return 0, 0, nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, 0, errs.New(errs.Fatal, fmt.Errorf("begin chunk tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE chunk_staging (LIKE yellow_taxi_trips) ON COMMIT DROP`); err != nil {
		return 0, 0, errs.New(errs.ChunkUnknown, fmt.Errorf("create staging table: %w", err))
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"chunk_staging"}, normalizedColumns, &tripRowCopySource{rows: chunk.Rows})
	if err != nil {
		return 0, 0, errs.New(errs.ChunkUnknown, fmt.Errorf("copy into staging: %w", err))
	}

	insertSQL := fmt.Sprintf(`
		INSERT INTO yellow_taxi_trips (%s)
		SELECT %s FROM chunk_staging
		ON CONFLICT (row_hash) DO NOTHING
		RETURNING row_hash`, columnList(normalizedColumns), columnList(normalizedColumns))

	rows, err := tx.Query(ctx, insertSQL)
	if err != nil {
		return 0, 0, errs.New(errs.ChunkUnknown, fmt.Errorf("insert from staging: %w", err))
	}
	var insertedCount int64
	for rows.Next() {
		insertedCount++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, errs.New(errs.ChunkUnknown, fmt.Errorf("scan inserted rows: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, errs.New(errs.ChunkUnknown, fmt.Errorf("commit chunk: %w", err))
	}

	return insertedCount, copied - insertedCount, nil
}

func columnList(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

// tripRowCopySource adapts []models.TripRow to pgx.CopyFromSource.
type tripRowCopySource struct {
	rows []models.TripRow
	i    int
}

func (s *tripRowCopySource) Next() bool {
	s.i++
	return s.i <= len(s.rows)
}

func (s *tripRowCopySource) Values() ([]any, error) {
	r := s.rows[s.i-1]
	values := make([]any, len(normalizedColumns))
	for i, col := range normalizedColumns {
		values[i] = tripRowColumnValue(r, col)
	}
	return values, nil
}

func (s *tripRowCopySource) Err() error { return nil }

// tripRowColumnValue returns r's value for the normalized column col,
// or nil for SQL NULL. nil *int32/*float64/*decimal.Decimal fields
// must be passed through as untyped nil, not a typed nil pointer,
// hence the explicit switch rather than reflection.
func tripRowColumnValue(r models.TripRow, col string) any {
	switch col {
	case "row_hash":
		return r.RowHash
	case "vendorid":
		return int32PtrToAny(r.VendorID)
	case "pickup_datetime":
		return r.PickupDatetime
	case "dropoff_datetime":
		return r.DropoffDatetime
	case "passenger_count":
		return int32PtrToAny(r.PassengerCount)
	case "trip_distance":
		return float64PtrToAny(r.TripDistance)
	case "ratecodeid":
		return int32PtrToAny(r.RateCodeID)
	case "store_and_fwd_flag":
		return stringPtrToAny(r.StoreAndFwdFlag)
	case "pulocationid":
		return int32PtrToAny(r.PULocationID)
	case "dolocationid":
		return int32PtrToAny(r.DOLocationID)
	case "payment_type":
		return int32PtrToAny(r.PaymentType)
	case "fare_amount":
		return decimalPtrToAny(r.FareAmount)
	case "extra":
		return decimalPtrToAny(r.Extra)
	case "mta_tax":
		return decimalPtrToAny(r.MTATax)
	case "tip_amount":
		return decimalPtrToAny(r.TipAmount)
	case "tolls_amount":
		return decimalPtrToAny(r.TollsAmount)
	case "improvement_surcharge":
		return decimalPtrToAny(r.ImprovementSurcharge)
	case "total_amount":
		return decimalPtrToAny(r.TotalAmount)
	case "congestion_surcharge":
		return decimalPtrToAny(r.CongestionSurcharge)
	case "airport_fee":
		return decimalPtrToAny(r.AirportFee)
	case "cbd_congestion_fee":
		return decimalPtrToAny(r.CBDCongestionFee)
	default:
		return nil
	}
}

func int32PtrToAny(v *int32) any {
	if v == nil {
		return nil
	}
	return *v
}

func float64PtrToAny(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtrToAny(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func decimalPtrToAny(v *decimal.Decimal) any {
	if v == nil {
		return nil
	}
	return *v
}
