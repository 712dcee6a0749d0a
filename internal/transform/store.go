package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/nyctaxi/taxietl/internal/errs"
	"github.com/nyctaxi/taxietl/internal/ingest"
	"github.com/nyctaxi/taxietl/internal/quality"
	"github.com/nyctaxi/taxietl/pkg/models"
)

// subBatchSize bounds the transaction memory of one fact-table
// insert, in 10,000-row sub-batches.
const subBatchSize = 10000

var factColumns = []string{
	"pickup_date", "pickup_location_key", "dropoff_location_key", "vendor_key",
	"payment_type_key", "rate_code_key", "pickup_date_key", "dropoff_date_key",
	"pickup_time_key", "dropoff_time_key",
	"trip_distance", "passenger_count", "fare_amount", "extra", "mta_tax",
	"tip_amount", "tolls_amount", "improvement_surcharge", "total_amount",
	"congestion_surcharge", "airport_fee_amount", "cbd_congestion_fee",
	"trip_duration_minutes",
	"base_fare", "total_surcharges", "tip_percentage", "avg_speed_mph", "revenue_per_mile",
	"is_airport_trip", "is_cross_borough_trip", "is_cash_trip", "is_long_distance", "is_short_trip",
	"original_row_hash",
}

// Loader drives the dimensional load against one already-loaded chunk of TripRows.
type Loader struct {
	pool        *pgxpool.Pool
	transformer *Transformer
	invalid     *ingest.InvalidStore
	qualityPipe *quality.Pipeline
	log         zerolog.Logger
	sessionID   string
}

func NewLoader(pool *pgxpool.Pool, transformer *Transformer, invalid *ingest.InvalidStore, qualityPipe *quality.Pipeline, log zerolog.Logger, sessionID string) *Loader {
	return &Loader{
		pool:        pool,
		transformer: transformer,
		invalid:     invalid,
		qualityPipe: qualityPipe,
		log:         log.With().Str("component", "transform").Logger(),
		sessionID:   sessionID,
	}
}

// LoadChunk converts rows to fact rows, quarantines referential-
// integrity rejects, and bulk-inserts the rest in 10,000-row
// sub-batches, each its own transaction (queued → inserting →
// committed, or queued → failed for that sub-batch only).
func (l *Loader) LoadChunk(ctx context.Context, rows []models.TripRow, sourceFile string, chunkNumber int) error {
	start := time.Now()
	facts, rejected := l.transformer.Chunk(rows)

	rec := models.QualityRecord{
		SourceFile:  sourceFile,
		Operation:   models.OperationDimensionalLoad,
		TargetTable: "fact_taxi_trips",
		ChunkNumber: chunkNumber,
		SessionID:   l.sessionID,
		RowsAttempted: int64(len(rows)),
	}

	if len(rejected) > 0 {
		invalidRows := make([]models.TripRow, len(rejected))
		for i, r := range rejected {
			invalidRows[i] = r.Row
		}
		if err := l.invalid.InsertFromTripRows(ctx, invalidRows, sourceFile, chunkNumber, models.ErrorCategoryReferential, "dimension lookup miss"); err != nil {
			return err
		}
		rec.RowsInvalid += int64(len(rejected))
		rec.ReferentialViolations += int64(len(rejected))
	}

	var inserted int64
	for start := 0; start < len(facts); start += subBatchSize {
		end := start + subBatchSize
		if end > len(facts) {
			end = len(facts)
		}
		sub := facts[start:end]

		n, err := l.insertFacts(ctx, sub)
		if err != nil {
			l.log.Error().Err(err).Int("chunk", chunkNumber).Int("sub_batch_rows", len(sub)).Msg("fact sub-batch rejected")
			rec.RowsInvalid += int64(len(sub))
			rec.ConstraintViolations += int64(len(sub))
			continue
		}
		inserted += n
	}
	rec.RowsInserted = inserted
	rec.DurationMS = time.Since(start).Milliseconds()

	l.qualityPipe.Record(rec)
	l.log.Info().
		Int("chunk", chunkNumber).
		Int64("inserted", rec.RowsInserted).
		Int64("invalid", rec.RowsInvalid).
		Msg("dimensional sub-batches processed")

	return nil
}

func (l *Loader) insertFacts(ctx context.Context, facts []models.FactTrip) (int64, error) {
	if len(facts) == 0 {
		return 0, nil
	}
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, errs.New(errs.Fatal, fmt.Errorf("begin fact sub-batch tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"fact_taxi_trips"}, factColumns, &factCopySource{rows: facts})
	if err != nil {
		return 0, errs.New(errs.ChunkConstraint, fmt.Errorf("copy fact sub-batch: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errs.New(errs.ChunkUnknown, fmt.Errorf("commit fact sub-batch: %w", err))
	}
	return n, nil
}

type factCopySource struct {
	rows []models.FactTrip
	i    int
}

func (s *factCopySource) Next() bool {
	s.i++
	return s.i <= len(s.rows)
}

func (s *factCopySource) Values() ([]any, error) {
	f := s.rows[s.i-1]
	var revenuePerMile any
	if f.RevenuePerMile != nil {
		revenuePerMile = *f.RevenuePerMile
	}
	return []any{
		f.PickupDate, f.PickupLocationKey, f.DropoffLocationKey, nullIfZero(f.VendorKey),
		nullIfZero(f.PaymentTypeKey), nullIfZero(f.RateCodeKey), f.PickupDateKey, f.DropoffDateKey,
		f.PickupTimeKey, f.DropoffTimeKey,
		f.TripDistance, f.PassengerCount, f.FareAmount, f.Extra, f.MTATax,
		f.TipAmount, f.TollsAmount, f.ImprovementSurcharge, f.TotalAmount,
		f.CongestionSurcharge, f.AirportFeeAmount, f.CBDCongestionFee,
		f.TripDurationMinutes,
		f.BaseFare, f.TotalSurcharges, f.TipPercentage, f.AvgSpeedMPH, revenuePerMile,
		f.IsAirportTrip, f.IsCrossBoroughTrip, f.IsCashTrip, f.IsLongDistance, f.IsShortTrip,
		f.OriginalRowHash,
	}, nil
}

func (s *factCopySource) Err() error { return nil }

func nullIfZero(v int32) any {
	if v == 0 {
		return nil
	}
	return v
}

