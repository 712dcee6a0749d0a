// Package orchestrator implements the top-level sequence that
// bootstraps schema, loads reference data, builds the dimension
// cache, plans months, and runs each planned month's normalized and
// dimensional loads in order, tolerating interruption between chunks.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nyctaxi/taxietl/internal/config"
	"github.com/nyctaxi/taxietl/internal/dbx"
	"github.com/nyctaxi/taxietl/internal/dimcache"
	"github.com/nyctaxi/taxietl/internal/errs"
	"github.com/nyctaxi/taxietl/internal/fetch"
	"github.com/nyctaxi/taxietl/internal/ingest"
	"github.com/nyctaxi/taxietl/internal/planner"
	"github.com/nyctaxi/taxietl/internal/proclog"
	"github.com/nyctaxi/taxietl/internal/quality"
	"github.com/nyctaxi/taxietl/internal/refdata"
	"github.com/nyctaxi/taxietl/internal/schema"
	"github.com/nyctaxi/taxietl/internal/transform"
	"github.com/nyctaxi/taxietl/pkg/models"
)

// Fetcher resolves the source files the orchestrator needs, downloading
// and caching them locally if necessary — satisfied by *fetch.Fetcher,
// or a fake in tests.
type Fetcher interface {
	MonthlyParquet(ctx context.Context, year, month int) (string, error)
	ZoneLookupCSV(ctx context.Context) (string, error)
	ZoneShapefileArchive(ctx context.Context) (string, error)
}

// ProcessingLog records per-month lifecycle transitions — satisfied by
// *proclog.Store, or a fake in tests.
type ProcessingLog interface {
	MarkInProgress(ctx context.Context, year, month int, sourceFile, backfillLabel string, startedAt time.Time) error
	MarkCompleted(ctx context.Context, year, month int, recordsLoaded int64, completedAt time.Time) error
	MarkFailed(ctx context.Context, year, month int) error
	LeaveInProgress(ctx context.Context, year, month int) error
	Recent(ctx context.Context, limit int) ([]models.ProcessingLog, error)
}

// PartitionEnsurer creates fact_taxi_trips' month partition if it does
// not already exist — satisfied by an adapter over internal/schema, or
// a fake in tests.
type PartitionEnsurer interface {
	EnsureMonthPartition(ctx context.Context, year, month int) error
}

// ChunkSource streams one month's already-open source file chunk by
// chunk — satisfied by *ingest.ChunkSource, or a fake in tests.
type ChunkSource interface {
	Next() (ingest.Chunk, bool, error)
	Close()
}

// ChunkSourceOpener opens a ChunkSource for one month's source file —
// satisfied by an adapter over ingest.NewChunkSource, or a fake in tests.
type ChunkSourceOpener interface {
	Open(ctx context.Context, path string, chunkSize int) (ChunkSource, error)
}

// Loader drives the normalized load for one already-read chunk —
// satisfied by *ingest.Loader, or a fake in tests.
type Loader interface {
	LoadOneChunk(ctx context.Context, chunk ingest.Chunk, sourceFile string) (ingest.LoadResult, error)
}

// Transformer drives the dimensional load for one already-loaded chunk
// — satisfied by *transform.Loader, or a fake in tests.
type Transformer interface {
	LoadChunk(ctx context.Context, rows []models.TripRow, sourceFile string, chunkNumber int) error
}

// MonthResult is one planned month's outcome, folded into RunSummary.
type MonthResult struct {
	Year, Month   int
	Status        models.ProcessingStatus
	RecordsLoaded int64
	Skipped       bool
}

// RunSummary is the orchestrator's final (and in-flight, via Status)
// snapshot, served by the admin HTTP server's /status endpoint.
type RunSummary struct {
	SessionID  string
	StartedAt  time.Time
	FinishedAt time.Time
	Months     []MonthResult
	Cancelled  bool
}

// Orchestrator wires every component built so far into the top-level
// sequence. Dependencies that touch the database, the filesystem, or
// the network are held as interfaces so orchestrator-level tests can
// substitute fakes for them, the same way internal/planner takes a
// LogLookup/LocalFileLister instead of a concrete store.
type Orchestrator struct {
	cfg         *config.Config
	db          *dbx.DB
	log         zerolog.Logger
	fetcher     Fetcher
	partitioner PartitionEnsurer
	sources     ChunkSourceOpener

	qualityPipe *quality.Pipeline
	logs        ProcessingLog
	invalid     *ingest.InvalidStore

	mu      sync.Mutex
	summary RunSummary
}

func New(cfg *config.Config, db *dbx.DB, log zerolog.Logger, qualityPipe *quality.Pipeline) *Orchestrator {
	sessionID := uuid.New().String()
	return &Orchestrator{
		cfg:         cfg,
		db:          db,
		log:         log.With().Str("component", "orchestrator").Str("session_id", sessionID).Logger(),
		fetcher:     fetch.New(cfg.DataDir, log),
		partitioner: &dbPartitioner{db: db.SQLX.DB},
		sources:     parquetChunkSourceOpener{},
		qualityPipe: qualityPipe,
		logs:        proclog.NewStore(db.SQLX),
		invalid:     ingest.NewInvalidStore(db.Pool),
		summary:     RunSummary{SessionID: sessionID, StartedAt: time.Now().UTC()},
	}
}

// Status implements httpserver.StatusProvider.
func (o *Orchestrator) Status() any {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := o.summary
	cp.Months = append([]MonthResult(nil), o.summary.Months...)
	return cp
}

// Ready implements httpserver.Pinger.
func (o *Orchestrator) Ready(ctx context.Context) error {
	return o.db.Ready(ctx)
}

// Run executes the full top-level sequence. ctx cancellation (SIGINT/
// SIGTERM) is observed between chunks and between months, never mid-chunk:
// the in-flight chunk always finishes and commits before Run returns.
func (o *Orchestrator) Run(ctx context.Context) (RunSummary, error) {
	if err := schema.Bootstrap(ctx, o.db.SQLX.DB); err != nil {
		return o.finish(true), err
	}

	if err := o.loadReferenceData(ctx, refdata.NewStore(o.db.SQLX)); err != nil {
		return o.finish(true), err
	}

	cache, err := dimcache.Build(ctx, o.db.SQLX)
	if err != nil {
		return o.finish(true), err
	}

	logsSnapshot, err := o.logs.Recent(ctx, 10000)
	if err != nil {
		return o.finish(true), err
	}
	plannedMonths, err := planner.Plan(ctx, o.cfg.BackfillSpec, time.Now().UTC(), &LogLookupAdapter{logs: logsSnapshot}, &LocalFileLister{DataDir: o.cfg.DataDir})
	if err != nil {
		return o.finish(true), err
	}

	transformer := transform.New(cache)
	loader := ingest.NewLoader(o.db.Pool, o.invalid, o.qualityPipe, o.log, o.summary.SessionID)
	factLoader := transform.NewLoader(o.db.Pool, transformer, o.invalid, o.qualityPipe, o.log, o.summary.SessionID)

	for _, pm := range plannedMonths {
		year, month := pm.Month.Year, pm.Month.Month

		if pm.Classification == planner.ClassSkip {
			o.recordMonth(MonthResult{Year: year, Month: month, Status: models.StatusCompleted, Skipped: true})
			o.log.Info().Int("year", year).Int("month", month).Msg("month already processed, skipping")
			continue
		}

		select {
		case <-ctx.Done():
			o.log.Warn().Msg("cancellation observed before next month, stopping")
			return o.finish(true), nil
		default:
		}

		if err := o.runMonth(ctx, year, month, loader, factLoader); err != nil {
			if errs.Terminal(errs.KindOf(err)) {
				return o.finish(true), err
			}
			o.log.Error().Err(err).Int("year", year).Int("month", month).Msg("month failed")
		}
	}

	return o.finish(ctx.Err() != nil), nil
}

func (o *Orchestrator) runMonth(ctx context.Context, year, month int, loader Loader, factLoader Transformer) error {
	startedAt := time.Now().UTC()

	path, err := o.fetcher.MonthlyParquet(ctx, year, month)
	if err != nil {
		return err
	}
	sourceFile := fmt.Sprintf("yellow_tripdata_%04d-%02d.parquet", year, month)

	if err := o.logs.MarkInProgress(ctx, year, month, sourceFile, o.cfg.BackfillSpec, startedAt); err != nil {
		return err
	}

	if err := o.partitioner.EnsureMonthPartition(ctx, year, month); err != nil {
		_ = o.logs.MarkFailed(ctx, year, month)
		return err
	}

	source, err := o.sources.Open(ctx, path, o.cfg.ChunkSize)
	if err != nil {
		_ = o.logs.MarkFailed(ctx, year, month)
		return err
	}
	defer source.Close()

	var recordsLoaded int64
	for {
		select {
		case <-ctx.Done():
			o.log.Warn().Int("year", year).Int("month", month).Msg("cancellation observed mid-month; leaving status in_progress for resume")
			return o.logs.LeaveInProgress(ctx, year, month)
		default:
		}

		chunk, ok, err := source.Next()
		if err != nil {
			_ = o.logs.MarkFailed(ctx, year, month)
			return err
		}
		if !ok {
			break
		}

		normalizedResult, err := loader.LoadOneChunk(ctx, chunk, sourceFile)
		if err != nil {
			_ = o.logs.MarkFailed(ctx, year, month)
			return err
		}
		if err := factLoader.LoadChunk(ctx, chunk.Rows, sourceFile, chunk.Number); err != nil {
			_ = o.logs.MarkFailed(ctx, year, month)
			return err
		}
		recordsLoaded += normalizedResult.RowsInserted
	}

	if err := o.logs.MarkCompleted(ctx, year, month, recordsLoaded, time.Now().UTC()); err != nil {
		return err
	}
	o.recordMonth(MonthResult{Year: year, Month: month, Status: models.StatusCompleted, RecordsLoaded: recordsLoaded})
	return nil
}

func (o *Orchestrator) recordMonth(m MonthResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summary.Months = append(o.summary.Months, m)
}

func (o *Orchestrator) finish(cancelled bool) RunSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summary.FinishedAt = time.Now().UTC()
	o.summary.Cancelled = cancelled
	cp := o.summary
	cp.Months = append([]MonthResult(nil), o.summary.Months...)
	return cp
}

// loadReferenceData runs the reference load in full: zone lookup CSV, zone shapefile
// (reprojected), full-refresh reseed of the lookup-derived rows, then
// the small fixed dimension tables dimcache reads at startup.
func (o *Orchestrator) loadReferenceData(ctx context.Context, store *refdata.Store) error {
	lookupPath, err := o.fetcher.ZoneLookupCSV(ctx)
	if err != nil {
		return err
	}
	lookups, err := refdata.LoadZoneLookupCSV(lookupPath)
	if err != nil {
		return errs.New(errs.Reference, err)
	}
	if len(lookups) != 263 {
		o.log.Warn().Int("rows", len(lookups)).Msg("zone lookup row count differs from the expected 263")
	}
	if err := store.UpsertZoneLookup(ctx, lookups); err != nil {
		return err
	}

	archivePath, err := o.fetcher.ZoneShapefileArchive(ctx)
	if err != nil {
		return err
	}
	shpPath, err := refdata.ExtractZoneArchive(archivePath, filepath.Join(o.cfg.DataDir, "zones"))
	if err != nil {
		return errs.New(errs.Reference, err)
	}
	shapes, err := refdata.LoadZoneShapes(shpPath)
	if err != nil {
		return errs.New(errs.Reference, err)
	}
	if err := store.UpsertZoneShapes(ctx, shapes); err != nil {
		return err
	}

	if err := store.ReseedLookups(ctx); err != nil {
		return err
	}

	if err := store.SeedDimDate(ctx); err != nil {
		return err
	}
	if err := store.SeedDimTime(ctx); err != nil {
		return err
	}
	if err := store.SeedDimLocations(ctx); err != nil {
		return err
	}
	if err := store.SeedDimVendor(ctx); err != nil {
		return err
	}
	if err := store.SeedDimPaymentType(ctx); err != nil {
		return err
	}
	if err := store.SeedDimRateCode(ctx); err != nil {
		return err
	}
	return nil
}

// dbPartitioner satisfies PartitionEnsurer against a real database
// connection by delegating to internal/schema.
type dbPartitioner struct {
	db *sql.DB
}

func (p *dbPartitioner) EnsureMonthPartition(ctx context.Context, year, month int) error {
	return schema.EnsureMonthPartition(ctx, p.db, year, month)
}

// parquetChunkSourceOpener satisfies ChunkSourceOpener by opening a
// real parquet file through ingest.NewChunkSource.
type parquetChunkSourceOpener struct{}

func (parquetChunkSourceOpener) Open(ctx context.Context, path string, chunkSize int) (ChunkSource, error) {
	return ingest.NewChunkSource(ctx, path, chunkSize)
}

// LogLookupAdapter satisfies planner.LogLookup from an in-memory
// snapshot fetched once up front, avoiding a second round trip to the
// processing_log table per planned month. Exported so cmd/taxietl's
// plan subcommand can build the same planner.Plan inputs the
// orchestrator itself uses, without a live run.
type LogLookupAdapter struct {
	logs []models.ProcessingLog
}

// NewLogLookupAdapter wraps a snapshot of processing_log rows.
func NewLogLookupAdapter(logs []models.ProcessingLog) *LogLookupAdapter {
	return &LogLookupAdapter{logs: logs}
}

func (l *LogLookupAdapter) Get(ctx context.Context, year, month int) (*models.ProcessingLog, error) {
	for i := range l.logs {
		if l.logs[i].Year == year && l.logs[i].Month == month {
			return &l.logs[i], nil
		}
	}
	return nil, nil
}

// LocalFileLister satisfies planner.LocalFileLister for the empty
// backfill_spec case: any month for which DataDir/parquet already has
// a cached parquet file is treated as planned.
type LocalFileLister struct {
	DataDir string
}

var parquetNamePattern = regexp.MustCompile(`^yellow_tripdata_(\d{4})-(\d{2})\.parquet$`)

func (f *LocalFileLister) ExistingMonths(ctx context.Context) ([]planner.Month, error) {
	entries, err := os.ReadDir(filepath.Join(f.DataDir, "parquet"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var months []planner.Month
	for _, e := range entries {
		m := parquetNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		var year, month int
		fmt.Sscanf(m[1], "%d", &year)
		fmt.Sscanf(m[2], "%d", &month)
		months = append(months, planner.Month{Year: year, Month: month})
	}
	return months, nil
}
