// Package quality implements the quality accountant: an async,
// buffered writer for per-chunk QualityRecord rows, built on the same
// channel/ticker/retry-with-backoff shape as an analytics ingestion
// pipeline, collapsed from three event types to one.
package quality

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/nyctaxi/taxietl/pkg/models"
)

// Sink is the destination for quality records — a sqlx-backed store
// in production, a recording fake in tests.
type Sink interface {
	WriteQualityRecords(ctx context.Context, records []models.QualityRecord) error
}

// PipelineConfig controls batching and retry behavior. Defaults are
// tuned for one chunk (~100k rows) producing one QualityRecord every
// few seconds, far below a high-throughput event pipeline's
// design point, so buffer/batch sizes are much smaller.
type PipelineConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BufferSize:    1000,
		BatchSize:     50,
		FlushInterval: 5 * time.Second,
		MaxRetries:    3,
		RetryDelay:    200 * time.Millisecond,
	}
}

// Pipeline is the async quality-record ingestion engine.
type Pipeline struct {
	logger zerolog.Logger
	config PipelineConfig
	sink   Sink

	recordCh chan models.QualityRecord

	wg     sync.WaitGroup
	cancel context.CancelFunc

	received    int64
	written     int64
	dropped     int64
	flushErrors int64

	metrics *Metrics
}

// Metrics are the Prometheus counters/histogram exposed for chunk
// throughput and quality, registered on the registry the admin
// server exposes at /metrics.
type Metrics struct {
	RowsInserted  prometheus.Counter
	RowsDuplicate prometheus.Counter
	RowsInvalid   prometheus.Counter
	ChunkDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taxietl_rows_inserted_total",
			Help: "Total rows successfully inserted across all target tables.",
		}),
		RowsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taxietl_rows_duplicate_total",
			Help: "Total rows rejected as duplicates by the fingerprint primary key.",
		}),
		RowsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taxietl_rows_invalid_total",
			Help: "Total rows quarantined to an invalid table.",
		}),
		ChunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taxietl_chunk_duration_seconds",
			Help:    "Wall-clock duration of one chunk's load.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.RowsInserted, m.RowsDuplicate, m.RowsInvalid, m.ChunkDuration)
	return m
}

func New(logger zerolog.Logger, sink Sink, metrics *Metrics, config ...PipelineConfig) *Pipeline {
	cfg := DefaultPipelineConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Pipeline{
		logger:   logger.With().Str("component", "quality-pipeline").Logger(),
		config:   cfg,
		sink:     sink,
		metrics:  metrics,
		recordCh: make(chan models.QualityRecord, cfg.BufferSize),
	}
}

// Start launches the single writer worker. Quality accounting needs
// no concurrency of its own, so unlike the multi-worker-per-type
// analytics pipeline this was adapted from, this runs exactly one
// worker.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.worker(ctx)

	p.logger.Info().
		Int("buffer_size", p.config.BufferSize).
		Int("batch_size", p.config.BatchSize).
		Dur("flush_interval", p.config.FlushInterval).
		Msg("quality pipeline started")
}

// Stop cancels the worker, waits for its final flush, and logs totals.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.logger.Info().
		Int64("received", atomic.LoadInt64(&p.received)).
		Int64("written", atomic.LoadInt64(&p.written)).
		Int64("dropped", atomic.LoadInt64(&p.dropped)).
		Int64("flush_errors", atomic.LoadInt64(&p.flushErrors)).
		Msg("quality pipeline stopped")
}

// Record submits a QualityRecord for async persistence. Non-blocking:
// drops (and logs) if the buffer is full rather than stalling the
// chunk loader — a dropped quality record never blocks data ingest,
// it only loses observability into one chunk.
func (p *Pipeline) Record(rec models.QualityRecord) {
	if rec.MonitoredAt.IsZero() {
		rec.MonitoredAt = time.Now().UTC()
	}
	p.recordMetrics(rec)

	select {
	case p.recordCh <- rec:
		atomic.AddInt64(&p.received, 1)
	default:
		atomic.AddInt64(&p.dropped, 1)
		p.logger.Warn().Str("source_file", rec.SourceFile).Int("chunk_number", rec.ChunkNumber).Msg("quality record dropped: buffer full")
	}
}

func (p *Pipeline) recordMetrics(rec models.QualityRecord) {
	if p.metrics == nil {
		return
	}
	p.metrics.RowsInserted.Add(float64(rec.RowsInserted))
	p.metrics.RowsDuplicate.Add(float64(rec.RowsDuplicates))
	p.metrics.RowsInvalid.Add(float64(rec.RowsInvalid))
	p.metrics.ChunkDuration.Observe(float64(rec.DurationMS) / 1000.0)
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]models.QualityRecord, 0, p.config.BatchSize)

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				p.flush(batch)
			}
			p.drain()
			return

		case rec := <-p.recordCh:
			batch = append(batch, rec)
			if len(batch) >= p.config.BatchSize {
				p.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// drain flushes whatever arrived on recordCh between the final flush
// above and the channel going idle, so a cancel doesn't silently drop
// the last few records queued right at shutdown.
func (p *Pipeline) drain() {
	for {
		select {
		case rec := <-p.recordCh:
			p.flush([]models.QualityRecord{rec})
		default:
			return
		}
	}
}

func (p *Pipeline) flush(batch []models.QualityRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		err = p.sink.WriteQualityRecords(ctx, batch)
		if err == nil {
			atomic.AddInt64(&p.written, int64(len(batch)))
			return
		}
		p.logger.Warn().Err(err).Int("attempt", attempt+1).Int("batch_size", len(batch)).Msg("quality record flush failed")
		if attempt < p.config.MaxRetries {
			time.Sleep(p.config.RetryDelay * time.Duration(1<<uint(attempt)))
		}
	}

	atomic.AddInt64(&p.flushErrors, 1)
	atomic.AddInt64(&p.dropped, int64(len(batch)))
	p.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("quality record batch dropped after retries")
}
