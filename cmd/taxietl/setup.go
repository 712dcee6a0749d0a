package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/nyctaxi/taxietl/internal/config"
	"github.com/nyctaxi/taxietl/internal/dbx"
	"github.com/nyctaxi/taxietl/internal/logging"
	"github.com/nyctaxi/taxietl/internal/quality"
)

// shutdownGrace bounds how long the admin HTTP server is given to
// drain in-flight requests during a signal-triggered shutdown.
const shutdownGrace = 5 * time.Second

// runtime bundles the handles every subcommand needs, opened once
// from environment-driven config the same way across run/bootstrap/
// plan/status so none of them can drift from each other's DSN or log
// destination.
type runtime struct {
	cfg      *config.Config
	db       *dbx.DB
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *quality.Metrics
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	backfillLabel := cfg.BackfillSpec
	if backfillLabel == "" {
		backfillLabel = "adhoc"
	}

	log, err := logging.New(cfg, backfillLabel, time.Now().UTC().Format("20060102T150405Z"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := dbx.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics := quality.NewMetrics(registry)

	return &runtime{cfg: cfg, db: db, log: log, registry: registry, metrics: metrics}, nil
}

func (r *runtime) Close() {
	r.db.Close()
}

func (r *runtime) newQualityPipeline(ctx context.Context) *quality.Pipeline {
	pipe := quality.New(r.log, quality.NewStore(r.db.SQLX), r.metrics)
	pipe.Start(ctx)
	return pipe
}
