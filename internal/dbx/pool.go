// Package dbx wires the pgx connection pool the bulk-COPY paths
// use directly and the sqlx handle the row-at-a-time paths
// (ProcessingLog, QualityRecord, lookups) use over pgx's
// database/sql compatibility shim.
package dbx

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	stdlib "github.com/jackc/pgx/v5/stdlib"

	"github.com/nyctaxi/taxietl/internal/config"
	"github.com/nyctaxi/taxietl/internal/errs"
)

// DB bundles both handles onto the same underlying pool
// configuration: Pool for pgx.CopyFrom bulk paths, SQLX for
// jmoiron/sqlx row-at-a-time CRUD.
type DB struct {
	Pool *pgxpool.Pool
	SQLX *sqlx.DB
}

// Open parses cfg's DSN, configures a pool sized for a single-process
// pipeline (one COPY goroutine at a time plus headroom for the admin
// server's health checks and the quality-accountant writer), and
// opens a parallel sqlx handle over the same DSN via the pgx stdlib
// driver.
func Open(ctx context.Context, cfg *config.Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, errs.New(errs.Fatal, fmt.Errorf("parse dsn: %w", err))
	}

	poolConfig.MinConns = 1
	poolConfig.MaxConns = 4
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second
	poolConfig.ConnConfig.RuntimeParams = map[string]string{
		"application_name": "taxietl",
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errs.New(errs.Fatal, fmt.Errorf("create pool: %w", err))
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.New(errs.Fatal, fmt.Errorf("ping database: %w", err))
	}

	sqlxDB := sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")

	return &DB{Pool: pool, SQLX: sqlxDB}, nil
}

// Close releases both handles. SQLX wraps the same pool connections
// via stdlib.OpenDBFromPool, so only Pool.Close needs to actually
// drain connections; SQLX.Close is still called for symmetry and to
// satisfy anything relying on database/sql's Close contract.
func (d *DB) Close() {
	_ = d.SQLX.Close()
	d.Pool.Close()
}

// Ready pings the pool; used by the admin server's /readyz handler.
func (d *DB) Ready(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}
