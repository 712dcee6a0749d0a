// Package schema bootstraps the database: idempotent goose migrations
// for every table in the persisted schema, plus a helper that creates
// one monthly range partition of fact_taxi_trips at a time.
package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/nyctaxi/taxietl/internal/errs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Bootstrap runs every pending migration under this package's
// embedded migrations directory against db. Idempotent: rerunning
// against an already-bootstrapped database is a no-op.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(embeddedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errs.New(errs.Schema, fmt.Errorf("set goose dialect: %w", err))
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errs.New(errs.Schema, fmt.Errorf("run migrations: %w", err))
	}
	return nil
}

// EnsureMonthPartition creates fact_taxi_trips' range partition for
// (year, month) if it does not already exist. Unlike the base tables,
// partition DDL is issued per planned month rather than as a goose
// migration, since the set of months is open-ended and driven by the
// backfill plan, not known at migration-authoring time.
func EnsureMonthPartition(ctx context.Context, db *sql.DB, year, month int) error {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	partition := fmt.Sprintf("fact_taxi_trips_%04d_%02d", year, month)

	stmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s PARTITION OF fact_taxi_trips FOR VALUES FROM ('%s') TO ('%s')`,
		partition, start.Format("2006-01-02"), end.Format("2006-01-02"),
	)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return errs.New(errs.Schema, fmt.Errorf("create partition %s: %w", partition, err))
	}
	return nil
}
