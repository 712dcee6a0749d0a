package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nyctaxi/taxietl/internal/httpserver"
	"github.com/nyctaxi/taxietl/internal/lock"
	"github.com/nyctaxi/taxietl/internal/orchestrator"
)

// errCancelled signals a clean signal-triggered stop, distinguished
// from a real failure so main can map it to exit code 130 without
// skipping the deferred cleanup (lock release, admin server shutdown,
// quality pipeline drain) that an os.Exit call from here would skip.
var errCancelled = errors.New("run cancelled by signal")

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full backfill/ingest pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context())
		},
	}
}

// runPipeline wires lock acquisition, the orchestrator, and the admin
// HTTP server together, and reacts to SIGINT/SIGTERM by cancelling
// the orchestrator's context — which finishes the current chunk,
// commits, and leaves the processing log row in_progress for a later
// resume — before exiting with code 130, the conventional signal-
// terminated exit status.
func runPipeline(parent context.Context) error {
	rt, err := newRuntime(parent)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.cfg.RedisURL != "" {
		runLock, err := lock.Acquire(parent, rt.cfg.RedisURL)
		if err != nil {
			return err
		}
		defer runLock.Release(context.Background()) //nolint:errcheck
	}

	qualityPipe := rt.newQualityPipeline(parent)
	defer qualityPipe.Stop()

	orch := orchestrator.New(rt.cfg, rt.db, rt.log, qualityPipe)

	admin := httpserver.New(rt.cfg.AdminAddr, orch, orch, rt.registry, rt.log)
	admin.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = admin.Shutdown(shutdownCtx)
	}()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	if summary.Cancelled {
		rt.log.Warn().Msg("run cancelled by signal, partial state preserved for resume")
		return errCancelled
	}

	rt.log.Info().Int("months_processed", len(summary.Months)).Msg("run complete")
	return nil
}
