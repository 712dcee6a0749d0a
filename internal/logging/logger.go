// Package logging builds the run-scoped zerolog.Logger every other
// component derives its child logger from.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"

	"github.com/nyctaxi/taxietl/internal/config"
)

// New returns a logger that writes console-formatted output to
// stderr and JSON lines to log_dir/<backfillLabel>/<timestamp>.log.
// timestamp is injected by the caller (orchestrator run start time)
// rather than taken here, since this package must stay free of
// wall-clock calls to remain trivially testable.
func New(cfg *config.Config, backfillLabel, timestamp string) (zerolog.Logger, error) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	console := zerolog.ConsoleWriter{Out: os.Stderr}

	runDir := filepath.Join(cfg.LogDir, backfillLabel)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return zerolog.Logger{}, fmt.Errorf("create log dir %s: %w", runDir, err)
	}
	file := &lumberjack.Logger{
		Filename: filepath.Join(runDir, timestamp+".log"),
		MaxSize:  100, // MB; effectively unreached within one run
		Compress: false,
	}

	multi := zerolog.MultiLevelWriter(console, file)
	return zerolog.New(multi).With().Timestamp().Logger(), nil
}

// Component returns a child logger tagged with the emitting
// component's name, the vocabulary every log line in this repo
// shares.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
