package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyctaxi/taxietl/internal/planner"
	"github.com/nyctaxi/taxietl/pkg/models"
)

func TestLocalFileListerFindsCachedParquetMonths(t *testing.T) {
	dir := t.TempDir()
	parquetDir := filepath.Join(dir, "parquet")
	require.NoError(t, os.MkdirAll(parquetDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(parquetDir, "yellow_tripdata_2024-01.parquet"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(parquetDir, "yellow_tripdata_2024-03.parquet"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(parquetDir, "not-a-parquet-file.txt"), []byte("x"), 0o644))

	lister := &LocalFileLister{DataDir: dir}
	months, err := lister.ExistingMonths(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []planner.Month{{Year: 2024, Month: 1}, {Year: 2024, Month: 3}}, months)
}

func TestLocalFileListerMissingDirReturnsEmpty(t *testing.T) {
	lister := &LocalFileLister{DataDir: filepath.Join(t.TempDir(), "does-not-exist")}
	months, err := lister.ExistingMonths(context.Background())
	require.NoError(t, err)
	assert.Empty(t, months)
}

func TestLogLookupAdapterFindsMatchingMonth(t *testing.T) {
	adapter := &LogLookupAdapter{logs: []models.ProcessingLog{
		{Year: 2024, Month: 1, Status: models.StatusCompleted},
		{Year: 2024, Month: 2, Status: models.StatusFailed},
	}}

	log, err := adapter.Get(context.Background(), 2024, 2)
	require.NoError(t, err)
	require.NotNil(t, log)
	assert.Equal(t, models.StatusFailed, log.Status)
}

func TestLogLookupAdapterReturnsNilForUnknownMonth(t *testing.T) {
	adapter := &LogLookupAdapter{}
	log, err := adapter.Get(context.Background(), 2024, 1)
	require.NoError(t, err)
	assert.Nil(t, log)
}

func TestFinishMarksCancelledAndSnapshotsMonths(t *testing.T) {
	o := &Orchestrator{summary: RunSummary{SessionID: "s1", StartedAt: time.Now().UTC()}}
	o.recordMonth(MonthResult{Year: 2024, Month: 1, Status: models.StatusCompleted, RecordsLoaded: 100})

	summary := o.finish(true)

	assert.True(t, summary.Cancelled)
	assert.Len(t, summary.Months, 1)
	assert.Equal(t, int64(100), summary.Months[0].RecordsLoaded)
	assert.False(t, summary.FinishedAt.IsZero())
}

func TestStatusReturnsIndependentSnapshot(t *testing.T) {
	o := &Orchestrator{summary: RunSummary{SessionID: "s1"}}
	o.recordMonth(MonthResult{Year: 2024, Month: 1})

	snapshot := o.Status().(RunSummary)
	snapshot.Months[0].Year = 9999

	assert.Equal(t, 2024, o.summary.Months[0].Year)
}
