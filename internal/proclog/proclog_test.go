package proclog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nyctaxi/taxietl/pkg/models"
)

func TestRowToModelCarriesEveryField(t *testing.T) {
	completed := time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC)
	r := row{
		Year:          2024,
		Month:         3,
		SourceFile:    "yellow_tripdata_2024-03.parquet",
		RecordsLoaded: 42,
		StartedAt:     time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		CompletedAt:   &completed,
		BackfillLabel: "adhoc",
		Status:        "completed",
		AttemptCount:  2,
	}

	m := r.toModel()

	assert.Equal(t, 2024, m.Year)
	assert.Equal(t, 3, m.Month)
	assert.Equal(t, "yellow_tripdata_2024-03.parquet", m.SourceFile)
	assert.Equal(t, int64(42), m.RecordsLoaded)
	assert.Equal(t, models.StatusCompleted, m.Status)
	assert.Equal(t, 2, m.AttemptCount)
	assert.Equal(t, &completed, m.CompletedAt)
}

func TestRowToModelLeavesCompletedAtNilWhenInProgress(t *testing.T) {
	r := row{Year: 2024, Month: 1, Status: "in_progress"}
	m := r.toModel()
	assert.Nil(t, m.CompletedAt)
}

func TestLeaveInProgressIsANoOp(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.LeaveInProgress(context.Background(), 2024, 1))
}
