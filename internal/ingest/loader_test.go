package ingest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nyctaxi/taxietl/pkg/models"
)

func TestColumnListJoinsWithCommaSpace(t *testing.T) {
	assert.Equal(t, "row_hash, vendorid, pickup_datetime", columnList([]string{"row_hash", "vendorid", "pickup_datetime"}))
}

func TestColumnListHandlesSingleColumn(t *testing.T) {
	assert.Equal(t, "row_hash", columnList([]string{"row_hash"}))
}

func TestTripRowColumnValueReturnsNilForUnsetOptionalColumns(t *testing.T) {
	r := models.TripRow{RowHash: "abc123"}
	assert.Equal(t, "abc123", tripRowColumnValue(r, "row_hash"))
	assert.Nil(t, tripRowColumnValue(r, "vendorid"))
	assert.Nil(t, tripRowColumnValue(r, "trip_distance"))
	assert.Nil(t, tripRowColumnValue(r, "fare_amount"))
}

func TestTripRowColumnValueDereferencesSetPointers(t *testing.T) {
	vendor := int32(2)
	dist := 3.5
	fare := decimal.NewFromFloat(12.50)
	r := models.TripRow{VendorID: &vendor, TripDistance: &dist, FareAmount: &fare}

	assert.Equal(t, int32(2), tripRowColumnValue(r, "vendorid"))
	assert.Equal(t, 3.5, tripRowColumnValue(r, "trip_distance"))
	assert.Equal(t, fare, tripRowColumnValue(r, "fare_amount"))
}

func TestTripRowColumnValueReturnsTimeFieldsDirectly(t *testing.T) {
	pickup := time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)
	r := models.TripRow{PickupDatetime: pickup}
	assert.Equal(t, pickup, tripRowColumnValue(r, "pickup_datetime"))
}

func TestTripRowColumnValueReturnsNilForUnknownColumn(t *testing.T) {
	assert.Nil(t, tripRowColumnValue(models.TripRow{}, "not_a_real_column"))
}

func TestTripRowCopySourceIteratesAllRowsThenStops(t *testing.T) {
	rows := []models.TripRow{{RowHash: "a"}, {RowHash: "b"}}
	src := &tripRowCopySource{rows: rows}

	require.True(t, src.Next())
	vals, err := src.Values()
	require.NoError(t, err)
	assert.Equal(t, "a", vals[0])

	require.True(t, src.Next())
	vals, err = src.Values()
	require.NoError(t, err)
	assert.Equal(t, "b", vals[0])

	assert.False(t, src.Next())
	assert.NoError(t, src.Err())
}

func TestPointerToAnyHelpersReturnNilOnNilInput(t *testing.T) {
	assert.Nil(t, int32PtrToAny(nil))
	assert.Nil(t, float64PtrToAny(nil))
	assert.Nil(t, stringPtrToAny(nil))
	assert.Nil(t, decimalPtrToAny(nil))
}
