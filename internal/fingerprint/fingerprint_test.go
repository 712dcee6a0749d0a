package fingerprint

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/nyctaxi/taxietl/pkg/models"
)

func i32(v int32) *int32 { return &v }
func f64(v float64) *float64 { return &v }
func dec(v string) *decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return &d
}

func sampleRow() models.TripRow {
	return models.TripRow{
		VendorID:        i32(1),
		PickupDatetime:  time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC),
		DropoffDatetime: time.Date(2024, 1, 15, 8, 45, 0, 0, time.UTC),
		PassengerCount:  i32(1),
		TripDistance:    f64(2.5),
		PULocationID:    i32(100),
		DOLocationID:    i32(200),
		FareAmount:      dec("12.50"),
		TotalAmount:     dec("15.00"),
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	row := sampleRow()
	assert.Equal(t, Compute(row), Compute(row))
	assert.Len(t, Compute(row), 64)
}

func TestComputeDiffersOnLogicalChange(t *testing.T) {
	a := sampleRow()
	b := sampleRow()
	b.TripDistance = f64(2.6)
	assert.NotEqual(t, Compute(a), Compute(b))
}

func TestComputeMissingOptionalColumnIsStableAndDistinctFromPresent(t *testing.T) {
	withCol := sampleRow()
	withCol.CBDCongestionFee = dec("0.75")

	withoutCol := sampleRow()
	withoutCol.CBDCongestionFee = nil

	other := sampleRow()
	other.CBDCongestionFee = dec("0.75")

	assert.Equal(t, Compute(withCol), Compute(other))
	assert.NotEqual(t, Compute(withCol), Compute(withoutCol))
}

func TestComputeTimestampTruncatesNotRounds(t *testing.T) {
	a := sampleRow()
	a.PickupDatetime = time.Date(2024, 1, 15, 8, 30, 0, 999_000_000, time.UTC)

	b := sampleRow()
	b.PickupDatetime = time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)

	assert.Equal(t, Compute(a), Compute(b))
}

func TestComputeFloatFixedPrecisionNeverScientific(t *testing.T) {
	row := sampleRow()
	row.TripDistance = f64(0.0000001234)
	assert.Equal(t, "0.0000001234", floatOrEmpty(row.TripDistance))
}
