package refdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeasonOf(t *testing.T) {
	assert.Equal(t, "winter", seasonOf(time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "spring", seasonOf(time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "summer", seasonOf(time.Date(2024, time.July, 4, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "fall", seasonOf(time.Date(2024, time.October, 31, 0, 0, 0, 0, time.UTC)))
}

func TestFiscalYearQuarter(t *testing.T) {
	y, q := fiscalYearQuarter(time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2025, y)
	assert.Equal(t, 1, q)

	y, q = fiscalYearQuarter(time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2024, y)
	assert.Equal(t, 4, q)
}

func TestClassifyZoneType(t *testing.T) {
	assert.Equal(t, "airport", classifyZoneType(true, false, false))
	assert.Equal(t, "business_district", classifyZoneType(false, true, false))
	assert.Equal(t, "commercial", classifyZoneType(false, false, true))
	assert.Equal(t, "residential", classifyZoneType(false, false, false))
}

func TestTimeOfDayLabel(t *testing.T) {
	assert.Equal(t, "night", timeOfDayLabel(2))
	assert.Equal(t, "morning", timeOfDayLabel(8))
	assert.Equal(t, "afternoon", timeOfDayLabel(14))
	assert.Equal(t, "evening", timeOfDayLabel(18))
}
