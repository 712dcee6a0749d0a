package refdata

import (
	"context"
	"fmt"
	"time"

	"github.com/nyctaxi/taxietl/internal/errs"
)

// dimDateStart and dimDateEnd bound the required dim_date
// coverage: every calendar day in [2009-01-01, 2025-12-31], no gaps.
var (
	dimDateStart = time.Date(2009, time.January, 1, 0, 0, 0, 0, time.UTC)
	dimDateEnd   = time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// airportLocationIDs are the TLC zone ids for JFK, LaGuardia, and
// Newark, used to flag is_airport on dim_locations.
var airportLocationIDs = map[int32]bool{132: true, 138: true, 1: true}

// businessDistrictLocationIDs flag Manhattan's core business zones
// (Midtown, Financial District, etc.) for is_business_district.
var businessDistrictLocationIDs = map[int32]bool{
	230: true, 231: true, 186: true, 161: true, 162: true, 163: true,
	100: true, 48: true, 68: true, 90: true, 87: true, 12: true, 13: true,
}

// SeedDimDate populates dim_date for every day in
// [dimDateStart, dimDateEnd] that is not already present.
func (s *Store) SeedDimDate(ctx context.Context) error {
	const q = `
		INSERT INTO dim_date (date_key, full_date, year, quarter, month, day, weekday, is_weekend, fiscal_year, fiscal_quarter, season)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (date_key) DO NOTHING`

	for d := dimDateStart; !d.After(dimDateEnd); d = d.AddDate(0, 0, 1) {
		dateKey := d.Year()*10000 + int(d.Month())*100 + d.Day()
		weekday := int(d.Weekday())
		isWeekend := weekday == 0 || weekday == 6
		fiscalYear, fiscalQuarter := fiscalYearQuarter(d)

		if _, err := s.db.ExecContext(ctx, q,
			dateKey, d, d.Year(), quarterOf(d), int(d.Month()), d.Day(),
			weekday, isWeekend, fiscalYear, fiscalQuarter, seasonOf(d),
		); err != nil {
			return errs.New(errs.Schema, fmt.Errorf("seed dim_date %d: %w", dateKey, err))
		}
	}
	return nil
}

func quarterOf(d time.Time) int {
	return (int(d.Month())-1)/3 + 1
}

// fiscalYearQuarter uses the NYC government fiscal calendar: fiscal
// year N runs July N-1 through June N.
func fiscalYearQuarter(d time.Time) (year, quarter int) {
	y := d.Year()
	m := int(d.Month())
	if m >= 7 {
		year = y + 1
	} else {
		year = y
	}
	fiscalMonth := (m+5)%12 + 1 // July -> 1, ..., June -> 12
	quarter = (fiscalMonth-1)/3 + 1
	return
}

func seasonOf(d time.Time) string {
	switch d.Month() {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "fall"
	}
}

// SeedDimTime populates the 24 hour-of-day rows of dim_time.
func (s *Store) SeedDimTime(ctx context.Context) error {
	const q = `
		INSERT INTO dim_time (time_key, hour, is_rush_hour, is_business_hour, time_of_day_label)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (time_key) DO NOTHING`

	for hour := 0; hour < 24; hour++ {
		isRush := (hour >= 7 && hour <= 10) || (hour >= 16 && hour <= 19)
		isBusiness := hour >= 9 && hour <= 17
		if _, err := s.db.ExecContext(ctx, q, hour, hour, isRush, isBusiness, timeOfDayLabel(hour)); err != nil {
			return errs.New(errs.Schema, fmt.Errorf("seed dim_time %d: %w", hour, err))
		}
	}
	return nil
}

func timeOfDayLabel(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	default:
		return "night"
	}
}

// SeedDimLocations enriches every taxi_zone_lookup row already
// upserted by UpsertZoneLookup into dim_locations, classifying
// airport/Manhattan/business-district flags and a zone type.
func (s *Store) SeedDimLocations(ctx context.Context) error {
	rows, err := s.db.QueryxContext(ctx, `SELECT locationid, borough, zone, service_zone FROM taxi_zone_lookup`)
	if err != nil {
		return errs.New(errs.Schema, fmt.Errorf("read taxi_zone_lookup for dim_locations: %w", err))
	}
	defer rows.Close()

	const upsert = `
		INSERT INTO dim_locations (locationid, borough, zone, service_zone, is_airport, is_manhattan, is_business_district, zone_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (locationid) DO UPDATE SET
			borough = EXCLUDED.borough,
			zone = EXCLUDED.zone,
			service_zone = EXCLUDED.service_zone,
			is_airport = EXCLUDED.is_airport,
			is_manhattan = EXCLUDED.is_manhattan,
			is_business_district = EXCLUDED.is_business_district,
			zone_type = EXCLUDED.zone_type`

	for rows.Next() {
		var locationID int32
		var borough, zone, serviceZone string
		if err := rows.Scan(&locationID, &borough, &zone, &serviceZone); err != nil {
			return errs.New(errs.Schema, fmt.Errorf("scan taxi_zone_lookup row: %w", err))
		}

		isAirport := airportLocationIDs[locationID]
		isManhattan := borough == "Manhattan"
		isBusinessDistrict := businessDistrictLocationIDs[locationID]
		zoneType := classifyZoneType(isAirport, isBusinessDistrict, isManhattan)

		if _, err := s.db.ExecContext(ctx, upsert, locationID, borough, zone, serviceZone, isAirport, isManhattan, isBusinessDistrict, zoneType); err != nil {
			return errs.New(errs.Schema, fmt.Errorf("seed dim_locations %d: %w", locationID, err))
		}
	}
	return rows.Err()
}

func classifyZoneType(isAirport, isBusinessDistrict, isManhattan bool) string {
	switch {
	case isAirport:
		return "airport"
	case isBusinessDistrict:
		return "business_district"
	case isManhattan:
		return "commercial"
	default:
		return "residential"
	}
}

// SeedDimVendor, SeedDimPaymentType, and SeedDimRateCode mirror the
// already-upserted lookup tables into their dimension equivalents,
// assigning the surrogate keys the fact table joins against.
func (s *Store) SeedDimVendor(ctx context.Context) error {
	const q = `
		INSERT INTO dim_vendor (vendorid, description)
		SELECT vendorid, description FROM vendor_lookup
		ON CONFLICT (vendorid) DO UPDATE SET description = EXCLUDED.description`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return errs.New(errs.Schema, fmt.Errorf("seed dim_vendor: %w", err))
	}
	return nil
}

func (s *Store) SeedDimPaymentType(ctx context.Context) error {
	const q = `
		INSERT INTO dim_payment_type (payment_type, description)
		SELECT payment_type, description FROM payment_type_lookup
		ON CONFLICT (payment_type) DO UPDATE SET description = EXCLUDED.description`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return errs.New(errs.Schema, fmt.Errorf("seed dim_payment_type: %w", err))
	}
	return nil
}

func (s *Store) SeedDimRateCode(ctx context.Context) error {
	const q = `
		INSERT INTO dim_rate_code (ratecodeid, description)
		SELECT ratecodeid, description FROM rate_code_lookup
		ON CONFLICT (ratecodeid) DO UPDATE SET description = EXCLUDED.description`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return errs.New(errs.Schema, fmt.Errorf("seed dim_rate_code: %w", err))
	}
	return nil
}
