package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FactTrip is one row of the partitioned `fact_taxi_trips` table:
// dimension foreign keys, raw measures, derived measures, and flags.
// Every FactTrip has non-null PickupLocationKey/DropoffLocationKey —
// rows that would violate that are quarantined before construction
// (see internal/transform).
type FactTrip struct {
	PickupDate time.Time // partition key

	PickupLocationKey  int32
	DropoffLocationKey int32
	VendorKey          int32
	PaymentTypeKey     int32
	RateCodeKey        int32
	PickupDateKey      int32 // YYYYMMDD
	DropoffDateKey     int32
	PickupTimeKey      int32 // hour 0-23
	DropoffTimeKey     int32

	// Raw measures
	TripDistance         float64
	PassengerCount       int32
	FareAmount           decimal.Decimal
	Extra                decimal.Decimal
	MTATax               decimal.Decimal
	TipAmount            decimal.Decimal
	TollsAmount          decimal.Decimal
	ImprovementSurcharge decimal.Decimal
	TotalAmount          decimal.Decimal
	CongestionSurcharge  decimal.Decimal
	AirportFeeAmount     decimal.Decimal
	CBDCongestionFee     decimal.Decimal
	TripDurationMinutes  int64

	// Derived measures
	BaseFare         decimal.Decimal
	TotalSurcharges  decimal.Decimal
	TipPercentage    decimal.Decimal
	AvgSpeedMPH      float64
	RevenuePerMile   *decimal.Decimal // nil when distance == 0

	// Flags
	IsAirportTrip       bool
	IsCrossBoroughTrip  bool
	IsCashTrip          bool
	IsLongDistance      bool // >= 10 miles
	IsShortTrip         bool // < 1 mile

	OriginalRowHash string
}

// DimDate is one calendar-day row of dim_date, covering
// [2009-01-01, 2025-12-31] with no gaps.
type DimDate struct {
	DateKey      int32 // YYYYMMDD
	FullDate     time.Time
	Year         int
	Quarter      int
	Month        int
	Day          int
	Weekday      int // 0=Sunday .. 6=Saturday
	IsWeekend    bool
	FiscalYear   int
	FiscalQuarter int
	Season       string // winter, spring, summer, fall
}

// DimTime is one of the 24 hour-of-day rows of dim_time.
type DimTime struct {
	TimeKey       int32 // 0-23
	Hour          int
	IsRushHour    bool // 7-10, 16-19
	IsBusinessHour bool // 9-17 by hour alone; dim_time has no weekday component
	TimeOfDayLabel string // night, morning, afternoon, evening
}

// DimLocation is an enriched ZoneLookup row with a surrogate key.
type DimLocation struct {
	LocationKey      int32
	LocationID       int32
	Borough          string
	Zone             string
	ServiceZone      string
	IsAirport        bool
	IsManhattan      bool
	IsBusinessDistrict bool
	ZoneType         string // airport, residential, commercial, business_district, other
}

type DimVendor struct {
	VendorKey   int32
	VendorID    int32
	Description string
}

type DimPaymentType struct {
	PaymentTypeKey int32
	PaymentType    int32
	Description    string
}

type DimRateCode struct {
	RateCodeKey int32
	RateCodeID  int32
	Description string
}
