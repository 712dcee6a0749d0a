// Package models holds the entities shared across the ingestion,
// transform, and quality-accounting layers: one raw trip row, one
// rejected row, the zone reference data, and the dimensional fact row.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TripRow is one normalized yellow-taxi trip, column-for-column with
// the `yellow_taxi_trips` table. Optional columns that a given source
// vintage omits (CBDCongestionFee, AirportFee) are nil, never dropped.
type TripRow struct {
	RowHash              string // 64-hex sha256, primary key
	VendorID             *int32
	PickupDatetime       time.Time
	DropoffDatetime      time.Time
	PassengerCount       *int32
	TripDistance         *float64
	RateCodeID           *int32
	StoreAndFwdFlag      *string
	PULocationID         *int32
	DOLocationID         *int32
	PaymentType          *int32
	FareAmount           *decimal.Decimal
	Extra                *decimal.Decimal
	MTATax               *decimal.Decimal
	TipAmount            *decimal.Decimal
	TollsAmount          *decimal.Decimal
	ImprovementSurcharge *decimal.Decimal
	TotalAmount          *decimal.Decimal
	CongestionSurcharge  *decimal.Decimal
	AirportFee           *decimal.Decimal
	CBDCongestionFee     *decimal.Decimal

	// SourceFile and columns below are not persisted in the normalized
	// schema; they travel with the row only until the chunk loader has
	// decided inserted/duplicate/invalid.
	SourceFile     string
	ChunkNumber    int
	RowNumberInRow int
}

// ColumnNames is the canonical, lowercase, sorted-for-fingerprinting
// column set of TripRow — the "target schema superset" that every
// historical vintage is aligned to before fingerprinting. Order here
// is irrelevant to the fingerprint (which sorts
// independently) but this is the single source of truth for "what
// columns exist", used both by the chunk loader's schema-drift
// alignment and by the fingerprint canonicalizer.
var ColumnNames = []string{
	"airport_fee",
	"cbd_congestion_fee",
	"congestion_surcharge",
	"dolocationid",
	"dropoff_datetime",
	"extra",
	"fare_amount",
	"improvement_surcharge",
	"mta_tax",
	"passenger_count",
	"payment_type",
	"pickup_datetime",
	"pulocationid",
	"ratecodeid",
	"store_and_fwd_flag",
	"tip_amount",
	"tolls_amount",
	"total_amount",
	"trip_distance",
	"vendorid",
}

// ErrorCategory classifies why a row was rejected into the invalid table.
type ErrorCategory string

const (
	ErrorCategoryPrimaryKey   ErrorCategory = "primary_key_violation"
	ErrorCategoryConstraint   ErrorCategory = "constraint_violation"
	ErrorCategoryType         ErrorCategory = "type_error"
	ErrorCategoryReferential  ErrorCategory = "referential_integrity"
	ErrorCategoryOther        ErrorCategory = "other"
)

// InvalidTripRow is a TripRow that failed insertion into the normalized
// or fact table, carried forward with forensic context.
type InvalidTripRow struct {
	InvalidID      int64
	FailedAt       time.Time
	ErrorCategory  ErrorCategory
	ErrorMessage   string
	SourceFile     string
	ChunkNumber    int
	RowNumberInRow int
	Row            TripRow
	RawData        []byte // JSON-encoded original record, for replay
}
