// Package transform turns a chunk of normalized
// TripRows into FactTrip rows via the in-memory dimension cache,
// deriving the star schema's measures and flags per trip.
package transform

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nyctaxi/taxietl/internal/dimcache"
	"github.com/nyctaxi/taxietl/pkg/models"
)

const (
	longDistanceMiles = 10.0
	shortTripMiles     = 1.0
)

// Rejection is one TripRow that could not be mapped to a FactTrip,
// always for a referential-integrity reason — a missing pickup/dropoff
// location key is the only rejection path the dimensional transformer has.
type Rejection struct {
	Row    models.TripRow
	Reason string
}

// Transformer converts TripRows to FactTrips using an immutable,
// already-populated dimension cache.
type Transformer struct {
	cache *dimcache.Cache
}

func New(cache *dimcache.Cache) *Transformer {
	return &Transformer{cache: cache}
}

// Chunk converts an entire chunk's rows, returning the fact rows that
// could be built and the rows rejected for missing dimension keys.
func (t *Transformer) Chunk(rows []models.TripRow) ([]models.FactTrip, []Rejection) {
	facts := make([]models.FactTrip, 0, len(rows))
	var rejected []Rejection

	for _, r := range rows {
		fact, reason, ok := t.row(r)
		if !ok {
			rejected = append(rejected, Rejection{Row: r, Reason: reason})
			continue
		}
		facts = append(facts, fact)
	}
	return facts, rejected
}

func (t *Transformer) row(r models.TripRow) (models.FactTrip, string, bool) {
	if r.PULocationID == nil {
		return models.FactTrip{}, "pulocationid is null", false
	}
	if r.DOLocationID == nil {
		return models.FactTrip{}, "dolocationid is null", false
	}

	pickup, ok := t.cache.Location(*r.PULocationID)
	if !ok {
		return models.FactTrip{}, "pickup location not found in dimension cache", false
	}
	dropoff, ok := t.cache.Location(*r.DOLocationID)
	if !ok {
		return models.FactTrip{}, "dropoff location not found in dimension cache", false
	}

	fact := models.FactTrip{
		PickupDate:         r.PickupDatetime.Truncate(24 * time.Hour),
		PickupLocationKey:  pickup.LocationKey,
		DropoffLocationKey: dropoff.LocationKey,
		PickupDateKey:      dateKey(r.PickupDatetime),
		DropoffDateKey:     dateKey(r.DropoffDatetime),
		PickupTimeKey:      int32(r.PickupDatetime.Hour()),
		DropoffTimeKey:     int32(r.DropoffDatetime.Hour()),
		TripDistance:       floatOr(r.TripDistance, 0),
		PassengerCount:     int32Or(r.PassengerCount, 0),
		FareAmount:         decimalOr(r.FareAmount),
		Extra:              decimalOr(r.Extra),
		MTATax:             decimalOr(r.MTATax),
		TipAmount:          decimalOr(r.TipAmount),
		TollsAmount:        decimalOr(r.TollsAmount),
		ImprovementSurcharge: decimalOr(r.ImprovementSurcharge),
		TotalAmount:        decimalOr(r.TotalAmount),
		CongestionSurcharge: decimalOr(r.CongestionSurcharge),
		AirportFeeAmount:   decimalOr(r.AirportFee),
		CBDCongestionFee:   decimalOr(r.CBDCongestionFee),
		OriginalRowHash:    r.RowHash,
	}

	if vk, ok := t.cache.VendorKey(int32Or(r.VendorID, 0)); ok {
		fact.VendorKey = vk
	}
	if pk, ok := t.cache.PaymentTypeKey(int32Or(r.PaymentType, 0)); ok {
		fact.PaymentTypeKey = pk
	}
	if rk, ok := t.cache.RateCodeKey(int32Or(r.RateCodeID, 0)); ok {
		fact.RateCodeKey = rk
	}

	duration := r.DropoffDatetime.Sub(r.PickupDatetime)
	fact.TripDurationMinutes = int64(duration.Minutes())

	fact.BaseFare = fact.FareAmount.Add(fact.Extra)
	fact.TotalSurcharges = fact.MTATax.Add(fact.ImprovementSurcharge).Add(fact.CongestionSurcharge).Add(fact.AirportFeeAmount).Add(fact.CBDCongestionFee)

	if fact.FareAmount.IsPositive() {
		fact.TipPercentage = fact.TipAmount.Div(fact.FareAmount).Mul(decimal.NewFromInt(100))
	} else {
		fact.TipPercentage = decimal.Zero
	}

	durationHours := duration.Hours()
	if durationHours > 0 {
		fact.AvgSpeedMPH = fact.TripDistance / durationHours
	}

	if fact.TripDistance > 0 {
		rpm := decimal.NewFromFloat(fact.TripDistance)
		v := fact.TotalAmount.Div(rpm)
		fact.RevenuePerMile = &v
	}

	fact.IsAirportTrip = pickup.IsAirport || dropoff.IsAirport
	fact.IsCrossBoroughTrip = pickup.Borough != dropoff.Borough
	fact.IsCashTrip = int32Or(r.PaymentType, -1) == 2
	fact.IsLongDistance = fact.TripDistance >= longDistanceMiles
	fact.IsShortTrip = fact.TripDistance < shortTripMiles && !math.IsNaN(fact.TripDistance)

	return fact, "", true
}

func dateKey(t time.Time) int32 {
	return int32(t.Year())*10000 + int32(t.Month())*100 + int32(t.Day())
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func int32Or(v *int32, def int32) int32 {
	if v == nil {
		return def
	}
	return *v
}

func decimalOr(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}
