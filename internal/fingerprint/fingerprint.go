// Package fingerprint computes the deterministic row fingerprint that
// is the normalized trip table's primary key, generalizing the
// teacher's single-string cache-key hash to a canonicalized,
// sorted-column row.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nyctaxi/taxietl/pkg/models"
)

// floatFractionalDigits is the fixed precision pinned for the
// lifetime of this fingerprint's wire format — changing it would
// silently re-fingerprint every historical row (see DESIGN.md's Open
// Question decision).
const floatFractionalDigits = 10

// timestampLayout is whole-second ISO-8601 UTC, truncating (not
// rounding) any sub-second component so vintages with microsecond
// timestamps fingerprint identically to vintages with second
// timestamps for the same logical instant.
const timestampLayout = "2006-01-02T15:04:05Z"

// sortedColumns is computed once: models.ColumnNames sorted
// lexicographically, the order the canonicalizer walks in.
var sortedColumns = sortedCopy(models.ColumnNames)

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// Compute returns the 64-character lowercase hex SHA-256 digest of
// row's canonicalized column values. It is a pure
// function of row's columns: identical logical rows — including ones
// missing an optional column that a historical vintage never had —
// produce identical digests.
func Compute(row models.TripRow) string {
	values := columnValues(row)

	var sb strings.Builder
	for i, col := range sortedColumns {
		if i > 0 {
			sb.WriteByte('\x1f') // unit separator; never appears in canonicalized values
		}
		sb.WriteString(values[col])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// columnValues maps every column in models.ColumnNames to its
// canonicalized textual form: nulls become "", floats use fixed
// 10-digit precision, timestamps truncate to whole seconds, and
// everything else uses Go's default textual form.
func columnValues(row models.TripRow) map[string]string {
	v := map[string]string{
		"vendorid":              intOrEmpty(row.VendorID),
		"pickup_datetime":       formatTimestamp(row.PickupDatetime),
		"dropoff_datetime":      formatTimestamp(row.DropoffDatetime),
		"passenger_count":       intOrEmpty(row.PassengerCount),
		"trip_distance":         floatOrEmpty(row.TripDistance),
		"ratecodeid":            intOrEmpty(row.RateCodeID),
		"store_and_fwd_flag":    stringOrEmpty(row.StoreAndFwdFlag),
		"pulocationid":          intOrEmpty(row.PULocationID),
		"dolocationid":          intOrEmpty(row.DOLocationID),
		"payment_type":          intOrEmpty(row.PaymentType),
		"fare_amount":           decimalOrEmpty(row.FareAmount),
		"extra":                 decimalOrEmpty(row.Extra),
		"mta_tax":               decimalOrEmpty(row.MTATax),
		"tip_amount":            decimalOrEmpty(row.TipAmount),
		"tolls_amount":          decimalOrEmpty(row.TollsAmount),
		"improvement_surcharge": decimalOrEmpty(row.ImprovementSurcharge),
		"total_amount":          decimalOrEmpty(row.TotalAmount),
		"congestion_surcharge":  decimalOrEmpty(row.CongestionSurcharge),
		"airport_fee":           decimalOrEmpty(row.AirportFee),
		"cbd_congestion_fee":    decimalOrEmpty(row.CBDCongestionFee),
	}
	return v
}

func intOrEmpty(v *int32) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(int64(*v), 10)
}

func floatOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', floatFractionalDigits, 64)
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// decimalOrEmpty renders a money field as fixed 10-fractional-digit
// text, same rule as floatOrEmpty, so the canonicalization contract
// is identical whether a historical source encoded the value as a
// float64 column or (as here) a decimal.Decimal.
func decimalOrEmpty(v *decimal.Decimal) string {
	if v == nil {
		return ""
	}
	f, _ := v.Float64()
	return strconv.FormatFloat(f, 'f', floatFractionalDigits, 64)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Truncate(time.Second).Format(timestampLayout)
}
