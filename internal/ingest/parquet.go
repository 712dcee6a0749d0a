// Package ingest implements the chunk loader that streams a
// monthly parquet file into the normalized trips table, computing
// fingerprints and routing type-invalid rows to the invalid table.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/shopspring/decimal"

	"github.com/nyctaxi/taxietl/internal/errs"
	"github.com/nyctaxi/taxietl/internal/fingerprint"
	"github.com/nyctaxi/taxietl/pkg/models"
)

// sourceColumns maps the TLC parquet schema's mixed-case column names
// (which vary slightly across vintages: VendorID vs vendor_id,
// tpep_pickup_datetime vs pickup_datetime) to the normalized table's
// lowercase column name. A column absent from a given file's schema
// is simply never looked up and the TripRow field stays nil — this is
// the "align to the target superset" rule from models.ColumnNames.
var sourceColumns = map[string]string{
	"vendorid":               "vendorid",
	"vendor_id":              "vendorid",
	"tpep_pickup_datetime":   "pickup_datetime",
	"pickup_datetime":        "pickup_datetime",
	"tpep_dropoff_datetime":  "dropoff_datetime",
	"dropoff_datetime":       "dropoff_datetime",
	"passenger_count":        "passenger_count",
	"trip_distance":          "trip_distance",
	"ratecodeid":             "ratecodeid",
	"rate_code_id":           "ratecodeid",
	"store_and_fwd_flag":     "store_and_fwd_flag",
	"pulocationid":           "pulocationid",
	"dolocationid":           "dolocationid",
	"payment_type":           "payment_type",
	"fare_amount":            "fare_amount",
	"extra":                  "extra",
	"mta_tax":                "mta_tax",
	"tip_amount":             "tip_amount",
	"tolls_amount":           "tolls_amount",
	"improvement_surcharge":  "improvement_surcharge",
	"total_amount":           "total_amount",
	"congestion_surcharge":   "congestion_surcharge",
	"airport_fee":            "airport_fee",
	"cbd_congestion_fee":     "cbd_congestion_fee",
}

// ChunkSource streams a single parquet file in row batches of
// approximately chunkSize rows, each batch becoming one Chunk.
type ChunkSource struct {
	sourceFile   string
	reader       *file.Reader
	recordReader pqarrow.RecordReader
	chunkNumber  int
}

// Chunk is one unit of work for the loader: a batch of already
// type-cast TripRows plus any rows rejected during casting.
type Chunk struct {
	Number  int
	Rows    []models.TripRow
	Invalid []models.InvalidTripRow
}

func NewChunkSource(ctx context.Context, path string, chunkSize int) (*ChunkSource, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errs.New(errs.Network, fmt.Errorf("open parquet %s: %w", path, err))
	}

	fileReader, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{
		BatchSize: int64(chunkSize),
	}, memory.DefaultAllocator)
	if err != nil {
		rdr.Close()
		return nil, errs.New(errs.Network, fmt.Errorf("open arrow reader for %s: %w", path, err))
	}

	recordReader, err := fileReader.GetRecordReader(ctx, nil, nil)
	if err != nil {
		rdr.Close()
		return nil, errs.New(errs.Network, fmt.Errorf("get record reader for %s: %w", path, err))
	}

	return &ChunkSource{
		sourceFile:   path,
		reader:       rdr,
		recordReader: recordReader,
	}, nil
}

func (c *ChunkSource) Close() {
	c.recordReader.Release()
	c.reader.Close()
}

// Next returns the next chunk, or ok=false once the file is exhausted.
func (c *ChunkSource) Next() (Chunk, bool, error) {
	if !c.recordReader.Next() {
		if err := c.recordReader.Err(); err != nil {
			return Chunk{}, false, errs.New(errs.ChunkType, fmt.Errorf("read parquet batch: %w", err))
		}
		return Chunk{}, false, nil
	}
	rec := c.recordReader.Record()
	defer rec.Release()

	c.chunkNumber++
	chunk := Chunk{Number: c.chunkNumber}

	colIdx := make(map[string]int, len(sourceColumns))
	schema := rec.Schema()
	for i := 0; i < schema.NumFields(); i++ {
		name := schema.Field(i).Name
		if target, ok := sourceColumns[strings.ToLower(name)]; ok {
			colIdx[target] = i
		}
	}

	numRows := int(rec.NumRows())
	for row := 0; row < numRows; row++ {
		tripRow, raw, err := buildTripRow(rec, colIdx, row)
		if err != nil {
			chunk.Invalid = append(chunk.Invalid, models.InvalidTripRow{
				FailedAt:       time.Now().UTC(),
				ErrorCategory:  models.ErrorCategoryType,
				ErrorMessage:   err.Error(),
				SourceFile:     c.sourceFile,
				ChunkNumber:    c.chunkNumber,
				RowNumberInRow: row,
				RawData:        raw,
			})
			continue
		}
		tripRow.SourceFile = c.sourceFile
		tripRow.ChunkNumber = c.chunkNumber
		tripRow.RowNumberInRow = row
		tripRow.RowHash = fingerprint.Compute(tripRow)
		chunk.Rows = append(chunk.Rows, tripRow)
	}

	return chunk, true, nil
}

// buildTripRow casts one row of the batch into a TripRow. Any cast
// failure aborts just this row (not the chunk) and returns the raw
// column values JSON-encoded for forensic replay.
func buildTripRow(rec arrow.Record, colIdx map[string]int, row int) (models.TripRow, []byte, error) {
	raw := make(map[string]any, len(colIdx))
	var tr models.TripRow

	for name, idx := range colIdx {
		raw[name] = cellToAny(rec.Column(idx), row)
	}

	var err error
	if pickup, ok, perr := timestampValue(rec, colIdx, "pickup_datetime", row); perr != nil {
		return tr, rawJSON(raw), fmt.Errorf("pickup_datetime: %w", perr)
	} else if ok {
		tr.PickupDatetime = pickup
	}
	if dropoff, ok, perr := timestampValue(rec, colIdx, "dropoff_datetime", row); perr != nil {
		return tr, rawJSON(raw), fmt.Errorf("dropoff_datetime: %w", perr)
	} else if ok {
		tr.DropoffDatetime = dropoff
	}

	if tr.VendorID, err = intPtr(rec, colIdx, "vendorid", row); err != nil {
		return tr, rawJSON(raw), fmt.Errorf("vendorid: %w", err)
	}
	if tr.PassengerCount, err = intPtr(rec, colIdx, "passenger_count", row); err != nil {
		return tr, rawJSON(raw), fmt.Errorf("passenger_count: %w", err)
	}
	if tr.TripDistance, err = floatPtr(rec, colIdx, "trip_distance", row); err != nil {
		return tr, rawJSON(raw), fmt.Errorf("trip_distance: %w", err)
	}
	if tr.RateCodeID, err = intPtr(rec, colIdx, "ratecodeid", row); err != nil {
		return tr, rawJSON(raw), fmt.Errorf("ratecodeid: %w", err)
	}
	if tr.StoreAndFwdFlag, err = stringPtr(rec, colIdx, "store_and_fwd_flag", row); err != nil {
		return tr, rawJSON(raw), fmt.Errorf("store_and_fwd_flag: %w", err)
	}
	if tr.PULocationID, err = intPtr(rec, colIdx, "pulocationid", row); err != nil {
		return tr, rawJSON(raw), fmt.Errorf("pulocationid: %w", err)
	}
	if tr.DOLocationID, err = intPtr(rec, colIdx, "dolocationid", row); err != nil {
		return tr, rawJSON(raw), fmt.Errorf("dolocationid: %w", err)
	}
	if tr.PaymentType, err = intPtr(rec, colIdx, "payment_type", row); err != nil {
		return tr, rawJSON(raw), fmt.Errorf("payment_type: %w", err)
	}

	for _, m := range []struct {
		col string
		dst **decimal.Decimal
	}{
		{"fare_amount", &tr.FareAmount},
		{"extra", &tr.Extra},
		{"mta_tax", &tr.MTATax},
		{"tip_amount", &tr.TipAmount},
		{"tolls_amount", &tr.TollsAmount},
		{"improvement_surcharge", &tr.ImprovementSurcharge},
		{"total_amount", &tr.TotalAmount},
		{"congestion_surcharge", &tr.CongestionSurcharge},
		{"airport_fee", &tr.AirportFee},
		{"cbd_congestion_fee", &tr.CBDCongestionFee},
	} {
		v, derr := decimalPtr(rec, colIdx, m.col, row)
		if derr != nil {
			return tr, rawJSON(raw), fmt.Errorf("%s: %w", m.col, derr)
		}
		*m.dst = v
	}

	if tr.PickupDatetime.IsZero() {
		return tr, rawJSON(raw), fmt.Errorf("pickup_datetime is required and missing")
	}
	if tr.DropoffDatetime.IsZero() {
		return tr, rawJSON(raw), fmt.Errorf("dropoff_datetime is required and missing")
	}

	return tr, nil, nil
}

func rawJSON(v map[string]any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return b
}

func cellToAny(col arrow.Array, row int) any {
	if col.IsNull(row) {
		return nil
	}
	switch a := col.(type) {
	case *array.Int8:
		return a.Value(row)
	case *array.Int16:
		return a.Value(row)
	case *array.Int32:
		return a.Value(row)
	case *array.Int64:
		return a.Value(row)
	case *array.Float32:
		return a.Value(row)
	case *array.Float64:
		return a.Value(row)
	case *array.String:
		return a.Value(row)
	case *array.Timestamp:
		return a.Value(row).ToTime(arrow.Nanosecond).Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", col)
	}
}

// asFloat64 extracts a float64 from any numeric arrow array, the
// common denominator across the int/double variance between TLC
// parquet vintages.
func asFloat64(col arrow.Array, row int) (float64, bool, error) {
	if col.IsNull(row) {
		return 0, false, nil
	}
	switch a := col.(type) {
	case *array.Int8:
		return float64(a.Value(row)), true, nil
	case *array.Int16:
		return float64(a.Value(row)), true, nil
	case *array.Int32:
		return float64(a.Value(row)), true, nil
	case *array.Int64:
		return float64(a.Value(row)), true, nil
	case *array.Float32:
		return float64(a.Value(row)), true, nil
	case *array.Float64:
		return a.Value(row), true, nil
	default:
		return 0, false, fmt.Errorf("unsupported numeric type %s", col.DataType())
	}
}

func intPtr(rec arrow.Record, colIdx map[string]int, name string, row int) (*int32, error) {
	idx, ok := colIdx[name]
	if !ok {
		return nil, nil
	}
	f, present, err := asFloat64(rec.Column(idx), row)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	if f != float64(int64(f)) {
		return nil, fmt.Errorf("expected integral value, got %v", f)
	}
	v := int32(f)
	return &v, nil
}

func floatPtr(rec arrow.Record, colIdx map[string]int, name string, row int) (*float64, error) {
	idx, ok := colIdx[name]
	if !ok {
		return nil, nil
	}
	f, present, err := asFloat64(rec.Column(idx), row)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	return &f, nil
}

func decimalPtr(rec arrow.Record, colIdx map[string]int, name string, row int) (*decimal.Decimal, error) {
	idx, ok := colIdx[name]
	if !ok {
		return nil, nil
	}
	f, present, err := asFloat64(rec.Column(idx), row)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	d := decimal.NewFromFloat(f)
	return &d, nil
}

func stringPtr(rec arrow.Record, colIdx map[string]int, name string, row int) (*string, error) {
	idx, ok := colIdx[name]
	if !ok {
		return nil, nil
	}
	col := rec.Column(idx)
	if col.IsNull(row) {
		return nil, nil
	}
	s, ok := col.(*array.String)
	if !ok {
		return nil, fmt.Errorf("expected string, got %s", col.DataType())
	}
	v := s.Value(row)
	return &v, nil
}

func timestampValue(rec arrow.Record, colIdx map[string]int, name string, row int) (time.Time, bool, error) {
	idx, ok := colIdx[name]
	if !ok {
		return time.Time{}, false, nil
	}
	col := rec.Column(idx)
	if col.IsNull(row) {
		return time.Time{}, false, nil
	}
	ts, ok := col.(*array.Timestamp)
	if !ok {
		return time.Time{}, false, fmt.Errorf("expected timestamp, got %s", col.DataType())
	}
	unit := arrow.Microsecond
	if dt, ok := ts.DataType().(*arrow.TimestampType); ok {
		unit = dt.Unit
	}
	return ts.Value(row).ToTime(unit).UTC(), true, nil
}
