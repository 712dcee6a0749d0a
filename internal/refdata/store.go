// Package refdata implements the reference loader: zone lookup
// CSV, zone shapefile (reprojected to EPSG:2263), and the small fixed
// rate/vendor/payment enumerations, all loaded full-refresh-on-conflict.
// It also seeds the star-schema dimension tables that internal/dimcache
// reads at process start, since every dimension here derives
// directly from a table this package loads.
package refdata

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/nyctaxi/taxietl/internal/errs"
	"github.com/nyctaxi/taxietl/pkg/models"
)

// Store persists reference data loaded by this package into the
// database, via sqlx the same way every other row-at-a-time CRUD
// path in this repository does.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// UpsertZoneLookup full-refreshes taxi_zone_lookup: existing rows
// with the same locationid are overwritten.
func (s *Store) UpsertZoneLookup(ctx context.Context, rows []models.ZoneLookup) error {
	const q = `
		INSERT INTO taxi_zone_lookup (locationid, borough, zone, service_zone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (locationid) DO UPDATE SET
			borough = EXCLUDED.borough,
			zone = EXCLUDED.zone,
			service_zone = EXCLUDED.service_zone`

	for _, r := range rows {
		if _, err := s.db.ExecContext(ctx, q, r.LocationID, r.Borough, r.Zone, r.ServiceZone); err != nil {
			return errs.New(errs.Reference, fmt.Errorf("upsert zone lookup %d: %w", r.LocationID, err))
		}
	}
	return nil
}

// UpsertZoneShapes full-refreshes taxi_zone_shapes, encoding the
// reprojected geometry as WKT for ST_GeomFromText.
func (s *Store) UpsertZoneShapes(ctx context.Context, shapes []models.ZoneShape) error {
	const q = `
		INSERT INTO taxi_zone_shapes (objectid, locationid, zone, borough, shape_leng, shape_area, geometry)
		VALUES ($1, $2, $3, $4, $5, $6, ST_GeomFromText($7, 2263))
		ON CONFLICT (objectid) DO UPDATE SET
			locationid = EXCLUDED.locationid,
			zone = EXCLUDED.zone,
			borough = EXCLUDED.borough,
			shape_leng = EXCLUDED.shape_leng,
			shape_area = EXCLUDED.shape_area,
			geometry = EXCLUDED.geometry`

	for _, sh := range shapes {
		geom := wkt.MarshalString(sh.Geometry)
		if _, err := s.db.ExecContext(ctx, q, sh.ObjectID, sh.LocationID, sh.Zone, sh.Borough, sh.ShapeLength, sh.ShapeArea, geom); err != nil {
			return errs.New(errs.Reference, fmt.Errorf("upsert zone shape %d: %w", sh.ObjectID, err))
		}
	}
	return nil
}

// rateCodes, paymentTypes, and vendors are the TLC's published fixed
// enumerations, re-seeded idempotently on every bootstrap per
// reseed requirement for rows derived from the lookup tables.
var rateCodes = []models.RateCodeLookup{
	{RateCodeID: 1, Description: "Standard rate"},
	{RateCodeID: 2, Description: "JFK"},
	{RateCodeID: 3, Description: "Newark"},
	{RateCodeID: 4, Description: "Nassau or Westchester"},
	{RateCodeID: 5, Description: "Negotiated fare"},
	{RateCodeID: 6, Description: "Group ride"},
	{RateCodeID: 99, Description: "Unknown"},
}

var paymentTypes = []models.PaymentTypeLookup{
	{PaymentType: 0, Description: "Flex Fare trip"},
	{PaymentType: 1, Description: "Credit card"},
	{PaymentType: 2, Description: "Cash"},
	{PaymentType: 3, Description: "No charge"},
	{PaymentType: 4, Description: "Dispute"},
	{PaymentType: 5, Description: "Unknown"},
	{PaymentType: 6, Description: "Voided trip"},
}

var vendors = []models.VendorLookup{
	{VendorID: 1, Description: "Creative Mobile Technologies, LLC"},
	{VendorID: 2, Description: "VeriFone Inc."},
	{VendorID: 6, Description: "Myle Technologies Inc."},
	{VendorID: 7, Description: "Helix"},
}

func (s *Store) ReseedLookups(ctx context.Context) error {
	for _, rc := range rateCodes {
		const q = `INSERT INTO rate_code_lookup (ratecodeid, description) VALUES ($1, $2)
			ON CONFLICT (ratecodeid) DO UPDATE SET description = EXCLUDED.description`
		if _, err := s.db.ExecContext(ctx, q, rc.RateCodeID, rc.Description); err != nil {
			return errs.New(errs.Reference, fmt.Errorf("reseed rate_code_lookup: %w", err))
		}
	}
	for _, pt := range paymentTypes {
		const q = `INSERT INTO payment_type_lookup (payment_type, description) VALUES ($1, $2)
			ON CONFLICT (payment_type) DO UPDATE SET description = EXCLUDED.description`
		if _, err := s.db.ExecContext(ctx, q, pt.PaymentType, pt.Description); err != nil {
			return errs.New(errs.Reference, fmt.Errorf("reseed payment_type_lookup: %w", err))
		}
	}
	for _, v := range vendors {
		const q = `INSERT INTO vendor_lookup (vendorid, description) VALUES ($1, $2)
			ON CONFLICT (vendorid) DO UPDATE SET description = EXCLUDED.description`
		if _, err := s.db.ExecContext(ctx, q, v.VendorID, v.Description); err != nil {
			return errs.New(errs.Reference, fmt.Errorf("reseed vendor_lookup: %w", err))
		}
	}
	return nil
}
