// Package dimcache builds a read-only, in-memory snapshot of
// the star-schema dimension tables, built once per process after
// internal/refdata has populated them, and consulted by
// internal/transform for O(1) surrogate-key lookups.
package dimcache

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nyctaxi/taxietl/internal/errs"
)

// LocationEntry is what the transformer needs per pickup/dropoff
// zone: the surrogate key plus the flags it folds into FactTrip.
type LocationEntry struct {
	LocationKey int32
	Borough     string
	Zone        string
	IsAirport   bool
	IsManhattan bool
}

// Cache is immutable after Build returns; every method is a plain map
// read, safe for concurrent use by value (it holds no mutex because
// nothing mutates it after construction).
type Cache struct {
	locations    map[int32]LocationEntry
	vendors      map[int32]int32
	paymentTypes map[int32]int32
	rateCodes    map[int32]int32
}

// Location looks up a pickup/dropoff zone by its natural locationid.
// A miss means the row is not insertable into the fact table
// and must be quarantined by the caller, not defaulted.
func (c *Cache) Location(locationID int32) (LocationEntry, bool) {
	e, ok := c.locations[locationID]
	return e, ok
}

func (c *Cache) VendorKey(vendorID int32) (int32, bool) {
	k, ok := c.vendors[vendorID]
	return k, ok
}

func (c *Cache) PaymentTypeKey(paymentType int32) (int32, bool) {
	k, ok := c.paymentTypes[paymentType]
	return k, ok
}

func (c *Cache) RateCodeKey(rateCodeID int32) (int32, bool) {
	k, ok := c.rateCodes[rateCodeID]
	return k, ok
}

// Build issues one bulk SELECT per dimension and materializes the
// four lookup maps. Must run after internal/refdata has populated the
// dimension tables are already populated.
func Build(ctx context.Context, db *sqlx.DB) (*Cache, error) {
	c := &Cache{
		locations:    make(map[int32]LocationEntry),
		vendors:      make(map[int32]int32),
		paymentTypes: make(map[int32]int32),
		rateCodes:    make(map[int32]int32),
	}

	if err := c.loadLocations(ctx, db); err != nil {
		return nil, err
	}
	if err := c.loadVendors(ctx, db); err != nil {
		return nil, err
	}
	if err := c.loadPaymentTypes(ctx, db); err != nil {
		return nil, err
	}
	if err := c.loadRateCodes(ctx, db); err != nil {
		return nil, err
	}
	return c, nil
}

type locationRow struct {
	LocationKey int32  `db:"location_key"`
	LocationID  int32  `db:"locationid"`
	Borough     string `db:"borough"`
	Zone        string `db:"zone"`
	IsAirport   bool   `db:"is_airport"`
	IsManhattan bool   `db:"is_manhattan"`
}

func (c *Cache) loadLocations(ctx context.Context, db *sqlx.DB) error {
	var rows []locationRow
	if err := db.SelectContext(ctx, &rows, `SELECT location_key, locationid, borough, zone, is_airport, is_manhattan FROM dim_locations`); err != nil {
		return errs.New(errs.Schema, fmt.Errorf("load dim_locations: %w", err))
	}
	for _, r := range rows {
		c.locations[r.LocationID] = LocationEntry{
			LocationKey: r.LocationKey,
			Borough:     r.Borough,
			Zone:        r.Zone,
			IsAirport:   r.IsAirport,
			IsManhattan: r.IsManhattan,
		}
	}
	return nil
}

type keyPair struct {
	NaturalKey int32 `db:"natural_key"`
	SurrogateKey int32 `db:"surrogate_key"`
}

func (c *Cache) loadVendors(ctx context.Context, db *sqlx.DB) error {
	var rows []keyPair
	if err := db.SelectContext(ctx, &rows, `SELECT vendorid AS natural_key, vendor_key AS surrogate_key FROM dim_vendor`); err != nil {
		return errs.New(errs.Schema, fmt.Errorf("load dim_vendor: %w", err))
	}
	for _, r := range rows {
		c.vendors[r.NaturalKey] = r.SurrogateKey
	}
	return nil
}

func (c *Cache) loadPaymentTypes(ctx context.Context, db *sqlx.DB) error {
	var rows []keyPair
	if err := db.SelectContext(ctx, &rows, `SELECT payment_type AS natural_key, payment_type_key AS surrogate_key FROM dim_payment_type`); err != nil {
		return errs.New(errs.Schema, fmt.Errorf("load dim_payment_type: %w", err))
	}
	for _, r := range rows {
		c.paymentTypes[r.NaturalKey] = r.SurrogateKey
	}
	return nil
}

func (c *Cache) loadRateCodes(ctx context.Context, db *sqlx.DB) error {
	var rows []keyPair
	if err := db.SelectContext(ctx, &rows, `SELECT ratecodeid AS natural_key, rate_code_key AS surrogate_key FROM dim_rate_code`); err != nil {
		return errs.New(errs.Schema, fmt.Errorf("load dim_rate_code: %w", err))
	}
	for _, r := range rows {
		c.rateCodes[r.NaturalKey] = r.SurrogateKey
	}
	return nil
}

// NewForTesting builds a Cache directly from in-memory maps, bypassing
// the database — used by internal/transform's tests so they don't
// need a live Postgres to exercise dimension lookups.
func NewForTesting(locations map[int32]LocationEntry, vendors, paymentTypes, rateCodes map[int32]int32) *Cache {
	if locations == nil {
		locations = map[int32]LocationEntry{}
	}
	if vendors == nil {
		vendors = map[int32]int32{}
	}
	if paymentTypes == nil {
		paymentTypes = map[int32]int32{}
	}
	if rateCodes == nil {
		rateCodes = map[int32]int32{}
	}
	return &Cache{locations: locations, vendors: vendors, paymentTypes: paymentTypes, rateCodes: rateCodes}
}
