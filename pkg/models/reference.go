package models

import "github.com/paulmach/orb"

// ZoneLookup is one row of the 263-row taxi zone lookup.
type ZoneLookup struct {
	LocationID  int32
	Borough     string
	Zone        string
	ServiceZone string
}

// ZoneShape is one zone polygon, reprojected to EPSG:2263 at load time.
type ZoneShape struct {
	ObjectID    int32
	LocationID  int32
	Zone        string
	Borough     string
	ShapeLength float64
	ShapeArea   float64
	Geometry    orb.MultiPolygon // EPSG:2263 (NY State Plane Long Island, US feet)
}

// RateCodeLookup, PaymentTypeLookup, and VendorLookup are the three
// small fixed enumerations reloaded idempotently by the reference loader.
type RateCodeLookup struct {
	RateCodeID int32
	Description string
}

type PaymentTypeLookup struct {
	PaymentType int32
	Description string
}

type VendorLookup struct {
	VendorID    int32
	Description string
}
