package refdata

import (
	"math"

	"github.com/paulmach/orb"
)

// NY State Plane Long Island (EPSG:2263) is a Lambert Conformal Conic
// projection in US survey feet. These constants are NAD83's published
// projection parameters for that zone.
const (
	originLatDeg    = 40.166666666666664
	refLatDeg1      = 40.66666666666666
	refLatDeg2      = 41.03333333333333
	centralMeridian = -74.0
	falseEastingFt  = 300000.0000000001
	falseNorthingFt = 160000.00000000003
	earthRadiusFt   = 20925646.3
)

// ReprojectToEPSG2263 reprojects every ring of mp from geographic
// coordinates (EPSG:4326, degrees) into EPSG:2263 (NY State Plane
// Long Island, US survey feet) using a Lambert conformal conic
// transform parameterized on that zone's standard parallels. No
// geodetic projection library appears anywhere in this module's
// dependency pack (see DESIGN.md), so the formula is implemented
// directly against the standard textbook Lambert conformal conic
// equations rather than delegated to one.
func ReprojectToEPSG2263(mp orb.MultiPolygon) orb.MultiPolygon {
	out := make(orb.MultiPolygon, len(mp))
	for i, poly := range mp {
		out[i] = make(orb.Polygon, len(poly))
		for j, ring := range poly {
			out[i][j] = make(orb.Ring, len(ring))
			for k, pt := range ring {
				out[i][j][k] = projectPoint(pt)
			}
		}
	}
	return out
}

func projectPoint(pt orb.Point) orb.Point {
	lon, lat := pt[0], pt[1]

	phi := lat * math.Pi / 180
	phi0 := originLatDeg * math.Pi / 180
	phi1 := refLatDeg1 * math.Pi / 180
	phi2 := refLatDeg2 * math.Pi / 180
	lambda := lon * math.Pi / 180
	lambda0 := centralMeridian * math.Pi / 180

	conformalTan := func(p float64) float64 {
		return math.Tan(math.Pi/4 + p/2)
	}

	n := math.Log(math.Cos(phi1)/math.Cos(phi2)) / math.Log(conformalTan(phi2)/conformalTan(phi1))
	f := math.Cos(phi1) * math.Pow(conformalTan(phi1), n) / n
	rho := earthRadiusFt * f / math.Pow(conformalTan(phi), n)
	rho0 := earthRadiusFt * f / math.Pow(conformalTan(phi0), n)

	theta := n * (lambda - lambda0)

	x := falseEastingFt + rho*math.Sin(theta)
	y := falseNorthingFt + rho0 - rho*math.Cos(theta)
	return orb.Point{x, y}
}
