package refdata

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestReprojectToEPSG2263IsDeterministic(t *testing.T) {
	mp := orb.MultiPolygon{
		orb.Polygon{orb.Ring{
			{-74.0, 40.7}, {-73.9, 40.7}, {-73.9, 40.8}, {-74.0, 40.7},
		}},
	}

	a := ReprojectToEPSG2263(mp)
	b := ReprojectToEPSG2263(mp)
	assert.Equal(t, a, b)
}

func TestReprojectToEPSG2263ProducesStatePlaneMagnitudes(t *testing.T) {
	mp := orb.MultiPolygon{
		orb.Polygon{orb.Ring{{-74.0, 40.7}}},
	}
	out := ReprojectToEPSG2263(mp)
	pt := out[0][0][0]

	// NY State Plane Long Island coordinates for NYC fall in the
	// hundreds-of-thousands to low-millions of feet range.
	assert.True(t, math.Abs(pt[0]) > 1000 && math.Abs(pt[0]) < 5_000_000)
	assert.True(t, math.Abs(pt[1]) > 1000 && math.Abs(pt[1]) < 5_000_000)
}
