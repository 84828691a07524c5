package gridmath

import (
	"fmt"
	"math"
)

// Projection converts between WGS84 geographic coordinates and a grid's
// native planar coordinates. Geographic grids use [Geographic]; projected
// grids (3DEP elevation on EPSG:5070) use their forward transform so the
// generic windowing logic stays coordinate-system agnostic.
type Projection interface {
	// Forward maps (lat, lon) in degrees to native (x, y).
	Forward(lat, lon float64) (x, y float64)
	EPSG() int
}

// Geographic is the identity projection, EPSG:4326.
type Geographic struct{}

func (Geographic) Forward(lat, lon float64) (x, y float64) { return lon, lat }
func (Geographic) EPSG() int                               { return 4326 }

// ConusAlbers is the NAD83 / CONUS Albers Equal Area projection, EPSG:5070,
// used by the 3DEP elevation grids.
//
// Parameters per the EPSG registry: standard parallels 29.5 and 45.5,
// latitude of origin 23, central meridian -96, GRS80 ellipsoid.
type ConusAlbers struct{}

func (ConusAlbers) EPSG() int { return 5070 }

// GRS80 ellipsoid.
const (
	grs80A  = 6378137.0
	grs80F  = 1 / 298.257222101
	grs80E2 = grs80F * (2 - grs80F)
)

func (ConusAlbers) Forward(lat, lon float64) (x, y float64) {
	const (
		phi1 = 29.5 * math.Pi / 180
		phi2 = 45.5 * math.Pi / 180
		phi0 = 23.0 * math.Pi / 180
		lam0 = -96.0 * math.Pi / 180
	)
	phi := lat * math.Pi / 180
	lam := lon * math.Pi / 180

	e := math.Sqrt(grs80E2)
	m := func(p float64) float64 {
		s := math.Sin(p)
		return math.Cos(p) / math.Sqrt(1-grs80E2*s*s)
	}
	q := func(p float64) float64 {
		s := math.Sin(p)
		return (1 - grs80E2) * (s/(1-grs80E2*s*s) - (1/(2*e))*math.Log((1-e*s)/(1+e*s)))
	}

	m1, m2 := m(phi1), m(phi2)
	q0, q1, q2 := q(phi0), q(phi1), q(phi2)
	n := (m1*m1 - m2*m2) / (q2 - q1)
	cc := m1*m1 + n*q1
	rho0 := grs80A * math.Sqrt(cc-n*q0) / n

	rho := grs80A * math.Sqrt(cc-n*q(phi)) / n
	theta := n * (lam - lam0)
	x = rho * math.Sin(theta)
	y = rho0 - rho*math.Cos(theta)
	return x, y
}

// ProjectionFor returns the projection implementation for an EPSG code.
func ProjectionFor(epsg int) (Projection, error) {
	switch epsg {
	case 0, 4326:
		return Geographic{}, nil
	case 5070:
		return ConusAlbers{}, nil
	}
	return nil, fmt.Errorf("gridmath: unsupported EPSG code %d", epsg)
}
