package transform

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// WGS-84 axis lengths in kilometers.
const (
	wgs84A = 6378.137
	wgs84B = 6356.752314245
)

// polarEpsilon is the distance from the polar axis (km) below which a point is
// treated as lying on it.
const polarEpsilon = 1e-9

// nearPolarCos is the |cos(lat)| below which height is taken along the surface
// normal instead of through p/cos(lat), which loses precision near the poles.
const nearPolarCos = 1e-2

var (
	// ErrInvalidInput is returned for Cartesian input with a NaN or infinite component.
	ErrInvalidInput = errors.New("invalid input: non-finite coordinate")

	// ErrDegenerateInput is returned for the ellipsoid center, where longitude is undefined.
	ErrDegenerateInput = errors.New("degenerate input: position at ellipsoid center")
)

// Ellipsoid is a reference ellipsoid with its derived constants.
// Values are read-only once constructed.
type Ellipsoid struct {
	A   float64 // semi-major axis (km)
	B   float64 // semi-minor axis (km)
	F   float64 // flattening
	E2  float64 // first eccentricity squared
	Eps float64 // second eccentricity squared, e²/(1-e²)
}

// NewEllipsoid derives flattening and eccentricities from the axis lengths.
func NewEllipsoid(a, b float64) Ellipsoid {
	f := (a - b) / a
	e2 := f * (2 - f)
	return Ellipsoid{
		A:   a,
		B:   b,
		F:   f,
		E2:  e2,
		Eps: e2 / (1 - e2),
	}
}

var wgs84 = sync.OnceValue(func() Ellipsoid {
	return NewEllipsoid(wgs84A, wgs84B)
})

// WGS84 returns the process-wide WGS-84 ellipsoid.
func WGS84() Ellipsoid {
	return wgs84()
}

// GeodeticPosition is a position relative to a reference ellipsoid.
// Longitude is normalized to (-180, 180].
type GeodeticPosition struct {
	LatDeg float64 `json:"latitude"`
	LonDeg float64 `json:"longitude"`
	AltKm  float64 `json:"altitude"`
}

// Geodetic converts an Earth-fixed Cartesian position (km) to geodetic
// coordinates using Bowring's closed-form approximation.
func (e Ellipsoid) Geodetic(pos r3.Vec) (GeodeticPosition, error) {
	if err := validate(pos); err != nil {
		return GeodeticPosition{}, err
	}

	p := math.Hypot(pos.X, pos.Y)
	lon := normalizeLonDeg(math.Atan2(pos.Y, pos.X) * rad2deg)

	if p < polarEpsilon {
		lat := 90.0
		if pos.Z < 0 {
			lat = -90.0
		}
		return GeodeticPosition{LatDeg: lat, LonDeg: lon, AltKm: math.Abs(pos.Z) - e.B}, nil
	}

	// Parametric latitude seed.
	sinQ, cosQ := math.Sincos(math.Atan2(pos.Z*e.A, p*e.B))

	den := p - e.E2*e.A*cosQ*cosQ*cosQ
	if den <= 0 {
		// Inside the evolute, tens of km from the center, the closed form
		// leaves [-90, 90].
		lat, h := e.footOfNormal(p, pos.Z)
		return GeodeticPosition{LatDeg: lat, LonDeg: lon, AltKm: h}, nil
	}

	phi := math.Atan2(pos.Z+e.Eps*e.B*sinQ*sinQ*sinQ, den)
	sinPhi, cosPhi := math.Sincos(phi)

	// Prime-vertical radius of curvature.
	w := math.Sqrt(1 - e.E2*sinPhi*sinPhi)
	v := e.A / w

	var h float64
	if math.Abs(cosPhi) >= nearPolarCos {
		h = p/cosPhi - v
	} else {
		h = p*cosPhi + pos.Z*sinPhi - e.A*w
	}

	return GeodeticPosition{
		LatDeg: phi * rad2deg,
		LonDeg: lon,
		AltKm:  h,
	}, nil
}

// footOfNormal finds the nearest point on the meridian ellipse to (p, z) by
// bisection and returns the latitude of its normal and the signed distance
// to it. Points on the equatorial plane resolve to the northern foot.
func (e Ellipsoid) footOfNormal(p, z float64) (latDeg, h float64) {
	y := math.Abs(z)
	z0, z1 := p/e.A, y/e.B
	g := z0*z0 + z1*z1 - 1

	var fx, fy float64
	switch {
	case g == 0:
		fx, fy = p, y
	case y > 0:
		r0 := (e.A / e.B) * (e.A / e.B)
		s := footRoot(r0, z0, z1, g)
		fx, fy = r0*p/(s+r0), y/(s+1)
	default:
		if num, den := e.A*p, e.A*e.A-e.B*e.B; num < den {
			xd := num / den
			fx, fy = e.A*xd, e.B*math.Sqrt(1-xd*xd)
		} else {
			fx, fy = e.A, 0
		}
	}

	latDeg = math.Atan2(fy/(e.B*e.B), fx/(e.A*e.A)) * rad2deg
	if z < 0 {
		latDeg = -latDeg
	}
	h = math.Hypot(p-fx, y-fy)
	if g < 0 {
		h = -h
	}
	return latDeg, h
}

// footRoot bisects for the root s of
// (r0*z0/(s+r0))^2 + (z1/(s+1))^2 = 1 on [z1-1, hypot(r0*z0, z1)-1].
func footRoot(r0, z0, z1, g float64) float64 {
	n0 := r0 * z0
	s0, s1 := z1-1, 0.0
	if g > 0 {
		s1 = math.Hypot(n0, z1) - 1
	}

	var s float64
	for range 1100 {
		s = (s0 + s1) / 2
		if s == s0 || s == s1 {
			break
		}
		r, q := n0/(s+r0), z1/(s+1)
		switch v := r*r + q*q - 1; {
		case v > 0:
			s0 = s
		case v < 0:
			s1 = s
		default:
			return s
		}
	}
	return s
}

// Cartesian converts a geodetic position to Earth-fixed Cartesian
// coordinates (km). It is the exact inverse of Geodetic up to the
// approximation error of Bowring's method.
func (e Ellipsoid) Cartesian(g GeodeticPosition) r3.Vec {
	sinLat, cosLat := math.Sincos(g.LatDeg * deg2rad)
	sinLon, cosLon := math.Sincos(g.LonDeg * deg2rad)

	n := e.A / math.Sqrt(1-e.E2*sinLat*sinLat)

	return r3.Vec{
		X: (n + g.AltKm) * cosLat * cosLon,
		Y: (n + g.AltKm) * cosLat * sinLon,
		Z: (n*(1-e.E2) + g.AltKm) * sinLat,
	}
}

func validate(pos r3.Vec) error {
	for _, c := range [3]float64{pos.X, pos.Y, pos.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: (%g, %g, %g)", ErrInvalidInput, pos.X, pos.Y, pos.Z)
		}
	}
	if pos.X == 0 && pos.Y == 0 && pos.Z == 0 {
		return ErrDegenerateInput
	}
	return nil
}

// normalizeLonDeg folds a longitude in [-180, 180] into (-180, 180].
func normalizeLonDeg(lon float64) float64 {
	if lon <= -180 {
		lon += 360
	}
	return lon
}
