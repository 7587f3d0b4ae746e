package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ObserverPosition holds a ground observer's location in both geodetic and
// Earth-fixed frames. The Cartesian form is computed once so it can be
// reused across lookups.
type ObserverPosition struct {
	Geodetic GeodeticPosition
	Fixed    r3.Vec // km

	sinLat, cosLat float64
	sinLon, cosLon float64
}

// LookAngles holds azimuth, elevation, and range from an observer to a target.
type LookAngles struct {
	AzimuthDeg   float64 `json:"azimuth"`   // 0 = North, clockwise
	ElevationDeg float64 `json:"elevation"` // 0 = horizon, 90 = zenith
	RangeKm      float64 `json:"range"`
}

// Visible reports whether the target is above the observer's horizon.
func (la LookAngles) Visible() bool {
	return la.ElevationDeg > 0
}

// NewObserverPosition creates an ObserverPosition on the WGS-84 ellipsoid.
// Latitude and longitude are in degrees, altitude in km.
func NewObserverPosition(latDeg, lonDeg, altKm float64) ObserverPosition {
	g := GeodeticPosition{LatDeg: latDeg, LonDeg: lonDeg, AltKm: altKm}
	obs := ObserverPosition{
		Geodetic: g,
		Fixed:    WGS84().Cartesian(g),
	}
	obs.sinLat, obs.cosLat = math.Sincos(latDeg * deg2rad)
	obs.sinLon, obs.cosLon = math.Sincos(lonDeg * deg2rad)
	return obs
}

// LookAngles computes azimuth, elevation, and range from the observer to a
// target given in Earth-fixed km.
//
// Uses the SEZ (South-East-Zenith) topocentric rotation per Vallado Section 4.4.
func (obs ObserverPosition) LookAngles(target r3.Vec) LookAngles {
	rho := r3.Sub(target, obs.Fixed)

	south := obs.sinLat*obs.cosLon*rho.X + obs.sinLat*obs.sinLon*rho.Y - obs.cosLat*rho.Z
	east := -obs.sinLon*rho.X + obs.cosLon*rho.Y
	zenith := obs.cosLat*obs.cosLon*rho.X + obs.cosLat*obs.sinLon*rho.Y + obs.sinLat*rho.Z

	rng := r3.Norm(rho)
	if rng == 0 {
		return LookAngles{ElevationDeg: 90}
	}

	// North is -South in SEZ.
	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return LookAngles{
		AzimuthDeg:   az * rad2deg,
		ElevationDeg: math.Asin(zenith/rng) * rad2deg,
		RangeKm:      rng,
	}
}
