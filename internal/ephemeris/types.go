// Package ephemeris resolves point queries against a satellite ephemeris:
// which state vector is nearest a given instant, and the speed it implies.
//
// Every function here is a pure read of its arguments; samples are borrowed
// for the duration of a call and never modified.
package ephemeris

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Quantity is a numeric OEM value with its units attribute.
type Quantity struct {
	Value float64 `xml:",chardata" json:"value"`
	Units string  `xml:"units,attr" json:"units,omitempty"`
}

// StateVector is one timestamped position/velocity sample. Position is in km
// and velocity in km/s, in the frame named by the ephemeris metadata.
//
// A nil field was absent from the source. Absent is never conflated with zero.
type StateVector struct {
	Epoch *string   `xml:"EPOCH" json:"epoch,omitempty"`
	X     *Quantity `xml:"X" json:"x,omitempty"`
	Y     *Quantity `xml:"Y" json:"y,omitempty"`
	Z     *Quantity `xml:"Z" json:"z,omitempty"`
	XDot  *Quantity `xml:"X_DOT" json:"x_dot,omitempty"`
	YDot  *Quantity `xml:"Y_DOT" json:"y_dot,omitempty"`
	ZDot  *Quantity `xml:"Z_DOT" json:"z_dot,omitempty"`
}

// Ephemeris is a sequence of state vectors in arrival order. Timestamps need
// not be sorted or unique.
type Ephemeris []StateVector

// EpochField reads the EPOCH element of a state vector.
func EpochField(sv StateVector) (string, bool) {
	if sv.Epoch == nil {
		return "", false
	}
	return *sv.Epoch, true
}

// Position returns the position triple in km.
func Position(sv StateVector) (r3.Vec, error) {
	return triple(sv.X, sv.Y, sv.Z, "X", "Y", "Z")
}

// Velocity returns the velocity triple in km/s.
func Velocity(sv StateVector) (r3.Vec, error) {
	return triple(sv.XDot, sv.YDot, sv.ZDot, "X_DOT", "Y_DOT", "Z_DOT")
}

// Speed returns the magnitude of the velocity in km/s. A missing velocity
// component is an error, never a zero.
func Speed(sv StateVector) (float64, error) {
	v, err := Velocity(sv)
	if err != nil {
		return 0, err
	}
	return r3.Norm(v), nil
}

func triple(x, y, z *Quantity, nx, ny, nz string) (r3.Vec, error) {
	switch {
	case x == nil:
		return r3.Vec{}, &MissingFieldError{Field: nx}
	case y == nil:
		return r3.Vec{}, &MissingFieldError{Field: ny}
	case z == nil:
		return r3.Vec{}, &MissingFieldError{Field: nz}
	}
	return r3.Vec{X: x.Value, Y: y.Value, Z: z.Value}, nil
}
