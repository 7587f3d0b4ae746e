package transform

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// State is a position (km) and velocity (km/s) in one frame.
type State struct {
	Position r3.Vec
	Velocity r3.Vec
}

// InertialStateToFixed rotates an inertial state into the Earth-fixed frame
// at t and removes the velocity of the rotating frame:
//
//	r_fixed = R · r_inertial
//	v_fixed = R · v_inertial - ω × r_fixed
//
// with ω = [0, 0, OmegaEarth].
func InertialStateToFixed(s State, t time.Time, o Orientation) State {
	m := o.Matrix(t)
	pos := apply(m, s.Position)
	vel := apply(m, s.Velocity)

	omega := r3.Vec{Z: OmegaEarth}
	return State{
		Position: pos,
		Velocity: r3.Sub(vel, r3.Cross(omega, pos)),
	}
}
