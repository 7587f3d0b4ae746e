package transform

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/nutation"
	"github.com/soniakeys/meeus/v3/sidereal"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Orientation gives Earth's orientation as the rotation taking an
// Earth-centered inertial vector into the Earth-fixed frame at t.
type Orientation interface {
	Matrix(t time.Time) *mat.Dense
}

// GMSTOrientation rotates about the pole by GMST only (TEME → PEF).
// Polar motion and the equation of the equinoxes are ignored.
type GMSTOrientation struct{}

// Matrix implements Orientation.
func (GMSTOrientation) Matrix(t time.Time) *mat.Dense {
	return rotZ(GMST(t))
}

// IAU76Orientation rotates a J2000 (EME2000) vector into the pseudo
// Earth-fixed frame: IAU-1976 precession, IAU-1980 nutation, then Greenwich
// apparent sidereal time.
//
//	r_PEF = R3(GAST) · N · P · r_J2000
//
// UTC stands in for TT and UT1; the resulting error is well under a meter
// for the precession and nutation terms.
type IAU76Orientation struct{}

// Matrix implements Orientation.
func (IAU76Orientation) Matrix(t time.Time) *mat.Dense {
	jd := JulianDate(t)
	return chain(
		rotZ(sidereal.Apparent(jd).Angle().Rad()),
		nutationMatrix(jd),
		precessionMatrix(jd),
	)
}

// IdentityOrientation treats the inertial and Earth-fixed frames as aligned.
type IdentityOrientation struct{}

// Matrix implements Orientation.
func (IdentityOrientation) Matrix(time.Time) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

// InertialToFixed rotates an inertial position into the Earth-fixed frame at t.
func InertialToFixed(pos r3.Vec, t time.Time, o Orientation) r3.Vec {
	return apply(o.Matrix(t), pos)
}

// precessionMatrix is P = R3(-z) · R2(θ) · R3(-ζ) (Lieske 1977 angles).
func precessionMatrix(jd float64) *mat.Dense {
	T := julianCenturies(jd)
	zeta := (2306.2181*T + 0.30188*T*T + 0.017998*T*T*T) * arcsec2rad
	theta := (2004.3109*T - 0.42665*T*T - 0.041833*T*T*T) * arcsec2rad
	z := (2306.2181*T + 1.09468*T*T + 0.018203*T*T*T) * arcsec2rad
	return chain(rotZ(-z), rotY(theta), rotZ(-zeta))
}

// nutationMatrix is N = R1(-ε-Δε) · R3(-Δψ) · R1(ε).
func nutationMatrix(jd float64) *mat.Dense {
	dPsi, dEps := nutation.Nutation(jd)
	eps := nutation.MeanObliquity(jd).Rad()
	return chain(rotX(-eps-dEps.Rad()), rotZ(-dPsi.Rad()), rotX(eps))
}

// Frame rotations (passive) about the x, y and z axes.

func rotX(a float64) *mat.Dense {
	s, c := math.Sincos(a)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, s,
		0, -s, c,
	})
}

func rotY(a float64) *mat.Dense {
	s, c := math.Sincos(a)
	return mat.NewDense(3, 3, []float64{
		c, 0, -s,
		0, 1, 0,
		s, 0, c,
	})
}

func rotZ(a float64) *mat.Dense {
	s, c := math.Sincos(a)
	return mat.NewDense(3, 3, []float64{
		c, s, 0,
		-s, c, 0,
		0, 0, 1,
	})
}

// chain multiplies left to right: chain(A, B, C) = A·B·C.
func chain(ms ...*mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(ms[0])
	for _, m := range ms[1:] {
		var next mat.Dense
		next.Mul(out, m)
		out = &next
	}
	return out
}

func apply(m mat.Matrix, v r3.Vec) r3.Vec {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}
