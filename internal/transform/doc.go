// Package transform converts satellite positions between reference frames
// and into geodetic coordinates.
//
// Two projections are provided behind the Projector interface:
// FixedProjector for positions already in the Earth-fixed frame, and
// InertialProjector for inertial positions, which are first rotated into the
// Earth-fixed frame at the observation instant using an Orientation.
//
// Geodetic conversion uses Bowring's closed-form method on the WGS-84
// ellipsoid. All lengths are kilometers. Longitudes are reported in
// (-180, 180].
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform
