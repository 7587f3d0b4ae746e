package transform

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrMissingTimestamp is returned when a time-dependent projection is
// requested without an observation instant, or with a stale one outside the
// projector's validity window.
var ErrMissingTimestamp = errors.New("missing observation timestamp")

// Bounds of the IAU-1976 precession series used by the orientation models.
var (
	ValidFrom = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	ValidTo   = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Projector maps a Cartesian position (km) to a geodetic position.
// Implementations are safe for concurrent use.
type Projector interface {
	Project(pos r3.Vec, at time.Time) (GeodeticPosition, error)
}

// FixedProjector projects positions already expressed in the Earth-fixed
// frame. The instant is ignored.
type FixedProjector struct {
	Ellipsoid Ellipsoid
}

// NewFixedProjector returns a FixedProjector on the WGS-84 ellipsoid.
func NewFixedProjector() FixedProjector {
	return FixedProjector{Ellipsoid: WGS84()}
}

// Project implements Projector.
func (p FixedProjector) Project(pos r3.Vec, _ time.Time) (GeodeticPosition, error) {
	return p.Ellipsoid.Geodetic(pos)
}

// InertialProjector projects inertial positions by first rotating them into
// the Earth-fixed frame at the observation instant. Instants outside
// [From, To) are rejected; a zero bound is open.
type InertialProjector struct {
	Ellipsoid   Ellipsoid
	Orientation Orientation
	From, To    time.Time
}

// NewInertialProjector returns an InertialProjector on the WGS-84 ellipsoid,
// valid over [ValidFrom, ValidTo).
func NewInertialProjector(o Orientation) InertialProjector {
	return InertialProjector{Ellipsoid: WGS84(), Orientation: o, From: ValidFrom, To: ValidTo}
}

// Project implements Projector.
func (p InertialProjector) Project(pos r3.Vec, at time.Time) (GeodeticPosition, error) {
	if at.IsZero() {
		return GeodeticPosition{}, ErrMissingTimestamp
	}
	if (!p.From.IsZero() && at.Before(p.From)) || (!p.To.IsZero() && !at.Before(p.To)) {
		return GeodeticPosition{}, fmt.Errorf("%w: stale instant %s", ErrMissingTimestamp, at.UTC().Format(time.RFC3339))
	}
	if err := validate(pos); err != nil {
		return GeodeticPosition{}, err
	}
	return p.Ellipsoid.Geodetic(InertialToFixed(pos, at, p.Orientation))
}
