package transform

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownFrame is returned by LookupFrame for an unrecognized name.
var ErrUnknownFrame = errors.New("unknown frame")

// DefaultFrame is used when neither a frame nor a fallback is recognized.
const DefaultFrame = "j2000"

// Frame is a named reference frame with the rotation that takes it to
// Earth-fixed and the projector for positions expressed in it.
type Frame struct {
	Name        string
	Orientation Orientation
	Projector   Projector
}

var frames = map[string]Frame{
	"j2000": {
		Name:        "j2000",
		Orientation: IAU76Orientation{},
		Projector:   NewInertialProjector(IAU76Orientation{}),
	},
	"teme": {
		Name:        "teme",
		Orientation: GMSTOrientation{},
		Projector:   NewInertialProjector(GMSTOrientation{}),
	},
	"ecef": {
		Name:        "ecef",
		Orientation: IdentityOrientation{},
		Projector:   NewFixedProjector(),
	},
}

var frameAliases = map[string]string{
	"inertial": "j2000",
	"eme2000":  "j2000",
	"gcrf":     "j2000",
	"fixed":    "ecef",
	"itrf":     "ecef",
}

// FrameNames lists the canonical frame names.
func FrameNames() []string {
	return []string{"j2000", "teme", "ecef"}
}

// LookupFrame resolves a frame name or alias, case-insensitively. An empty
// name selects fallback (typically an OEM REF_FRAME), and DefaultFrame if
// fallback is not recognized either.
func LookupFrame(name, fallback string) (Frame, error) {
	key := canonicalFrame(name)
	if key == "" {
		key = canonicalFrame(fallback)
		if _, ok := frames[key]; !ok {
			key = DefaultFrame
		}
	}
	f, ok := frames[key]
	if !ok {
		return Frame{}, fmt.Errorf("%w %q, want one of %s", ErrUnknownFrame, name, strings.Join(FrameNames(), ", "))
	}
	return f, nil
}

// canonicalFrame lowercases name and resolves aliases.
func canonicalFrame(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := frameAliases[key]; ok {
		return alias
	}
	return key
}

// FixedState returns s in the Earth-fixed frame at t. A state already
// expressed in an Earth-fixed frame is returned unchanged.
func (f Frame) FixedState(s State, t time.Time) State {
	if _, ok := f.Projector.(FixedProjector); ok {
		return s
	}
	return InertialStateToFixed(s, t, f.Orientation)
}
