package ephemeris

import (
	"fmt"
	"time"
)

// EpochLayout is the CCSDS day-of-year timestamp used by OEM files:
// four-digit year, day of year, hour, minute, seconds with exactly three
// fractional digits, and a literal Z. Example: 2024-045T12:30:00.123Z.
const EpochLayout = "2006-002T15:04:05.000Z"

// Now is the query sentinel for the current wall-clock instant. It matches
// case-insensitively.
const Now = "NOW"

// ParseEpoch parses s under layout and returns the instant in UTC.
func ParseEpoch(s, layout string) (time.Time, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatEpoch formats t in EpochLayout.
func FormatEpoch(t time.Time) string {
	return t.UTC().Format(EpochLayout)
}

// Range is the earliest and latest parseable epoch in an ephemeris.
type Range struct {
	Min time.Time
	Max time.Time
}

// EpochRange scans samples for their earliest and latest parseable epochs.
// ok is false when no sample has one.
func EpochRange(samples Ephemeris) (r Range, ok bool) {
	for _, sv := range samples {
		raw, present := EpochField(sv)
		if !present {
			continue
		}
		t, err := ParseEpoch(raw, EpochLayout)
		if err != nil {
			continue
		}
		if !ok || t.Before(r.Min) {
			r.Min = t
		}
		if !ok || t.After(r.Max) {
			r.Max = t
		}
		ok = true
	}
	return r, ok
}

func (r Range) String() string {
	return fmt.Sprintf("%s..%s", FormatEpoch(r.Min), FormatEpoch(r.Max))
}
