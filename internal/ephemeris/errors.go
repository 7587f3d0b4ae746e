package ephemeris

import "errors"

var (
	// ErrMalformedQuery is returned when a query timestamp is neither the
	// Now sentinel nor parseable under the query layout.
	ErrMalformedQuery = errors.New("malformed query timestamp")

	// ErrMalformedSample marks a sample whose epoch is present but
	// unparseable. Such samples are skipped, never returned to the caller.
	ErrMalformedSample = errors.New("malformed sample timestamp")

	// ErrMissingEpoch marks a sample without an epoch. Such samples are skipped.
	ErrMissingEpoch = errors.New("sample has no epoch")

	// ErrMissingField matches any *MissingFieldError.
	ErrMissingField = errors.New("missing field")
)

// MissingFieldError reports a required field absent from a selected sample.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing field " + e.Field
}

// Is lets errors.Is(err, ErrMissingField) match.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}
