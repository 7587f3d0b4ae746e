package api

import (
	"errors"

	"github.com/star/issgo/internal/transform"
)

// lookupFrame resolves the frame query parameter, defaulting to the
// dataset's REF_FRAME. Unknown names are a bad request.
func lookupFrame(name, refFrame string) (transform.Frame, error) {
	f, err := transform.LookupFrame(name, refFrame)
	if errors.Is(err, transform.ErrUnknownFrame) {
		return f, badParam(err.Error())
	}
	return f, err
}
