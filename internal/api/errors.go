package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/star/issgo/internal/ephemeris"
	"github.com/star/issgo/internal/transform"
)

var (
	// ErrNoDataset is returned while no ephemeris has been loaded.
	ErrNoDataset = errors.New("no ephemeris dataset loaded")

	// ErrNoSample is returned when the dataset holds no sample with a
	// usable epoch.
	ErrNoSample = errors.New("no state vector with a usable epoch")

	// ErrUpstream wraps failures of the OEM source during a refresh.
	ErrUpstream = errors.New("upstream ephemeris source failed")
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, missing_field, not_found, ...
	Message   string `json:"message"` // human-readable
	RequestID string `json:"request_id,omitempty"`
}

// paramError is a rejected query or path parameter.
type paramError struct {
	msg string
}

func (e *paramError) Error() string { return e.msg }

func badParam(msg string) error { return &paramError{msg: msg} }

// classify maps an error to a status and code.
func classify(err error) (int, string) {
	var pe *paramError
	switch {
	case errors.As(err, &pe), errors.Is(err, ephemeris.ErrMalformedQuery):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ephemeris.ErrMissingField):
		return http.StatusUnprocessableEntity, "missing_field"
	case errors.Is(err, transform.ErrInvalidInput),
		errors.Is(err, transform.ErrDegenerateInput),
		errors.Is(err, transform.ErrMissingTimestamp):
		return http.StatusUnprocessableEntity, "invalid_input"
	case errors.Is(err, ErrNoDataset):
		return http.StatusServiceUnavailable, "no_dataset"
	case errors.Is(err, ErrNoSample):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway, "upstream"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError writes err as an APIError. Internal errors are logged and
// their detail withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		LoggerFromContext(r.Context()).Error("request failed", "error", err)
		msg = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, APIError{
		Status:    status,
		Code:      code,
		Message:   msg,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
