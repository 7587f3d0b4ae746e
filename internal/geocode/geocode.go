// Package geocode resolves a geodetic position to a human-readable place.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/star/issgo/internal/metrics"
)

// Kind classifies a lookup outcome.
type Kind int

const (
	Unexpected Kind = iota
	Found
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	}
	return "unexpected"
}

// Result is the outcome of a reverse lookup. Place is set only for Found;
// Err only for Unexpected.
type Result struct {
	Kind  Kind
	Place string
	Err   error
}

// Text renders the result the way API responses report it.
func (r Result) Text() string {
	switch r.Kind {
	case Found:
		return r.Place
	case NotFound:
		return "No location found."
	}
	return "Unexpected"
}

// Geocoder performs reverse lookups. Implementations never return an
// error; failures are reported as Unexpected results.
type Geocoder interface {
	Reverse(ctx context.Context, latDeg, lonDeg float64) Result
}

// maxResponseBytes bounds a Nominatim reply.
const maxResponseBytes = 1 << 20

// Nominatim is a client for the OpenStreetMap Nominatim reverse endpoint.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewNominatim creates a client for baseURL. Nominatim's usage policy
// requires an identifying userAgent.
func NewNominatim(baseURL, userAgent string, timeout time.Duration, logger *slog.Logger) *Nominatim {
	return &Nominatim{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "geocode"),
	}
}

type reverseResponse struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

// Reverse looks up the place at the given position.
func (n *Nominatim) Reverse(ctx context.Context, latDeg, lonDeg float64) Result {
	res := n.reverse(ctx, latDeg, lonDeg)
	metrics.IncGeocode(res.Kind.String())
	if res.Kind == Unexpected {
		n.logger.Warn("reverse geocode failed", "lat", latDeg, "lon", lonDeg, "error", res.Err)
	}
	return res
}

func (n *Nominatim) reverse(ctx context.Context, latDeg, lonDeg float64) Result {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(latDeg, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lonDeg, 'f', -1, 64))
	q.Set("accept-language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return Result{Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return Result{Err: fmt.Errorf("reverse lookup: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Err: fmt.Errorf("unexpected status code %d from geocoder", resp.StatusCode)}
	}

	var body reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return Result{Err: fmt.Errorf("decoding geocoder response: %w", err)}
	}

	// Open ocean has no address; Nominatim answers with an error field.
	if body.Error != "" {
		return Result{Kind: NotFound}
	}
	place := strings.TrimSpace(body.DisplayName)
	if place == "" {
		place = placeFromAddress(body.Address)
	}
	if place == "" {
		return Result{Kind: NotFound}
	}
	return Result{Kind: Found, Place: place}
}

// addressParts are the Nominatim address keys joined, most specific first,
// when a reply has no display_name.
var addressParts = []string{"city", "town", "village", "hamlet", "county", "state", "region", "country"}

func placeFromAddress(addr map[string]string) string {
	var parts []string
	for _, k := range addressParts {
		if v := strings.TrimSpace(addr[k]); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// Disabled is a Geocoder that reports every position as not found.
type Disabled struct{}

func (Disabled) Reverse(context.Context, float64, float64) Result {
	return Result{Kind: NotFound}
}
