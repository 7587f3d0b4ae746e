package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/issgo/internal/ephemeris"
	"github.com/star/issgo/internal/geocode"
	"github.com/star/issgo/internal/metrics"
	"github.com/star/issgo/internal/oem"
	"github.com/star/issgo/internal/passes"
	"github.com/star/issgo/internal/transform"
)

type handlers struct {
	store     *oem.Store
	resolver  *ephemeris.Resolver
	refresher *oem.Refresher
	geocoder  geocode.Geocoder
}

func (h *handlers) dataset() (*oem.Dataset, error) {
	ds := h.store.Get()
	if ds == nil {
		return nil, ErrNoDataset
	}
	return ds, nil
}

// resolve finds the sample nearest query in the current dataset.
func (h *handlers) resolve(query string) (*oem.Dataset, ephemeris.Result, error) {
	ds, err := h.dataset()
	if err != nil {
		return nil, ephemeris.Result{}, err
	}
	res, err := h.resolver.Scan(query, ds.StateVectors())
	if err != nil {
		return nil, res, err
	}
	recordSkipped(res.Skipped)
	if !res.Found {
		return nil, res, ErrNoSample
	}
	return ds, res, nil
}

func recordSkipped(skipped []ephemeris.SampleOutcome) {
	var missing, malformed int
	for _, s := range skipped {
		if errors.Is(s.Err, ephemeris.ErrMissingEpoch) {
			missing++
		} else {
			malformed++
		}
	}
	metrics.AddSkippedSamples("missing_epoch", missing)
	metrics.AddSkippedSamples("malformed_epoch", malformed)
}

type vecJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func toVec(v r3.Vec) vecJSON {
	return vecJSON{X: v.X, Y: v.Y, Z: v.Z}
}

type epochsPage struct {
	Total        int                 `json:"total"`
	Offset       int                 `json:"offset"`
	Limit        int                 `json:"limit"`
	StateVectors ephemeris.Ephemeris `json:"state_vectors"`
}

// listEpochs serves GET /api/v1/epochs?limit=&offset=.
func (h *handlers) listEpochs(w http.ResponseWriter, r *http.Request) {
	ds, err := h.dataset()
	if err != nil {
		writeError(w, r, err)
		return
	}
	svs := ds.StateVectors()

	q := r.URL.Query()
	offset, err := nonNegativeInt(q, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := nonNegativeInt(q, "limit", len(svs))
	if err != nil {
		writeError(w, r, err)
		return
	}

	start := min(offset, len(svs))
	end := start + min(limit, len(svs)-start)
	writeJSON(w, http.StatusOK, epochsPage{
		Total:        len(svs),
		Offset:       offset,
		Limit:        limit,
		StateVectors: svs[start:end],
	})
}

func nonNegativeInt(q url.Values, key string, def int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badParam(fmt.Sprintf("invalid %s parameter %q, must be a non-negative integer", key, v))
	}
	return n, nil
}

type stateResponse struct {
	Query         string                `json:"query"`
	QueryTime     string                `json:"query_time"`
	Epoch         string                `json:"epoch"`
	Index         int                   `json:"index"`
	OffsetSeconds float64               `json:"offset_seconds"`
	StateVector   ephemeris.StateVector `json:"state_vector"`
}

// getEpoch serves GET /api/v1/epochs/{epoch}.
func (h *handlers) getEpoch(w http.ResponseWriter, r *http.Request) {
	query := r.PathValue("epoch")
	_, res, err := h.resolve(query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{
		Query:         query,
		QueryTime:     ephemeris.FormatEpoch(res.At),
		Epoch:         ephemeris.FormatEpoch(res.Epoch),
		Index:         res.Index,
		OffsetSeconds: res.Distance.Seconds(),
		StateVector:   res.State,
	})
}

type speedResponse struct {
	Epoch string  `json:"epoch"`
	Speed float64 `json:"speed"`
	Units string  `json:"units"`
}

// getSpeed serves GET /api/v1/epochs/{epoch}/speed.
func (h *handlers) getSpeed(w http.ResponseWriter, r *http.Request) {
	_, res, err := h.resolve(r.PathValue("epoch"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	speed, err := ephemeris.Speed(res.State)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, speedResponse{
		Epoch: ephemeris.FormatEpoch(res.Epoch),
		Speed: speed,
		Units: "km/s",
	})
}

type locationResponse struct {
	Epoch         string                     `json:"epoch"`
	Frame         string                     `json:"frame"`
	Location      transform.GeodeticPosition `json:"location"`
	AltitudeUnits string                     `json:"altitude_units"`
	Geoposition   string                     `json:"geoposition"`
}

// getLocation serves GET /api/v1/epochs/{epoch}/location?frame=.
func (h *handlers) getLocation(w http.ResponseWriter, r *http.Request) {
	ds, res, err := h.resolve(r.PathValue("epoch"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := lookupFrame(r.URL.Query().Get("frame"), ds.Document.Metadata.RefFrame)
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := project(res, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locationResponse{
		Epoch:         ephemeris.FormatEpoch(res.Epoch),
		Frame:         f.Name,
		Location:      g,
		AltitudeUnits: "km",
		Geoposition:   h.geocoder.Reverse(r.Context(), g.LatDeg, g.LonDeg).Text(),
	})
}

// project maps the resolved sample to geodetic coordinates at its epoch.
func project(res ephemeris.Result, f transform.Frame) (transform.GeodeticPosition, error) {
	pos, err := ephemeris.Position(res.State)
	if err != nil {
		return transform.GeodeticPosition{}, err
	}
	return f.Projector.Project(pos, res.Epoch)
}

type nowResponse struct {
	Epoch         string                     `json:"epoch"`
	OffsetSeconds float64                    `json:"offset_seconds"`
	Frame         string                     `json:"frame"`
	Position      vecJSON                    `json:"position"`
	Velocity      vecJSON                    `json:"velocity"`
	Speed         float64                    `json:"speed"`
	FixedPosition vecJSON                    `json:"fixed_position"`
	FixedVelocity vecJSON                    `json:"fixed_velocity"`
	Location      transform.GeodeticPosition `json:"location"`
	Geoposition   string                     `json:"geoposition"`
}

// getNow serves GET /api/v1/now: everything known about the sample
// nearest the current instant.
func (h *handlers) getNow(w http.ResponseWriter, r *http.Request) {
	ds, res, err := h.resolve(ephemeris.Now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := lookupFrame(r.URL.Query().Get("frame"), ds.Document.Metadata.RefFrame)
	if err != nil {
		writeError(w, r, err)
		return
	}

	pos, err := ephemeris.Position(res.State)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vel, err := ephemeris.Velocity(res.State)
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := f.Projector.Project(pos, res.Epoch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fixed := f.FixedState(transform.State{Position: pos, Velocity: vel}, res.Epoch)

	writeJSON(w, http.StatusOK, nowResponse{
		Epoch:         ephemeris.FormatEpoch(res.Epoch),
		OffsetSeconds: res.Distance.Seconds(),
		Frame:         f.Name,
		Position:      toVec(pos),
		Velocity:      toVec(vel),
		Speed:         r3.Norm(vel),
		FixedPosition: toVec(fixed.Position),
		FixedVelocity: toVec(fixed.Velocity),
		Location:      g,
		Geoposition:   h.geocoder.Reverse(r.Context(), g.LatDeg, g.LonDeg).Text(),
	})
}

func (h *handlers) getHeader(w http.ResponseWriter, r *http.Request) {
	ds, err := h.dataset()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds.Document.Header)
}

type metadataResponse struct {
	oem.Metadata
	Source     string `json:"source"`
	FetchedAt  string `json:"fetched_at"`
	EpochRange string `json:"epoch_range"`
	Samples    int    `json:"samples"`
}

func (h *handlers) getMetadata(w http.ResponseWriter, r *http.Request) {
	ds, err := h.dataset()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metadataResponse{
		Metadata:   ds.Document.Metadata,
		Source:     ds.Source,
		FetchedAt:  ephemeris.FormatEpoch(ds.FetchedAt),
		EpochRange: ds.EpochRange.String(),
		Samples:    len(ds.StateVectors()),
	})
}

func (h *handlers) getComments(w http.ResponseWriter, r *http.Request) {
	ds, err := h.dataset()
	if err != nil {
		writeError(w, r, err)
		return
	}
	comments := ds.Document.Comments
	if comments == nil {
		comments = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"comments": comments})
}

type visibilityResponse struct {
	Epoch     string                     `json:"epoch"`
	Frame     string                     `json:"frame"`
	Observer  transform.GeodeticPosition `json:"observer"`
	Subpoint  transform.GeodeticPosition `json:"subpoint"`
	Azimuth   float64                    `json:"azimuth"`
	Elevation float64                    `json:"elevation"`
	RangeKm   float64                    `json:"range_km"`
	Visible   bool                       `json:"visible"`
}

// getVisibility serves GET /api/v1/visibility?lat=&lon=&alt=&at=&frame=:
// where the station appears in an observer's sky.
func (h *handlers) getVisibility(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := floatParam(q, "lat", -90, 90, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lon, err := floatParam(q, "lon", -180, 360, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	alt, err := floatParam(q, "alt", -1, 100, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	at := q.Get("at")
	if at == "" {
		at = ephemeris.Now
	}

	ds, res, err := h.resolve(at)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := lookupFrame(q.Get("frame"), ds.Document.Metadata.RefFrame)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pos, err := ephemeris.Position(res.State)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := f.Projector.Project(pos, res.Epoch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	obs := transform.NewObserverPosition(lat, lon, alt)
	la := obs.LookAngles(transform.InertialToFixed(pos, res.Epoch, f.Orientation))

	writeJSON(w, http.StatusOK, visibilityResponse{
		Epoch:     ephemeris.FormatEpoch(res.Epoch),
		Frame:     f.Name,
		Observer:  obs.Geodetic,
		Subpoint:  sub,
		Azimuth:   la.AzimuthDeg,
		Elevation: la.ElevationDeg,
		RangeKm:   la.RangeKm,
		Visible:   la.Visible(),
	})
}

type passesResponse struct {
	From         string                     `json:"from"`
	Frame        string                     `json:"frame"`
	Observer     transform.GeodeticPosition `json:"observer"`
	MinElevation float64                    `json:"min_elevation"`
	Count        int                        `json:"count"`
	Passes       []passes.PassEvent         `json:"passes"`
}

const (
	defaultMinElevation = 10
	defaultMaxPasses    = 10
	maxPassesLimit      = 100
)

// getPasses serves GET /api/v1/passes?lat=&lon=&alt=&min_el=&from=&max_passes=&frame=:
// the windows among the loaded samples in which the station is above
// min_el for the observer.
func (h *handlers) getPasses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := floatParam(q, "lat", -90, 90, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lon, err := floatParam(q, "lon", -180, 360, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	alt, err := floatParam(q, "alt", -1, 100, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	minEl := float64(defaultMinElevation)
	if q.Has("min_el") {
		if minEl, err = floatParam(q, "min_el", 0, 90, true); err != nil {
			writeError(w, r, err)
			return
		}
	}
	maxPasses, err := nonNegativeInt(q, "max_passes", defaultMaxPasses)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if maxPasses == 0 || maxPasses > maxPassesLimit {
		maxPasses = maxPassesLimit
	}
	from := q.Get("from")
	if from == "" {
		from = ephemeris.Now
	}
	start, err := h.resolver.ParseQuery(from)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ds, err := h.dataset()
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := lookupFrame(q.Get("frame"), ds.Document.Metadata.RefFrame)
	if err != nil {
		writeError(w, r, err)
		return
	}

	obs := transform.NewObserverPosition(lat, lon, alt)
	found, err := passes.Find(r.Context(), passes.Request{
		Observer:     obs,
		Samples:      ds.StateVectors(),
		Frame:        f,
		Start:        start,
		MinElevation: minEl,
		MaxPasses:    maxPasses,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if found == nil {
		found = []passes.PassEvent{}
	}

	writeJSON(w, http.StatusOK, passesResponse{
		From:         ephemeris.FormatEpoch(start),
		Frame:        f.Name,
		Observer:     obs.Geodetic,
		MinElevation: minEl,
		Count:        len(found),
		Passes:       found,
	})
}

// floatParam parses a finite float query parameter within [lo, hi].
// A missing optional parameter is 0.
func floatParam(q url.Values, key string, lo, hi float64, required bool) (float64, error) {
	v := q.Get(key)
	if v == "" {
		if required {
			return 0, badParam("missing " + key + " parameter")
		}
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || f < lo || f > hi {
		return 0, badParam(fmt.Sprintf("invalid %s parameter %q, must be a number in [%g, %g]", key, v, lo, hi))
	}
	return f, nil
}

type refreshResponse struct {
	Source     string `json:"source"`
	FetchedAt  string `json:"fetched_at"`
	Samples    int    `json:"samples"`
	EpochRange string `json:"epoch_range"`
}

// refresh serves POST /api/v1/ephemeris/refresh.
func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		writeError(w, r, fmt.Errorf("%w: refresh not configured", ErrUpstream))
		return
	}
	ds, err := h.refresher.Refresh(r.Context())
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", ErrUpstream, err))
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Source:     ds.Source,
		FetchedAt:  ephemeris.FormatEpoch(ds.FetchedAt),
		Samples:    len(ds.StateVectors()),
		EpochRange: ds.EpochRange.String(),
	})
}
