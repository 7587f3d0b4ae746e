// Package stream implements a Server-Sent Events (SSE) ground track of the
// station. Clients connect via GET /api/v1/stream/groundtrack and receive
// the sub-satellite point of the state vector nearest the current instant.
//
// SSE message format:
//
//	data: {"type":"position","t":"2024-02-14T12:00:05Z","epoch":"2024-045T12:00:00.000Z","lat":...,"lon":...,"alt":...}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","source":"...","object":"ISS","dataset_age_seconds":1800}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
// Reconnecting clients receive a fresh metadata message on each connection.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/star/issgo/internal/ephemeris"
	"github.com/star/issgo/internal/httputil"
	"github.com/star/issgo/internal/metrics"
	"github.com/star/issgo/internal/oem"
	"github.com/star/issgo/internal/transform"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxTotal           int           // Max concurrent streams overall (default: 1000).
	Interval           time.Duration // Default time between positions (default: 5s).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	TrustProxy         bool          // Key the per-IP limit on proxy headers.
	Frame              string        // Frame of the state vectors; "" uses the dataset's REF_FRAME.
}

// errNoPosition is reported when no position can be produced for a tick.
var errNoPosition = errors.New("no usable state vector")

// Handler manages SSE streaming connections.
type Handler struct {
	store    *oem.Store
	resolver *ephemeris.Resolver
	config   Config
	limiter  *streamLimiter
	logger   *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(store *oem.Store, resolver *ephemeris.Resolver, config Config, logger *slog.Logger) *Handler {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		store:    store,
		resolver: resolver,
		config:   config,
		limiter:  newStreamLimiter(config.MaxConcurrentPerIP, config.MaxTotal),
		logger:   logger.With("component", "stream"),
	}
}

// ServeHTTP serves the SSE ground-track stream.
// GET /api/v1/stream/groundtrack?interval=5&trail=20
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	interval := h.config.Interval
	if v := r.URL.Query().Get("interval"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			writeError(w, http.StatusBadRequest, "invalid interval parameter, must be 1-60")
			return
		}
		interval = time.Duration(n) * time.Second
	}

	trail := 0
	if v := r.URL.Query().Get("trail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 120 {
			writeError(w, http.StatusBadRequest, "invalid trail parameter, must be 0-120")
			return
		}
		trail = n
	}

	if _, err := transform.LookupFrame(h.config.Frame, ""); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ds := h.store.Get()
	if ds == nil {
		metrics.IncStreamErrors("no_dataset")
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, "no ephemeris dataset loaded")
		return
	}

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections()
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"interval_seconds", interval.Seconds(),
		"trail", trail,
	)

	defer func() {
		h.limiter.release(ip)
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's WriteTimeout for this long-lived connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	if err := c.sendJSON("metadata", newMetadataMessage(ds)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	tr := newTrail(trail)
	send := func() error {
		msg, err := h.position()
		if err != nil {
			metrics.IncStreamErrors("no_position")
			h.logger.Debug("stream position unavailable", "remote_ip", ip, "error", err)
			return nil
		}
		msg.Trail = tr.points()
		tr.push(point{msg.Lat, msg.Lon, msg.Alt})
		return c.sendJSON("position", msg)
	}

	if err := send(); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := send(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			// Reset keepalive since we just sent data.
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// position projects the sample nearest the current instant. The dataset is
// re-read on every call so a refresh takes effect on open streams.
func (h *Handler) position() (positionMessage, error) {
	ds := h.store.Get()
	if ds == nil {
		return positionMessage{}, errNoPosition
	}
	res, err := h.resolver.Scan(ephemeris.Now, ds.StateVectors())
	if err != nil {
		return positionMessage{}, err
	}
	if !res.Found {
		return positionMessage{}, errNoPosition
	}
	frame, err := transform.LookupFrame(h.config.Frame, ds.Document.Metadata.RefFrame)
	if err != nil {
		return positionMessage{}, err
	}
	pos, err := ephemeris.Position(res.State)
	if err != nil {
		return positionMessage{}, err
	}
	g, err := frame.Projector.Project(pos, res.Epoch)
	if err != nil {
		return positionMessage{}, err
	}
	return positionMessage{
		Type:  "position",
		T:     res.At.Format(time.RFC3339),
		Epoch: ephemeris.FormatEpoch(res.Epoch),
		Frame: frame.Name,
		Lat:   g.LatDeg,
		Lon:   g.LonDeg,
		Alt:   g.AltKm,
	}, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"code":    codeFor(status),
		"message": msg,
	})
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "no_dataset"
	}
	return "internal_error"
}

// SSE message payload types.

type metadataMessage struct {
	Type       string `json:"type"`
	Source     string `json:"source"`
	Object     string `json:"object"`
	RefFrame   string `json:"ref_frame"`
	FetchedAt  string `json:"fetched_at"`
	DatasetAge int    `json:"dataset_age_seconds"`
	EpochRange string `json:"epoch_range"`
}

func newMetadataMessage(ds *oem.Dataset) metadataMessage {
	return metadataMessage{
		Type:       "metadata",
		Source:     ds.Source,
		Object:     ds.Document.Metadata.ObjectName,
		RefFrame:   ds.Document.Metadata.RefFrame,
		FetchedAt:  ds.FetchedAt.UTC().Format(time.RFC3339),
		DatasetAge: int(time.Since(ds.FetchedAt).Seconds()),
		EpochRange: ds.EpochRange.String(),
	}
}

type positionMessage struct {
	Type  string       `json:"type"`
	T     string       `json:"t"`
	Epoch string       `json:"epoch"`
	Frame string       `json:"frame"`
	Lat   float64      `json:"lat"`
	Lon   float64      `json:"lon"`
	Alt   float64      `json:"alt"`
	Trail [][3]float64 `json:"tr,omitempty"`
}

type point [3]float64

// trail keeps the last n positions sent on one connection, oldest first.
type trail struct {
	n   int
	buf []point
}

func newTrail(n int) *trail {
	return &trail{n: n}
}

func (t *trail) push(p point) {
	if t.n == 0 {
		return
	}
	if len(t.buf) == t.n {
		t.buf = append(t.buf[:0], t.buf[1:]...)
	}
	t.buf = append(t.buf, p)
}

func (t *trail) points() [][3]float64 {
	if len(t.buf) == 0 {
		return nil
	}
	out := make([][3]float64, len(t.buf))
	for i, p := range t.buf {
		out[i] = p
	}
	return out
}
