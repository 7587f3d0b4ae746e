package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issgo_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "issgo_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	ephemerisRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issgo_ephemeris_refresh_total",
			Help: "OEM refresh attempts by result.",
		},
		[]string{"result"},
	)

	datasetSamples = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "issgo_dataset_samples",
		Help: "Number of state vectors in the current dataset.",
	})

	datasetAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "issgo_dataset_age_seconds",
		Help: "Seconds since the current dataset was fetched.",
	})

	skippedSamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issgo_resolver_skipped_samples_total",
			Help: "Samples passed over by the resolver, by reason.",
		},
		[]string{"reason"},
	)

	geocodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issgo_geocode_total",
			Help: "Reverse geocode lookups by outcome.",
		},
		[]string{"outcome"},
	)

	streamConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "issgo_stream_connections_total",
		Help: "Ground-track stream connections accepted.",
	})

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "issgo_streams_active",
		Help: "Currently open ground-track streams.",
	})

	streamMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issgo_stream_messages_total",
			Help: "SSE messages sent, by event type.",
		},
		[]string{"event"},
	)

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "issgo_stream_bytes_total",
		Help: "SSE payload bytes written.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issgo_stream_errors_total",
			Help: "Ground-track stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		ephemerisRefreshTotal,
		datasetSamples,
		datasetAgeSeconds,
		skippedSamplesTotal,
		geocodeTotal,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncEphemerisRefresh counts a refresh attempt. result is "success",
// "fetch_error" or "decode_error".
func IncEphemerisRefresh(result string) {
	ephemerisRefreshTotal.WithLabelValues(result).Inc()
}

// SetDatasetSamples records the size of the current dataset.
func SetDatasetSamples(n int) {
	datasetSamples.Set(float64(n))
}

// SetDatasetAge records the age of the current dataset.
func SetDatasetAge(sec float64) {
	datasetAgeSeconds.Set(sec)
}

// AddSkippedSamples counts n samples the resolver could not use.
func AddSkippedSamples(reason string, n int) {
	if n > 0 {
		skippedSamplesTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// IncGeocode counts a reverse geocode lookup.
func IncGeocode(outcome string) {
	geocodeTotal.WithLabelValues(outcome).Inc()
}

func IncStreamConnections() {
	streamConnectionsTotal.Inc()
}

func IncStreamsActive() {
	streamsActive.Inc()
}

func DecStreamsActive() {
	streamsActive.Dec()
}

func IncStreamMessages(event string) {
	streamMessagesTotal.WithLabelValues(event).Inc()
}

func AddStreamBytes(n int) {
	streamBytesTotal.Add(float64(n))
}

func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

var exactRoutes = map[string]bool{
	"/":                          true,
	"/healthz":                   true,
	"/readyz":                    true,
	"/metrics":                   true,
	"/api/v1/epochs":             true,
	"/api/v1/now":                true,
	"/api/v1/header":             true,
	"/api/v1/metadata":           true,
	"/api/v1/comments":           true,
	"/api/v1/visibility":         true,
	"/api/v1/passes":             true,
	"/api/v1/ephemeris/refresh":  true,
	"/api/v1/stream/groundtrack": true,
}

const epochsPrefix = "/api/v1/epochs/"

// normalizeRoute maps a request path to a bounded set of labels so that
// per-epoch paths and scanner noise do not explode label cardinality.
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	rest, ok := strings.CutPrefix(path, epochsPrefix)
	if !ok || rest == "" {
		return "other"
	}
	epoch, sub, _ := strings.Cut(rest, "/")
	if epoch == "" {
		return "other"
	}
	switch sub {
	case "":
		return epochsPrefix + "{epoch}"
	case "speed", "location":
		return epochsPrefix + "{epoch}/" + sub
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers behind the middleware stream.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
