// Package api serves the ephemeris over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/star/issgo/internal/auth"
	"github.com/star/issgo/internal/ephemeris"
	"github.com/star/issgo/internal/geocode"
	"github.com/star/issgo/internal/health"
	"github.com/star/issgo/internal/metrics"
	"github.com/star/issgo/internal/oem"
)

// Config holds the server's own settings.
type Config struct {
	Addr       string
	TrustProxy bool
	Auth       auth.Config
}

// Deps are the components the handlers read from. Refresher, Geocoder and
// Stream are optional.
type Deps struct {
	Store     *oem.Store
	Resolver  *ephemeris.Resolver
	Refresher *oem.Refresher
	Geocoder  geocode.Geocoder
	Stream    http.Handler
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, logger *slog.Logger, deps Deps) *Server {
	h := &handlers{
		store:     deps.Store,
		resolver:  deps.Resolver,
		refresher: deps.Refresher,
		geocoder:  deps.Geocoder,
	}
	if h.geocoder == nil {
		h.geocoder = geocode.Disabled{}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Store.Ready))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/epochs", h.listEpochs)
	mux.HandleFunc("GET /api/v1/epochs/{epoch}", h.getEpoch)
	mux.HandleFunc("GET /api/v1/epochs/{epoch}/speed", h.getSpeed)
	mux.HandleFunc("GET /api/v1/epochs/{epoch}/location", h.getLocation)
	mux.HandleFunc("GET /api/v1/now", h.getNow)
	mux.HandleFunc("GET /api/v1/header", h.getHeader)
	mux.HandleFunc("GET /api/v1/metadata", h.getMetadata)
	mux.HandleFunc("GET /api/v1/comments", h.getComments)
	mux.HandleFunc("GET /api/v1/visibility", h.getVisibility)
	mux.HandleFunc("GET /api/v1/passes", h.getPasses)
	mux.HandleFunc("POST /api/v1/ephemeris/refresh", h.refresh)
	if deps.Stream != nil {
		mux.Handle("GET /api/v1/stream/groundtrack", deps.Stream)
	}

	// Build middleware chain: metrics -> request id -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(cfg.TrustProxy)(handler)
	handler = requestIDMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}
