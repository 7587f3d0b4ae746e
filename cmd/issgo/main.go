// Command issgo serves the ISS ephemeris over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/star/issgo/internal/api"
	"github.com/star/issgo/internal/auth"
	"github.com/star/issgo/internal/config"
	"github.com/star/issgo/internal/ephemeris"
	"github.com/star/issgo/internal/geocode"
	"github.com/star/issgo/internal/logging"
	"github.com/star/issgo/internal/oem"
	"github.com/star/issgo/internal/stream"
)

func main() {
	cfg, err := config.Load(slog.Default())
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	store := oem.NewStore()
	refresher := oem.NewRefresher(
		oem.NewFetcher(cfg.OEM.SourceURL, cfg.OEM.MaxBodyBytes, logger),
		oem.NewCache(cfg.OEM.CacheDir, cfg.OEM.MaxFiles),
		store,
		cfg.OEM.RefreshInterval,
		logger,
	)

	// Serve the last snapshot until the first fetch completes.
	if err := refresher.LoadCached(); err != nil {
		logger.Info("no OEM cache found, starting without ephemeris data", "error", err)
	}

	resolver := ephemeris.NewResolver(logger)

	var geocoder geocode.Geocoder = geocode.Disabled{}
	if cfg.Geocode.Enabled {
		geocoder = geocode.NewNominatim(cfg.Geocode.BaseURL, cfg.Geocode.UserAgent, cfg.Geocode.Timeout, logger)
	}

	streamHandler := stream.NewHandler(store, resolver, stream.Config{
		MaxConcurrentPerIP: cfg.Stream.MaxConcurrentPerIP,
		MaxTotal:           cfg.Stream.MaxTotal,
		Interval:           cfg.Stream.Interval,
		KeepaliveInterval:  cfg.Stream.KeepaliveInterval,
		TrustProxy:         cfg.HTTP.TrustProxy,
		Frame:              cfg.Stream.Frame,
	}, logger)

	srv := api.NewServer(api.Config{
		Addr:       cfg.HTTP.Addr,
		TrustProxy: cfg.HTTP.TrustProxy,
		Auth: auth.Config{
			Enabled:     cfg.Auth.Enabled,
			Token:       cfg.Auth.Token,
			PublicReads: cfg.Auth.PublicReads,
		},
	}, logger, api.Deps{
		Store:     store,
		Resolver:  resolver,
		Refresher: refresher,
		Geocoder:  geocoder,
		Stream:    streamHandler,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go refresher.Run(ctx)

	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTP.Addr,
			"auth_enabled", cfg.Auth.Enabled,
			"oem_source", cfg.OEM.SourceURL,
			"refresh_interval", cfg.OEM.RefreshInterval.String(),
			"geocode_enabled", cfg.Geocode.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
