package oem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/issgo/internal/metrics"
)

// Refresher keeps a Store current: fetch, decode, snapshot to the cache,
// publish. A failed refresh leaves the previous dataset in place.
type Refresher struct {
	fetcher  *Fetcher
	cache    *Cache
	store    *Store
	interval time.Duration
	logger   *slog.Logger
}

// NewRefresher creates a Refresher. cache may be nil to disable snapshots.
func NewRefresher(fetcher *Fetcher, cache *Cache, store *Store, interval time.Duration, logger *slog.Logger) *Refresher {
	return &Refresher{
		fetcher:  fetcher,
		cache:    cache,
		store:    store,
		interval: interval,
		logger:   logger.With("component", "oem_refresher"),
	}
}

// LoadCached publishes the newest cached snapshot, if any.
func (r *Refresher) LoadCached() error {
	if r.cache == nil {
		return ErrNoSnapshot
	}
	data, ts, err := r.cache.LoadLatest()
	if err != nil {
		return err
	}
	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("cached snapshot: %w", err)
	}

	ds := NewDataset("cache", ts, doc)
	r.publish(ds)
	r.logger.Info("loaded OEM data from cache",
		"samples", len(doc.StateVectors),
		"cached_at", ts.Format(time.RFC3339),
	)
	return nil
}

// Refresh fetches and publishes a new dataset.
func (r *Refresher) Refresh(ctx context.Context) (*Dataset, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	data, err := r.fetcher.Fetch(ctx)
	if err != nil {
		metrics.IncEphemerisRefresh("fetch_error")
		return nil, err
	}

	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		metrics.IncEphemerisRefresh("decode_error")
		return nil, err
	}
	if len(doc.StateVectors) == 0 {
		r.logger.Warn("OEM document has no state vectors", "url", r.fetcher.SourceURL())
	}

	fetchedAt := time.Now().UTC()
	if r.cache != nil {
		if err := r.cache.Write(data, fetchedAt); err != nil {
			r.logger.Warn("failed to write OEM cache", "error", err)
		}
	}

	ds := NewDataset(r.fetcher.SourceURL(), fetchedAt, doc)
	r.publish(ds)
	metrics.IncEphemerisRefresh("success")

	r.logger.Info("OEM data refreshed",
		"samples", len(doc.StateVectors),
		"object", doc.Metadata.ObjectName,
		"ref_frame", doc.Metadata.RefFrame,
		"epoch_range", ds.EpochRange.String(),
	)
	return ds, nil
}

// Run refreshes immediately and then every interval until ctx is done.
// The dataset age gauge is updated in between.
func (r *Refresher) Run(ctx context.Context) {
	r.refreshLogged(ctx)

	if r.interval <= 0 {
		r.logger.Info("periodic OEM refresh disabled")
		return
	}

	refresh := time.NewTicker(r.interval)
	defer refresh.Stop()
	age := time.NewTicker(10 * time.Second)
	defer age.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			r.refreshLogged(ctx)
		case <-age.C:
			if a := r.store.AgeSeconds(); a >= 0 {
				metrics.SetDatasetAge(a)
			}
		}
	}
}

func (r *Refresher) refreshLogged(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.logger.Warn("OEM refresh failed, keeping previous dataset", "error", err)
	}
}

func (r *Refresher) publish(ds *Dataset) {
	r.store.Set(ds)
	metrics.SetDatasetSamples(len(ds.StateVectors()))
	metrics.SetDatasetAge(time.Since(ds.FetchedAt).Seconds())
}
