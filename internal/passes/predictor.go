// Package passes finds the windows in which the station is above an
// observer's horizon, at the resolution of the supplied state vectors.
// Nothing is propagated: a pass starts and ends on a sample.
package passes

import (
	"context"
	"runtime"
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/issgo/internal/ephemeris"
	"github.com/star/issgo/internal/transform"
)

// GroundTrackPoint is a sub-satellite position at a specific time during a pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`  // km
	Elevation float64   `json:"elevation"` // degrees above observer's horizon
}

// PassEvent describes a single pass over an observer location.
type PassEvent struct {
	StartTime        time.Time          `json:"start_time"`
	MaxElevationTime time.Time          `json:"max_elevation_time"`
	EndTime          time.Time          `json:"end_time"`
	DurationSeconds  float64            `json:"duration_seconds"`
	MaxElevation     float64            `json:"max_elevation"`
	AzimuthAtMax     float64            `json:"azimuth_at_max"`
	StartAzimuth     float64            `json:"start_azimuth"`
	EndAzimuth       float64            `json:"end_azimuth"`
	GroundTrack      []GroundTrackPoint `json:"ground_track"`
}

// Request holds the parameters for a pass search.
type Request struct {
	Observer     transform.ObserverPosition
	Samples      ephemeris.Ephemeris
	Frame        transform.Frame
	Start        time.Time // samples before Start are ignored; zero means all
	MinElevation float64   // degrees
	MaxPasses    int       // 0 means unlimited
}

// look is one usable sample as seen by the observer.
type look struct {
	t   time.Time
	pos r3.Vec
	la  transform.LookAngles
	geo transform.GeodeticPosition
	err error
}

// Find returns the passes in req.Samples in time order. Samples without a
// usable epoch or position are skipped.
func Find(ctx context.Context, req Request) ([]PassEvent, error) {
	looks := usableSamples(req.Samples, req.Start)
	if err := observe(ctx, looks, req.Observer, req.Frame); err != nil {
		return nil, err
	}

	var (
		passes  []PassEvent
		current *PassEvent
	)
	closePass := func() {
		if current == nil {
			return
		}
		current.DurationSeconds = current.EndTime.Sub(current.StartTime).Seconds()
		passes = append(passes, *current)
		current = nil
	}

	for _, l := range looks {
		if l.err != nil {
			continue
		}
		el := l.la.ElevationDeg
		if el < req.MinElevation {
			closePass()
			if req.MaxPasses > 0 && len(passes) >= req.MaxPasses {
				break
			}
			continue
		}

		if current == nil {
			current = &PassEvent{
				StartTime:        l.t,
				StartAzimuth:     l.la.AzimuthDeg,
				MaxElevation:     el,
				MaxElevationTime: l.t,
				AzimuthAtMax:     l.la.AzimuthDeg,
			}
		}
		if el > current.MaxElevation {
			current.MaxElevation = el
			current.MaxElevationTime = l.t
			current.AzimuthAtMax = l.la.AzimuthDeg
		}
		current.EndTime = l.t
		current.EndAzimuth = l.la.AzimuthDeg
		current.GroundTrack = append(current.GroundTrack, GroundTrackPoint{
			Time:      l.t,
			Latitude:  l.geo.LatDeg,
			Longitude: l.geo.LonDeg,
			Altitude:  l.geo.AltKm,
			Elevation: el,
		})
	}
	// A pass still in progress at the last sample closes there.
	if req.MaxPasses == 0 || len(passes) < req.MaxPasses {
		closePass()
	}

	return passes, nil
}

// usableSamples parses and sorts the samples at or after start.
func usableSamples(samples ephemeris.Ephemeris, start time.Time) []look {
	looks := make([]look, 0, len(samples))
	for _, sv := range samples {
		raw, ok := ephemeris.EpochField(sv)
		if !ok {
			continue
		}
		t, err := ephemeris.ParseEpoch(raw, ephemeris.EpochLayout)
		if err != nil || t.Before(start) {
			continue
		}
		pos, err := ephemeris.Position(sv)
		if err != nil {
			continue
		}
		looks = append(looks, look{t: t, pos: pos})
	}
	slices.SortStableFunc(looks, func(a, b look) int {
		return a.t.Compare(b.t)
	})
	return looks
}

// observe fills in look angles and sub-satellite points. Chunks are
// processed in parallel, bounded by a semaphore.
func observe(ctx context.Context, looks []look, obs transform.ObserverPosition, frame transform.Frame) error {
	workers := runtime.NumCPU()
	chunk := (len(looks) + workers - 1) / workers
	if chunk < 64 {
		chunk = 64
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for lo := 0; lo < len(looks); lo += chunk {
		hi := min(lo+chunk, len(looks))

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}

		wg.Add(1)
		go func(part []look) {
			defer wg.Done()
			defer func() { <-sem }()

			for i := range part {
				if ctx.Err() != nil {
					return
				}
				l := &part[i]
				fixed := transform.InertialToFixed(l.pos, l.t, frame.Orientation)
				l.geo, l.err = transform.WGS84().Geodetic(fixed)
				if l.err == nil {
					l.la = obs.LookAngles(fixed)
				}
			}
		}(looks[lo:hi])
	}

	wg.Wait()
	return ctx.Err()
}
