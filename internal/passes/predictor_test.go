package passes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/issgo/internal/ephemeris"
	"github.com/star/issgo/internal/transform"
)

var base = time.Date(2024, 2, 14, 12, 0, 0, 0, time.UTC)

// sample places the station 400 km above the equator at lonDeg, in ECEF.
func sample(minute int, lonDeg float64) ephemeris.StateVector {
	pos := transform.WGS84().Cartesian(transform.GeodeticPosition{LonDeg: lonDeg, AltKm: 400})
	epoch := ephemeris.FormatEpoch(base.Add(time.Duration(minute) * time.Minute))
	return ephemeris.StateVector{
		Epoch: &epoch,
		X:     &ephemeris.Quantity{Value: pos.X, Units: "km"},
		Y:     &ephemeris.Quantity{Value: pos.Y, Units: "km"},
		Z:     &ephemeris.Quantity{Value: pos.Z, Units: "km"},
	}
}

// testSamples holds two passes over an observer at (0, 0): three samples
// crossing overhead, then a single low one. Order is shuffled and one
// sample has no epoch.
func testSamples() ephemeris.Ephemeris {
	noEpoch := sample(24, 0)
	noEpoch.Epoch = nil
	return ephemeris.Ephemeris{
		sample(8, 5),
		sample(0, -5),
		sample(16, 180),
		sample(4, 0),
		sample(20, -4),
		sample(12, 25),
		noEpoch,
	}
}

func ecef(t *testing.T) transform.Frame {
	t.Helper()
	f, err := transform.LookupFrame("ecef", "")
	require.NoError(t, err)
	return f
}

func TestFindPasses(t *testing.T) {
	passes, err := Find(context.Background(), Request{
		Observer: transform.NewObserverPosition(0, 0, 0),
		Samples:  testSamples(),
		Frame:    ecef(t),
	})
	require.NoError(t, err)
	require.Len(t, passes, 2)

	p := passes[0]
	assert.Equal(t, base, p.StartTime)
	assert.Equal(t, base.Add(8*time.Minute), p.EndTime)
	assert.Equal(t, base.Add(4*time.Minute), p.MaxElevationTime)
	assert.InDelta(t, 480, p.DurationSeconds, 1e-9)
	assert.InDelta(t, 90, p.MaxElevation, 1e-6)
	assert.InDelta(t, 270, p.StartAzimuth, 1e-6)
	assert.InDelta(t, 90, p.EndAzimuth, 1e-6)

	require.Len(t, p.GroundTrack, 3)
	for _, pt := range p.GroundTrack {
		assert.InDelta(t, 0, pt.Latitude, 1e-6)
		assert.InDelta(t, 400, pt.Altitude, 1e-3)
		assert.Greater(t, pt.Elevation, 0.0)
	}
	assert.InDelta(t, -5, p.GroundTrack[0].Longitude, 1e-6)
	assert.InDelta(t, 5, p.GroundTrack[2].Longitude, 1e-6)

	last := passes[1]
	assert.Equal(t, base.Add(20*time.Minute), last.StartTime)
	assert.Equal(t, last.StartTime, last.EndTime)
	assert.Zero(t, last.DurationSeconds)
	assert.InDelta(t, 39.0, last.MaxElevation, 0.5)
	assert.Len(t, last.GroundTrack, 1)
}

func TestFindMinElevation(t *testing.T) {
	passes, err := Find(context.Background(), Request{
		Observer:     transform.NewObserverPosition(0, 0, 0),
		Samples:      testSamples(),
		Frame:        ecef(t),
		MinElevation: 45,
	})
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, base.Add(4*time.Minute), passes[0].StartTime)
	assert.Equal(t, base.Add(4*time.Minute), passes[0].EndTime)
}

func TestFindMaxPasses(t *testing.T) {
	passes, err := Find(context.Background(), Request{
		Observer:  transform.NewObserverPosition(0, 0, 0),
		Samples:   testSamples(),
		Frame:     ecef(t),
		MaxPasses: 1,
	})
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, base, passes[0].StartTime)
}

func TestFindStart(t *testing.T) {
	passes, err := Find(context.Background(), Request{
		Observer: transform.NewObserverPosition(0, 0, 0),
		Samples:  testSamples(),
		Frame:    ecef(t),
		Start:    base.Add(10 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, base.Add(20*time.Minute), passes[0].StartTime)
}

func TestFindNoSamples(t *testing.T) {
	passes, err := Find(context.Background(), Request{
		Observer: transform.NewObserverPosition(0, 0, 0),
		Frame:    ecef(t),
	})
	require.NoError(t, err)
	assert.Empty(t, passes)
}

func TestFindNeverVisible(t *testing.T) {
	passes, err := Find(context.Background(), Request{
		Observer: transform.NewObserverPosition(0, 90, 0),
		Samples:  testSamples(),
		Frame:    ecef(t),
	})
	require.NoError(t, err)
	assert.Empty(t, passes)
}

func TestFindCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Find(ctx, Request{
		Observer: transform.NewObserverPosition(0, 0, 0),
		Samples:  testSamples(),
		Frame:    ecef(t),
	})
	assert.ErrorIs(t, err, context.Canceled)
}
