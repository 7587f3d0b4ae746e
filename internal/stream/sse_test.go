package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/issgo/internal/ephemeris"
	"github.com/star/issgo/internal/oem"
	"github.com/star/issgo/internal/transform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func q(v float64) *ephemeris.Quantity { return &ephemeris.Quantity{Value: v, Units: "km"} }

func str(s string) *string { return &s }

var clockAt = time.Date(2024, 2, 14, 12, 1, 0, 0, time.UTC)

func testStore() *oem.Store {
	doc := &oem.Document{
		Metadata: oem.Metadata{ObjectName: "ISS", RefFrame: "EME2000"},
		StateVectors: ephemeris.Ephemeris{
			{
				Epoch: str("2024-045T12:00:00.000Z"),
				X:     q(-4665.0), Y: q(-4514.0), Z: q(1990.0),
				XDot: q(2), YDot: q(6), ZDot: q(3),
			},
			{
				Epoch: str("2024-045T12:04:00.000Z"),
				X:     q(-3782.2), Y: q(-3173.9), Z: q(4651.6),
				XDot: q(4.9), YDot: q(5.2), ZDot: q(-0.1),
			},
		},
	}
	store := oem.NewStore()
	store.Set(oem.NewDataset("test", time.Date(2024, 2, 14, 11, 30, 0, 0, time.UTC), doc))
	return store
}

func testResolver() *ephemeris.Resolver {
	return ephemeris.NewResolver(testLogger(), ephemeris.WithClock(func() time.Time { return clockAt }))
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		Interval:           time.Second,
		KeepaliveInterval:  30 * time.Second,
	}
}

func newTestHandler(store *oem.Store, cfg Config) *Handler {
	if cfg.Frame == "" {
		cfg.Frame = "ecef"
	}
	return NewHandler(store, testResolver(), cfg, testLogger())
}

// readEvents parses "data:" lines into generic maps.
func readEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
			t.Errorf("invalid JSON in SSE data line: %v", err)
			continue
		}
		events = append(events, msg)
	}
	return events
}

// TestSSEMessageFormat verifies the SSE wire format: "data: {json}\n\n".
func TestSSEMessageFormat(t *testing.T) {
	handler := newTestHandler(testStore(), testConfig())

	req := httptest.NewRequest("GET", "/api/v1/stream/groundtrack", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	ctx, cancel := context.WithTimeout(req.Context(), 300*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	body := w.Body.String()
	events := readEvents(t, body)
	if len(events) < 2 {
		t.Fatalf("got %d events, want metadata and a position", len(events))
	}

	meta := events[0]
	if meta["type"] != "metadata" {
		t.Fatalf("first event type = %v, want metadata", meta["type"])
	}
	if meta["object"] != "ISS" || meta["source"] != "test" {
		t.Errorf("metadata = %v", meta)
	}
	if _, ok := meta["dataset_age_seconds"]; !ok {
		t.Error("metadata missing dataset_age_seconds")
	}

	pos := events[1]
	if pos["type"] != "position" {
		t.Fatalf("second event type = %v, want position", pos["type"])
	}
	if pos["epoch"] != "2024-045T12:00:00.000Z" {
		t.Errorf("epoch = %v, want the sample nearest the clock", pos["epoch"])
	}
	if pos["t"] != "2024-02-14T12:01:00Z" {
		t.Errorf("t = %v, want 2024-02-14T12:01:00Z", pos["t"])
	}
	alt, _ := pos["alt"].(float64)
	if alt < 380 || alt > 450 {
		t.Errorf("alt = %v, want ISS altitude", pos["alt"])
	}

	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") && line != ":" {
			t.Errorf("unexpected SSE line: %q", line)
		}
	}
}

func TestPositionMatchesProjector(t *testing.T) {
	// No configured frame: the dataset's EME2000 selects the IAU-76 rotation.
	handler := NewHandler(testStore(), testResolver(), testConfig(), testLogger())

	msg, err := handler.position()
	if err != nil {
		t.Fatal(err)
	}
	if msg.Frame != "j2000" {
		t.Errorf("frame = %q, want j2000", msg.Frame)
	}

	epoch := time.Date(2024, 2, 14, 12, 0, 0, 0, time.UTC)
	want, err := transform.NewInertialProjector(transform.IAU76Orientation{}).
		Project(r3Vec(-4665.0, -4514.0, 1990.0), epoch)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Lat != want.LatDeg || msg.Lon != want.LonDeg || msg.Alt != want.AltKm {
		t.Errorf("position = (%v, %v, %v), want (%v, %v, %v)",
			msg.Lat, msg.Lon, msg.Alt, want.LatDeg, want.LonDeg, want.AltKm)
	}
}

func TestPositionWithoutUsableSamples(t *testing.T) {
	store := oem.NewStore()
	store.Set(oem.NewDataset("test", clockAt, &oem.Document{
		StateVectors: ephemeris.Ephemeris{{X: q(1)}},
	}))
	handler := newTestHandler(store, testConfig())

	if _, err := handler.position(); err == nil {
		t.Error("expected error with no usable samples")
	}
}

func TestUnknownFrame(t *testing.T) {
	cfg := testConfig()
	cfg.Frame = "galactic"
	handler := newTestHandler(testStore(), cfg)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/stream/groundtrack", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestNoDataset(t *testing.T) {
	handler := newTestHandler(oem.NewStore(), testConfig())

	req := httptest.NewRequest("GET", "/api/v1/stream/groundtrack", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestTrail(t *testing.T) {
	tr := newTrail(2)
	if tr.points() != nil {
		t.Error("empty trail should have no points")
	}
	tr.push(point{1, 1, 1})
	tr.push(point{2, 2, 2})
	tr.push(point{3, 3, 3})

	got := tr.points()
	want := [][3]float64{{2, 2, 2}, {3, 3, 3}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("points = %v, want %v", got, want)
	}

	off := newTrail(0)
	off.push(point{1, 1, 1})
	if off.points() != nil {
		t.Error("disabled trail should stay empty")
	}
}

// TestRateLimiting verifies per-IP concurrent stream limits.
func TestRateLimiting(t *testing.T) {
	limiter := newStreamLimiter(3, 0)

	for i := 0; i < 3; i++ {
		if !limiter.acquire("10.0.0.1") {
			t.Fatalf("acquire %d should succeed", i+1)
		}
	}

	if limiter.acquire("10.0.0.1") {
		t.Error("acquire beyond limit should fail")
	}

	if !limiter.acquire("10.0.0.2") {
		t.Error("different IP should not be rate limited")
	}

	limiter.release("10.0.0.1")
	if !limiter.acquire("10.0.0.1") {
		t.Error("acquire after release should succeed")
	}

	if c := limiter.count("10.0.0.1"); c != 3 {
		t.Errorf("count = %d, want 3", c)
	}
	if c := limiter.count("10.0.0.2"); c != 1 {
		t.Errorf("count = %d, want 1", c)
	}
}

func TestRateLimitingGlobalCap(t *testing.T) {
	limiter := newStreamLimiter(5, 2)

	if !limiter.acquire("10.0.0.1") || !limiter.acquire("10.0.0.2") {
		t.Fatal("acquire under the global cap should succeed")
	}
	if limiter.acquire("10.0.0.3") {
		t.Error("acquire beyond the global cap should fail")
	}

	// Releasing an IP that holds nothing must not free a global slot.
	limiter.release("10.0.0.9")
	if limiter.acquire("10.0.0.3") {
		t.Error("spurious release freed a slot")
	}
}

// TestRateLimitingConcurrent verifies rate limiter thread safety.
func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newStreamLimiter(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.acquire("10.0.0.1") {
				defer limiter.release("10.0.0.1")
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}

// TestRateLimitHTTPResponse verifies 429 response when limit exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	handler := newTestHandler(testStore(), cfg)

	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/groundtrack", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		ctx, cancel := context.WithCancel(req.Context())
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		go func() {
			time.Sleep(50 * time.Millisecond)
			close(ready)
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		handler.ServeHTTP(w, req)
	}()

	<-ready

	req := httptest.NewRequest("GET", "/api/v1/stream/groundtrack", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	<-done
}

// TestInvalidQueryParams verifies error responses for bad interval/trail values.
func TestInvalidQueryParams(t *testing.T) {
	handler := newTestHandler(testStore(), testConfig())

	tests := []struct {
		name  string
		query string
	}{
		{"bad interval", "?interval=0"},
		{"interval too large", "?interval=100"},
		{"interval non-numeric", "?interval=abc"},
		{"negative trail", "?trail=-1"},
		{"trail too large", "?trail=500"},
		{"trail non-numeric", "?trail=xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/groundtrack"+tt.query, nil)
			req.RemoteAddr = "127.0.0.1:12345"
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func r3Vec(x, y, z float64) r3.Vec { return r3.Vec{X: x, Y: y, Z: z} }
