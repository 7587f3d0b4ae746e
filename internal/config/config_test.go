package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

// inTempDir runs the test from an empty directory so no config.yaml is found.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load(discard)
	require.NoError(t, err)

	if diff := cmp.Diff(Defaults(), *cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	inTempDir(t)
	t.Setenv("ISSGO_HTTP_ADDR", ":9090")
	t.Setenv("ISSGO_HTTP_TRUST_PROXY", "true")
	t.Setenv("ISSGO_OEM_SOURCE_URL", "http://example.test/iss.xml")
	t.Setenv("ISSGO_OEM_REFRESH_INTERVAL", "90m")
	t.Setenv("ISSGO_STREAM_MAX_CONCURRENT_PER_IP", "3")
	t.Setenv("ISSGO_STREAM_MAX_TOTAL", "50")
	t.Setenv("ISSGO_LOG_LEVEL", "debug")

	cfg, err := Load(discard)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.HTTP.TrustProxy)
	assert.Equal(t, "http://example.test/iss.xml", cfg.OEM.SourceURL)
	assert.Equal(t, 90*time.Minute, cfg.OEM.RefreshInterval)
	assert.Equal(t, 3, cfg.Stream.MaxConcurrentPerIP)
	assert.Equal(t, 50, cfg.Stream.MaxTotal)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigFile(t *testing.T) {
	dir := inTempDir(t)
	yaml := "oem:\n  max_files: 9\nlog:\n  format: text\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(discard)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.OEM.MaxFiles)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	inTempDir(t)
	t.Setenv("ISSGO_OEM_MAX_FILES", "0")
	t.Setenv("ISSGO_STREAM_INTERVAL", "10ms")
	t.Setenv("ISSGO_STREAM_MAX_TOTAL", "-5")
	t.Setenv("ISSGO_LOG_LEVEL", "chatty")
	t.Setenv("ISSGO_LOG_FORMAT", "xml")

	var buf bytes.Buffer
	cfg, err := Load(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, err)

	d := Defaults()
	assert.Equal(t, d.OEM.MaxFiles, cfg.OEM.MaxFiles)
	assert.Equal(t, d.Stream.Interval, cfg.Stream.Interval)
	assert.Equal(t, d.Stream.MaxTotal, cfg.Stream.MaxTotal)
	assert.Equal(t, d.Log.Level, cfg.Log.Level)
	assert.Equal(t, d.Log.Format, cfg.Log.Format)
	assert.Contains(t, buf.String(), "invalid oem.max_files value")
	assert.Contains(t, buf.String(), "invalid log.level value")
	assert.Contains(t, buf.String(), "invalid stream.max_total value")
}

func TestLoadAuthRequiresToken(t *testing.T) {
	inTempDir(t)
	t.Setenv("ISSGO_AUTH_ENABLED", "true")

	_, err := Load(discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.token is required")

	t.Setenv("ISSGO_AUTH_TOKEN", "s3cret")
	cfg, err := Load(discard)
	require.NoError(t, err)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "s3cret", cfg.Auth.Token)
}

func TestLoadBadBool(t *testing.T) {
	inTempDir(t)
	t.Setenv("ISSGO_AUTH_ENABLED", "sometimes")

	_, err := Load(discard)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownStreamFrame(t *testing.T) {
	inTempDir(t)
	t.Setenv("ISSGO_STREAM_FRAME", "galactic")

	_, err := Load(discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream.frame")
}
