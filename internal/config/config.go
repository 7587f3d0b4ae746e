// Package config loads service configuration from defaults, an optional
// config.yaml and ISSGO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/star/issgo/internal/logging"
	"github.com/star/issgo/internal/oem"
	"github.com/star/issgo/internal/transform"
)

// Config holds all application configuration.
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Auth    AuthConfig    `mapstructure:"auth"`
	OEM     OEMConfig     `mapstructure:"oem"`
	Geocode GeocodeConfig `mapstructure:"geocode"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Log     LogConfig     `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr       string `mapstructure:"addr"`
	TrustProxy bool   `mapstructure:"trust_proxy"`
}

type AuthConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Token       string `mapstructure:"token"`
	PublicReads bool   `mapstructure:"public_reads"`
}

type OEMConfig struct {
	SourceURL       string        `mapstructure:"source_url"`
	CacheDir        string        `mapstructure:"cache_dir"`
	MaxFiles        int           `mapstructure:"max_files"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type GeocodeConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type StreamConfig struct {
	MaxConcurrentPerIP int           `mapstructure:"max_concurrent_per_ip"`
	MaxTotal           int           `mapstructure:"max_total"`
	Interval           time.Duration `mapstructure:"interval"`
	KeepaliveInterval  time.Duration `mapstructure:"keepalive_interval"`
	Frame              string        `mapstructure:"frame"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		OEM: OEMConfig{
			SourceURL:       oem.DefaultSourceURL,
			CacheDir:        "/tmp/issgo/oem",
			MaxFiles:        5,
			RefreshInterval: 6 * time.Hour,
			MaxBodyBytes:    oem.DefaultMaxBodyBytes,
		},
		Geocode: GeocodeConfig{
			Enabled:   true,
			BaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent: "issgo/1.0",
			Timeout:   5 * time.Second,
		},
		Stream: StreamConfig{
			MaxConcurrentPerIP: 10,
			MaxTotal:           1000,
			Interval:           5 * time.Second,
			KeepaliveInterval:  30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from file and environment variables. Values
// that are present but unusable are reported on logger and replaced by
// their defaults; a missing auth token with auth enabled is an error.
func Load(logger *slog.Logger) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// ISSGO_OEM_SOURCE_URL -> oem.source_url
	v.SetEnvPrefix("ISSGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.sanitize(logger)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.trust_proxy", d.HTTP.TrustProxy)
	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.token", d.Auth.Token)
	v.SetDefault("auth.public_reads", d.Auth.PublicReads)
	v.SetDefault("oem.source_url", d.OEM.SourceURL)
	v.SetDefault("oem.cache_dir", d.OEM.CacheDir)
	v.SetDefault("oem.max_files", d.OEM.MaxFiles)
	v.SetDefault("oem.refresh_interval", d.OEM.RefreshInterval)
	v.SetDefault("oem.max_body_bytes", d.OEM.MaxBodyBytes)
	v.SetDefault("geocode.enabled", d.Geocode.Enabled)
	v.SetDefault("geocode.base_url", d.Geocode.BaseURL)
	v.SetDefault("geocode.user_agent", d.Geocode.UserAgent)
	v.SetDefault("geocode.timeout", d.Geocode.Timeout)
	v.SetDefault("stream.max_concurrent_per_ip", d.Stream.MaxConcurrentPerIP)
	v.SetDefault("stream.max_total", d.Stream.MaxTotal)
	v.SetDefault("stream.interval", d.Stream.Interval)
	v.SetDefault("stream.keepalive_interval", d.Stream.KeepaliveInterval)
	v.SetDefault("stream.frame", d.Stream.Frame)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// sanitize replaces out-of-range values with defaults, warning for each.
func (c *Config) sanitize(logger *slog.Logger) {
	d := Defaults()

	if c.OEM.MaxFiles < 1 {
		logger.Warn("invalid oem.max_files value, using default", "value", c.OEM.MaxFiles, "default", d.OEM.MaxFiles)
		c.OEM.MaxFiles = d.OEM.MaxFiles
	}
	if c.OEM.RefreshInterval < 0 {
		logger.Warn("invalid oem.refresh_interval value, using default", "value", c.OEM.RefreshInterval, "default", d.OEM.RefreshInterval)
		c.OEM.RefreshInterval = d.OEM.RefreshInterval
	}
	if c.OEM.MaxBodyBytes < 1 {
		logger.Warn("invalid oem.max_body_bytes value, using default", "value", c.OEM.MaxBodyBytes, "default", d.OEM.MaxBodyBytes)
		c.OEM.MaxBodyBytes = d.OEM.MaxBodyBytes
	}
	if c.Geocode.Timeout <= 0 {
		logger.Warn("invalid geocode.timeout value, using default", "value", c.Geocode.Timeout, "default", d.Geocode.Timeout)
		c.Geocode.Timeout = d.Geocode.Timeout
	}
	if c.Stream.MaxConcurrentPerIP < 1 {
		logger.Warn("invalid stream.max_concurrent_per_ip value, using default", "value", c.Stream.MaxConcurrentPerIP, "default", d.Stream.MaxConcurrentPerIP)
		c.Stream.MaxConcurrentPerIP = d.Stream.MaxConcurrentPerIP
	}
	if c.Stream.MaxTotal < 1 {
		logger.Warn("invalid stream.max_total value, using default", "value", c.Stream.MaxTotal, "default", d.Stream.MaxTotal)
		c.Stream.MaxTotal = d.Stream.MaxTotal
	}
	if c.Stream.Interval < time.Second {
		logger.Warn("invalid stream.interval value, using default", "value", c.Stream.Interval, "default", d.Stream.Interval)
		c.Stream.Interval = d.Stream.Interval
	}
	if c.Stream.KeepaliveInterval < time.Second {
		logger.Warn("invalid stream.keepalive_interval value, using default", "value", c.Stream.KeepaliveInterval, "default", d.Stream.KeepaliveInterval)
		c.Stream.KeepaliveInterval = d.Stream.KeepaliveInterval
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		logger.Warn("invalid log.level value, using default", "value", c.Log.Level, "default", d.Log.Level)
		c.Log.Level = d.Log.Level
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		logger.Warn("invalid log.format value, using default", "value", c.Log.Format, "default", d.Log.Format)
		c.Log.Format = d.Log.Format
	}
}

// Validate checks settings that have no safe fallback.
func (c *Config) Validate() error {
	var errs []string

	if c.HTTP.Addr == "" {
		errs = append(errs, "http.addr is required")
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		errs = append(errs, "auth.token is required when auth is enabled")
	}
	if c.OEM.SourceURL == "" {
		errs = append(errs, "oem.source_url is required")
	}
	if _, err := transform.LookupFrame(c.Stream.Frame, ""); err != nil {
		errs = append(errs, "stream.frame: "+err.Error())
	}
	if c.Geocode.Enabled && c.Geocode.UserAgent == "" {
		errs = append(errs, "geocode.user_agent is required when geocoding is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
