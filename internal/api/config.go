// Package api serves the administrative HTTP interface: starting, cancelling and
// inspecting migrations, repairing single entities, dead-letter handling, health
// and Prometheus metrics.
package api

import (
	"fmt"
	"net"
	"time"

	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/errors"
)

// Default constants for the HTTP server.
const (
	DefaultListen          = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = "1M"
	DefaultMetricsPath     = "/metrics"
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string // maximum request body size, e.g. "1M"

	MetricsEnabled bool
	MetricsPath    string
}

// ConfigFromSettings derives the server configuration from application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := &Config{
		Listen:          settings.API.Listen,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
		MetricsEnabled:  settings.Metrics.Enabled,
		MetricsPath:     settings.Metrics.Path,
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = DefaultMetricsPath
	}
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return errors.New(fmt.Errorf("invalid listen address %q: %w", c.Listen, err)).
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.MetricsEnabled && (c.MetricsPath == "" || c.MetricsPath[0] != '/') {
		return errors.Newf("metrics path %q must start with /", c.MetricsPath).
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return nil
}
