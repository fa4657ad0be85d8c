package httpserver

import (
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/kroma-labs/sqlsentinel/normalizer"
)

// Option configures the server.
type Option func(*Config)

// WithConfig applies all settings from a Config struct.
//
// Example:
//
//	cfg := httpserver.DefaultConfig()
//	cfg.ShutdownTimeout = 25 * time.Second
//
//	server := httpserver.New(httpserver.WithConfig(cfg))
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Addr = addr
	}
}

// WithVersion sets the version reported by health responses.
func WithVersion(version string) Option {
	return func(c *Config) {
		c.Version = version
	}
}

// WithNormalizer sets the normalizer used by POST /v1/normalize.
//
// Example:
//
//	src, _ := config.Load()
//	server := httpserver.New(
//	    httpserver.WithNormalizer(normalizer.New(normalizer.WithSettings(src))),
//	)
func WithNormalizer(n *normalizer.Normalizer) Option {
	return func(c *Config) {
		c.Normalizer = n
	}
}

// WithLogger sets the logger for lifecycle events and request logs.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithTracerProvider sets the tracer provider for server spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.TracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider for request and normalization
// metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) {
		c.MeterProvider = mp
	}
}

// WithMetricsHandler mounts h at GET /metrics.
//
// Example:
//
//	tel, _ := telemetry.Setup(ctx, "sqlsentinel", version)
//	server := httpserver.New(
//	    httpserver.WithMeterProvider(tel.MeterProvider),
//	    httpserver.WithMetricsHandler(tel.MetricsHandler()),
//	)
func WithMetricsHandler(h http.Handler) Option {
	return func(c *Config) {
		c.MetricsHandler = h
	}
}

// WithRateLimit limits normalize requests to limit per second with the
// given burst. Requests over the limit get 429 Too Many Requests.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Config) {
		c.RateLimit = limit
		c.RateBurst = burst
	}
}

// WithMaxBatchSize limits the number of queries in one request.
func WithMaxBatchSize(n int) Option {
	return func(c *Config) {
		c.MaxBatchSize = n
	}
}
