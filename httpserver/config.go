package httpserver

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/kroma-labs/sqlsentinel/normalizer"
)

// Config holds the HTTP server configuration parameters.
//
// Use DefaultConfig() to get a properly initialized configuration, then
// modify specific fields as needed.
type Config struct {
	// Addr is the TCP address to listen on (default: ":8080").
	Addr string

	// ServiceName is reported in logs, spans and health responses.
	// Default: "sqlsentinel"
	ServiceName string

	// Version is reported in health responses.
	Version string

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. Default: 10s
	ReadTimeout time.Duration

	// ReadHeaderTimeout is the maximum duration for reading request headers.
	// Default: 5s
	ReadHeaderTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Default: 10s
	WriteTimeout time.Duration

	// IdleTimeout is the maximum duration to wait for the next request when
	// keep-alives are enabled. Default: 60s
	IdleTimeout time.Duration

	// ShutdownTimeout is the maximum duration to wait for in-flight requests
	// during graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration

	// MaxBodyBytes limits the size of a normalize request body.
	// Default: 4MB
	MaxBodyBytes int64

	// MaxBatchSize limits the number of queries in one normalize request.
	// Default: 1000
	MaxBatchSize int

	// RateLimit and RateBurst configure a token bucket shared by all
	// normalize requests. A zero RateLimit disables limiting.
	RateLimit rate.Limit
	RateBurst int

	// Normalizer handles every query. Default: normalizer.New()
	Normalizer *normalizer.Normalizer

	// Logger receives lifecycle and request logs.
	Logger zerolog.Logger

	// TracerProvider and MeterProvider default to the global providers.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	// MetricsHandler, when set, is mounted at GET /metrics.
	MetricsHandler http.Handler
}

// DefaultConfig returns a configuration suitable for a sidecar.
//
// Timeout values:
//   - ReadTimeout: 10s
//   - WriteTimeout: 10s
//   - IdleTimeout: 60s
//   - ShutdownTimeout: 10s
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ServiceName:       "sqlsentinel",
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxBodyBytes:      4 << 20,
		MaxBatchSize:      1000,
	}
}
