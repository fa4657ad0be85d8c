package httpclient

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/kroma-labs/sqlsentinel/httpclient"

// Default values for the client.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultBatchSize   = 500
	DefaultServiceName = "sqlsentinel-client"
)

// config holds the resolved client configuration.
type config struct {
	ServiceName     string
	Timeout         time.Duration
	BatchSize       int
	Transport       http.RoundTripper
	RetryConfig     RetryConfig
	RetryClassifier RetryClassifier
	BreakerConfig   *BreakerConfig
	Logger          zerolog.Logger
	TracerProvider  trace.TracerProvider
	MeterProvider   metric.MeterProvider

	Tracer  trace.Tracer
	metrics *metrics
}

func newConfig(opts ...Option) *config {
	breaker := DefaultBreakerConfig()
	cfg := &config{
		ServiceName:   DefaultServiceName,
		Timeout:       DefaultTimeout,
		BatchSize:     DefaultBatchSize,
		RetryConfig:   DefaultRetryConfig(),
		BreakerConfig: &breaker,
		Logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	m, err := newMetrics(cfg.MeterProvider.Meter(scope), cfg.ServiceName)
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("metrics disabled")
	}
	cfg.metrics = m
	return cfg
}

// Option configures the client.
type Option func(*config)

// WithServiceName names the client in spans, metrics and the circuit
// breaker. Default: "sqlsentinel-client"
func WithServiceName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.ServiceName = name
		}
	}
}

// WithTimeout bounds every call, retries included. Default: 5s
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.Timeout = d
	}
}

// WithBatchSize sets how many queries NormalizeBatch sends per request.
// It must not exceed the server's batch limit. Default: 500
func WithBatchSize(n int) Option {
	return func(c *config) {
		c.BatchSize = n
	}
}

// WithTransport sets the base transport under the retry, breaker and
// tracing layers.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *config) {
		c.Transport = rt
	}
}

// WithRetryConfig sets the retry behavior.
//
// Example:
//
//	client, _ := httpclient.New(addr,
//	    httpclient.WithRetryConfig(httpclient.NoRetryConfig()),
//	)
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *config) {
		c.RetryConfig = cfg
	}
}

// WithRetryClassifier replaces DefaultClassifier.
func WithRetryClassifier(f RetryClassifier) Option {
	return func(c *config) {
		c.RetryClassifier = f
	}
}

// WithBreakerConfig sets the circuit breaker configuration.
func WithBreakerConfig(cfg BreakerConfig) Option {
	return func(c *config) {
		c.BreakerConfig = &cfg
	}
}

// WithoutBreaker disables the circuit breaker.
func WithoutBreaker() Option {
	return func(c *config) {
		c.BreakerConfig = nil
	}
}

// WithLogger sets the logger for retries and breaker state changes.
// Default: disabled.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) {
		c.Logger = l
	}
}

// WithTracerProvider sets the tracer provider for client spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.TracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider for client metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.MeterProvider = mp
	}
}
