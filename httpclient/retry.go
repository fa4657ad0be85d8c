package httpclient

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RetryConfig holds the retry behavior configuration.
// Use DefaultRetryConfig() for balanced defaults, then modify as needed.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts. The initial
	// request is not counted. Set to 0 to disable retries.
	// Default: 3
	MaxRetries uint

	// InitialInterval is the first backoff interval.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff interval.
	// Default: 2s
	MaxInterval time.Duration

	// MaxElapsedTime is the total time budget for the retry sequence.
	// Set to 0 for no time limit (only MaxRetries applies).
	// Default: 10s
	MaxElapsedTime time.Duration

	// Multiplier controls exponential growth of backoff intervals.
	// Default: 2.0
	Multiplier float64

	// JitterFactor randomizes every interval by ±JitterFactor.
	// Default: 0.5
	JitterFactor float64
}

// Default values for RetryConfig.
const (
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 2 * time.Second
	DefaultMaxElapsedTime  = 10 * time.Second
	DefaultMultiplier      = 2.0
	DefaultJitterFactor    = 0.5
)

// DefaultRetryConfig returns defaults sized for a sidecar on the request
// path: 3 retries (100ms, 200ms, 400ms ±50%) within a 10s budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxElapsedTime:  DefaultMaxElapsedTime,
		Multiplier:      DefaultMultiplier,
		JitterFactor:    DefaultJitterFactor,
	}
}

// NoRetryConfig returns configuration that disables retries entirely.
func NoRetryConfig() RetryConfig {
	return RetryConfig{}
}

// IsEnabled returns true if retries are enabled.
func (c RetryConfig) IsEnabled() bool {
	return c.MaxRetries > 0
}

// ExponentialBackOffFromConfig creates a cenkalti/backoff ExponentialBackOff
// from a RetryConfig. Jitter is always applied.
func ExponentialBackOffFromConfig(cfg RetryConfig) *backoff.ExponentialBackOff {
	jitterFactor := cfg.JitterFactor
	if jitterFactor <= 0 {
		jitterFactor = DefaultJitterFactor
	}
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = DefaultMultiplier
	}

	return &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialInterval,
		RandomizationFactor: jitterFactor,
		Multiplier:          multiplier,
		MaxInterval:         cfg.MaxInterval,
	}
}

// retryTransport retries requests the classifier marks as transient.
type retryTransport struct {
	base       http.RoundTripper
	cfg        *config
	classifier RetryClassifier
}

func newRetryTransport(base http.RoundTripper, cfg *config) http.RoundTripper {
	if !cfg.RetryConfig.IsEnabled() {
		return base
	}

	classifier := cfg.RetryClassifier
	if classifier == nil {
		classifier = DefaultClassifier
	}

	return &retryTransport{
		base:       base,
		cfg:        cfg,
		classifier: classifier,
	}
}

// RoundTrip implements http.RoundTripper with automatic retries.
//
// A response the classifier still rejects after the last attempt is
// returned as a *StatusError, never as a response.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	cfg := t.cfg.RetryConfig

	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	span := trace.SpanFromContext(ctx)
	attempt := 0

	opts := []backoff.RetryOption{
		backoff.WithBackOff(ExponentialBackOffFromConfig(cfg)),
		backoff.WithMaxTries(cfg.MaxRetries + 1),
		backoff.WithNotify(func(err error, next time.Duration) {
			attempt++
			t.cfg.Logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Dur("delay", next).
				Str("url", req.URL.Redacted()).
				Msg("retrying request")
			span.AddEvent("http.retry", trace.WithAttributes(
				attribute.Int("retry.attempt", attempt),
				attribute.Int64("retry.delay_ms", next.Milliseconds()),
			))
			t.cfg.metrics.recordRetry(ctx)
		}),
	}
	if cfg.MaxElapsedTime > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(cfg.MaxElapsedTime))
	}

	resp, err := backoff.Retry(ctx, func() (*http.Response, error) {
		resp, err := t.base.RoundTrip(cloneRequest(req, bodyBytes))
		if !t.classifier(resp, err) {
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			return resp, nil
		}

		if err != nil {
			return nil, err
		}
		drain(resp)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}, opts...)

	if attempt > 0 {
		span.SetAttributes(
			attribute.Int("http.retry_count", attempt),
			attribute.Bool("http.retry_success", err == nil),
		)
		if err != nil {
			t.cfg.metrics.recordRetryExhausted(ctx)
		}
	}
	return resp, err
}

// cloneRequest creates a copy of the request with a fresh body.
func cloneRequest(req *http.Request, bodyBytes []byte) *http.Request {
	clone := req.Clone(req.Context())

	if bodyBytes != nil {
		clone.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		clone.ContentLength = int64(len(bodyBytes))
	} else if req.GetBody != nil {
		body, err := req.GetBody()
		if err == nil {
			clone.Body = body
		}
	}
	return clone
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
