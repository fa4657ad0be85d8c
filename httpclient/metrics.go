package httpclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the client instruments. A nil *metrics records nothing.
type metrics struct {
	requestDuration metric.Float64Histogram
	retryAttempts   metric.Int64Counter
	retryExhausted  metric.Int64Counter
	breakerRequests metric.Int64Counter
	base            metric.MeasurementOption
}

func newMetrics(meter metric.Meter, serviceName string) (*metrics, error) {
	m := &metrics{
		base: metric.WithAttributes(attribute.String("service.name", serviceName)),
	}
	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of HTTP client requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
		),
	)
	if err != nil {
		return nil, err
	}

	m.retryAttempts, err = meter.Int64Counter(
		"http.client.retry.attempts",
		metric.WithDescription("Number of retried HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.retryExhausted, err = meter.Int64Counter(
		"http.client.retry.exhausted",
		metric.WithDescription("Number of requests that failed after all retries"),
	)
	if err != nil {
		return nil, err
	}

	m.breakerRequests, err = meter.Int64Counter(
		"http.client.breaker.requests",
		metric.WithDescription("Requests seen by the circuit breaker, by result"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metrics) recordRequestDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	m.requestDuration.Record(ctx, d.Seconds(), m.base, metric.WithAttributes(attrs...))
}

func (m *metrics) recordRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.retryAttempts.Add(ctx, 1, m.base)
}

func (m *metrics) recordRetryExhausted(ctx context.Context) {
	if m == nil {
		return
	}
	m.retryExhausted.Add(ctx, 1, m.base)
}

func (m *metrics) recordBreakerRequest(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.breakerRequests.Add(ctx, 1, m.base, metric.WithAttributes(attribute.String("result", result)))
}
