package httpserver

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kroma-labs/sqlsentinel/normalizer"
)

const scope = "github.com/kroma-labs/sqlsentinel/httpserver"

// Metrics records request and normalization metrics using OpenTelemetry.
//
// Metrics recorded:
//   - http.server.request.duration: request latency histogram, by route
//   - http.server.active_requests: in-flight request gauge
//   - sqlsentinel.normalizations: normalized queries, by result
//   - sqlsentinel.batch.size: queries per normalize request
type Metrics struct {
	serviceName     string
	requestDuration metric.Float64Histogram
	activeRequests  metric.Int64UpDownCounter
	normalizations  metric.Int64Counter
	batchSize       metric.Int64Histogram
}

// NewMetrics creates the server instruments on mp's meter. A nil mp uses
// the global meter provider.
func NewMetrics(mp metric.MeterProvider, serviceName string) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(scope)

	m := &Metrics{serviceName: serviceName}
	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
		),
	)
	if err != nil {
		return nil, err
	}

	m.activeRequests, err = meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.normalizations, err = meter.Int64Counter(
		"sqlsentinel.normalizations",
		metric.WithDescription("Queries normalized over HTTP, by result"),
	)
	if err != nil {
		return nil, err
	}

	m.batchSize, err = meter.Int64Histogram(
		"sqlsentinel.batch.size",
		metric.WithDescription("Number of queries per normalize request"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Middleware returns middleware that records request metrics. The route
// attribute is the chi route pattern so raw paths never reach a label.
func (m *Metrics) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			base := metric.WithAttributes(
				attribute.String("service.name", m.serviceName),
				attribute.String("http.request.method", r.Method),
			)
			m.activeRequests.Add(r.Context(), 1, base)
			defer m.activeRequests.Add(r.Context(), -1, base)

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			route := routePattern(r)
			if route == "" {
				route = "unmatched"
			}
			m.requestDuration.Record(r.Context(), time.Since(start).Seconds(),
				metric.WithAttributes(
					attribute.String("service.name", m.serviceName),
					attribute.String("http.request.method", r.Method),
					attribute.String("http.route", route),
					attribute.Int("http.response.status_code", wrapped.Status()),
				),
			)
		})
	}
}

// RecordBatch records the size of a batch and the result of every outcome.
func (m *Metrics) RecordBatch(ctx context.Context, outcomes []normalizer.Outcome) {
	if m == nil {
		return
	}
	m.batchSize.Record(ctx, int64(len(outcomes)))

	counts := make(map[normalizer.Result]int64, 3)
	for _, out := range outcomes {
		counts[out.Result]++
	}
	for result, n := range counts {
		m.normalizations.Add(ctx, n, metric.WithAttributes(
			attribute.String("result", result.String()),
		))
	}
}
