package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

var _ http.RoundTripper = (*otelTransport)(nil)

// otelTransport starts a client span per request and injects its context
// into the request headers.
type otelTransport struct {
	base       http.RoundTripper
	cfg        *config
	propagator propagation.TextMapPropagator
}

func newOtelTransport(base http.RoundTripper, cfg *config) *otelTransport {
	return &otelTransport{
		base: base,
		cfg:  cfg,
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *otelTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	ctx, span := t.cfg.Tracer.Start(req.Context(), "HTTP "+req.Method+" "+req.URL.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLFull(req.URL.Redacted()),
			semconv.ServerAddress(req.URL.Hostname()),
			attribute.String("service.name", t.cfg.ServiceName),
		),
	)
	defer span.End()

	req = req.Clone(ctx)
	t.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.cfg.metrics.recordRequestDuration(ctx, time.Since(start),
			attribute.String("http.request.method", req.Method),
			attribute.String("error.type", errorType(err)),
		)
		return nil, err
	}

	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
	t.cfg.metrics.recordRequestDuration(ctx, time.Since(start),
		attribute.String("http.request.method", req.Method),
		attribute.Int("http.response.status_code", resp.StatusCode),
	)
	return resp, nil
}
