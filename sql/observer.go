package sql

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/sqlsentinel/normalizer"
)

// Metadata keys attached to every RawQuery built by the wrapped driver.
const (
	MetadataAdapter  = "adapter"
	MetadataDatabase = "database"
	MetadataInstance = "instance"
)

// QueryObserver is notified of every query executed through the wrapped
// driver. ObserveQuery is called before the query reaches the database; the
// returned function is called exactly once with the query's error (nil on
// success) when it completes. The returned context is passed to the driver.
//
// A driver may decline a direct query with driver.ErrSkip, after which
// database/sql prepares the statement and runs it again, observing it a
// second time. The finish function then receives driver.ErrSkip and should
// record nothing for that attempt.
type QueryObserver interface {
	ObserveQuery(ctx context.Context, q normalizer.RawQuery) (context.Context, func(error))
}

// ObserverFunc adapts a function to the QueryObserver interface.
type ObserverFunc func(ctx context.Context, q normalizer.RawQuery) (context.Context, func(error))

// ObserveQuery implements QueryObserver.
func (f ObserverFunc) ObserveQuery(ctx context.Context, q normalizer.RawQuery) (context.Context, func(error)) {
	return f(ctx, q)
}

type labelKey struct{}

// WithLabel attaches a query label such as "User Load" to ctx. Queries run
// with the returned context carry the label into normalization. The labels
// normalizer.LabelSchema and normalizer.LabelCache suppress tracing.
//
// Example:
//
//	ctx = sentinelsql.WithLabel(ctx, "User Load")
//	row := db.QueryRowContext(ctx, "SELECT * FROM users WHERE id = $1", id)
func WithLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, labelKey{}, label)
}

// LabelFromContext returns the label set by WithLabel, or "".
func LabelFromContext(ctx context.Context) string {
	label, _ := ctx.Value(labelKey{}).(string)
	return label
}

// observe builds the RawQuery for query and hands it to the configured observer.
func (cfg *config) observe(ctx context.Context, query string) (context.Context, func(error)) {
	return cfg.Observer.ObserveQuery(ctx, normalizer.RawQuery{
		Label:    LabelFromContext(ctx),
		SQL:      query,
		Metadata: cfg.metadata,
	})
}

// tracingObserver normalizes each query and records a client span and
// metrics for it.
type tracingObserver struct {
	cfg *config
}

func (o *tracingObserver) ObserveQuery(ctx context.Context, q normalizer.RawQuery) (context.Context, func(error)) {
	start := time.Now()
	out, parseErr := o.cfg.Normalizer.Analyze(q)

	if out.Result == normalizer.Skipped {
		return ctx, func(err error) {
			if !errors.Is(err, driver.ErrSkip) {
				o.cfg.Metrics.recordNormalization(ctx, out.Result, o.cfg.baseAttributes())
			}
		}
	}

	operation := operationFromOutcome(out)
	ctx, span := o.cfg.Tracer.Start(ctx, spanName(q, out),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(o.cfg.queryAttributes(q, out)...),
	)

	return ctx, func(err error) {
		// an unended span is never exported; the prepared retry gets its own
		if errors.Is(err, driver.ErrSkip) {
			return
		}
		defer span.End()

		o.cfg.Normalizer.Report(ctx, q, parseErr)
		o.cfg.Metrics.recordNormalization(ctx, out.Result, o.cfg.baseAttributes())
		o.cfg.Metrics.recordQueryDuration(ctx, time.Since(start), operation, o.cfg.baseAttributes(), err)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
}
