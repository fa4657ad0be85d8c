package sql

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kroma-labs/sqlsentinel/normalizer"
)

// metrics holds the metric instruments for database operations.
type metrics struct {
	queryDuration  metric.Float64Histogram
	normalizations metric.Int64Counter

	// set by registerPoolMetrics
	openConnections metric.Int64ObservableGauge
	idleConnections metric.Int64ObservableGauge
	maxConnections  metric.Int64ObservableGauge
	usedConnections metric.Int64ObservableGauge
	waitCount       metric.Int64ObservableCounter
	waitDuration    metric.Float64ObservableCounter
}

// newMetrics creates and registers metric instruments.
func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"db.client.operation.duration",
		metric.WithDescription("Duration of database client operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.001, 0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 10,
		),
	)
	if err != nil {
		return nil, err
	}

	m.normalizations, err = meter.Int64Counter(
		"db.client.query.normalizations",
		metric.WithDescription("Number of queries passed through the normalizer, by result"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// registerPoolMetrics registers connection pool metrics read from
// db.Stats() when collected.
func (m *metrics) registerPoolMetrics(
	meter metric.Meter,
	db *sql.DB,
	attrs []attribute.KeyValue,
) error {
	gauge := func(name, desc string) (metric.Int64ObservableGauge, error) {
		return meter.Int64ObservableGauge(name,
			metric.WithDescription(desc),
			metric.WithUnit("{connection}"),
		)
	}

	var err error
	if m.openConnections, err = gauge("db.client.connections.open",
		"Number of open connections in the pool"); err != nil {
		return err
	}
	if m.idleConnections, err = gauge("db.client.connections.idle",
		"Number of idle connections in the pool"); err != nil {
		return err
	}
	if m.maxConnections, err = gauge("db.client.connections.max",
		"Maximum number of connections allowed in the pool"); err != nil {
		return err
	}
	if m.usedConnections, err = gauge("db.client.connections.used",
		"Number of connections currently in use"); err != nil {
		return err
	}
	if m.waitCount, err = meter.Int64ObservableCounter("db.client.connections.wait_count",
		metric.WithDescription("Total number of times waited for a connection"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return err
	}
	if m.waitDuration, err = meter.Float64ObservableCounter("db.client.connections.wait_duration",
		metric.WithDescription("Total time waited for connections in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	opt := metric.WithAttributes(attrs...)
	_, err = meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			stats := db.Stats()
			o.ObserveInt64(m.openConnections, int64(stats.OpenConnections), opt)
			o.ObserveInt64(m.idleConnections, int64(stats.Idle), opt)
			o.ObserveInt64(m.maxConnections, int64(stats.MaxOpenConnections), opt)
			o.ObserveInt64(m.usedConnections, int64(stats.InUse), opt)
			o.ObserveInt64(m.waitCount, stats.WaitCount, opt)
			o.ObserveFloat64(m.waitDuration, stats.WaitDuration.Seconds(), opt)
			return nil
		},
		m.openConnections,
		m.idleConnections,
		m.maxConnections,
		m.usedConnections,
		m.waitCount,
		m.waitDuration,
	)
	return err
}

// recordQueryDuration records the duration of a query operation.
func (m *metrics) recordQueryDuration(
	ctx context.Context,
	duration time.Duration,
	operation string,
	attrs []attribute.KeyValue,
	err error,
) {
	if m == nil || m.queryDuration == nil {
		return
	}

	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs, attrs...)

	if operation != "" {
		allAttrs = append(allAttrs, attribute.String("db.operation", operation))
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	allAttrs = append(allAttrs, attribute.String("status", status))

	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(allAttrs...))
}

// recordNormalization counts one pass through the normalizer.
func (m *metrics) recordNormalization(ctx context.Context, result normalizer.Result, attrs []attribute.KeyValue) {
	if m == nil || m.normalizations == nil {
		return
	}

	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attrs...)
	allAttrs = append(allAttrs, attribute.String("result", result.String()))

	m.normalizations.Add(ctx, 1, metric.WithAttributes(allAttrs...))
}

// RecordPoolMetrics registers connection pool metrics for a database.
//
// When db was opened through this package the db.system, db.name and
// db.instance attributes are detected automatically; attrs are appended.
//
// Example:
//
//	db, _ := sentinelsql.Open("postgres", dsn,
//	    sentinelsql.WithDBSystem("postgresql"),
//	    sentinelsql.WithDBName("mydb"),
//	)
//	err := sentinelsql.RecordPoolMetrics(db, otel.GetMeterProvider().Meter("myapp"))
func RecordPoolMetrics(db *sql.DB, meter metric.Meter, attrs ...attribute.KeyValue) error {
	m := &metrics{}

	if drv, ok := db.Driver().(*otelDriver); ok && drv.cfg != nil {
		attrs = append(drv.cfg.baseAttributes(), attrs...)
	}

	return m.registerPoolMetrics(meter, db, attrs)
}
