package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kroma-labs/sqlsentinel/normalizer"
)

// telemetry captures spans and metrics emitted by the wrapper.
type telemetry struct {
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	opts   []Option
}

func newTelemetry(t *testing.T) *telemetry {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	return &telemetry{
		spans:  sr,
		reader: reader,
		opts: []Option{
			WithTracerProvider(tp),
			WithMeterProvider(mp),
			// keep parse failures out of test output
			WithNormalizer(normalizer.New(normalizer.WithSettings(normalizer.StaticSettings(false)))),
		},
	}
}

func (tel *telemetry) with(opts ...Option) []Option {
	return append(append([]Option{}, tel.opts...), opts...)
}

func (tel *telemetry) spanNames() []string {
	var names []string
	for _, s := range tel.spans.Ended() {
		names = append(names, s.Name())
	}
	return names
}

func (tel *telemetry) collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, tel.reader.Collect(context.Background(), &rm))
	return rm
}

// findMetric returns the metric with the given name, or false.
func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func attrMap(kvs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

// newMockDB opens an instrumented *sql.DB backed by a sqlmock connection.
func newMockDB(t *testing.T, opts ...Option) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	dsn := "sqlsentinel:" + t.Name()
	mockDB, mock, err := sqlmock.NewWithDSN(dsn, sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	db, err := Open("sqlmock", dsn, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
		_ = mockDB.Close()
	})
	return db, mock
}

// legacyDriver implements only the pre-context driver interfaces, forcing
// database/sql through Prepare and Stmt.Exec.
type legacyDriver struct {
	mu       sync.Mutex
	executed []string
	openErr  error
}

func (d *legacyDriver) Open(_ string) (driver.Conn, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &legacyConn{d: d}, nil
}

func (d *legacyDriver) statements() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.executed...)
}

type legacyConn struct {
	d *legacyDriver
}

func (c *legacyConn) Prepare(query string) (driver.Stmt, error) {
	return &legacyStmt{d: c.d, query: query}, nil
}

func (c *legacyConn) Close() error { return nil }

func (c *legacyConn) Begin() (driver.Tx, error) { return legacyTx{}, nil }

type legacyStmt struct {
	d     *legacyDriver
	query string
}

func (s *legacyStmt) Close() error  { return nil }
func (s *legacyStmt) NumInput() int { return -1 }

func (s *legacyStmt) Exec(_ []driver.Value) (driver.Result, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.executed = append(s.d.executed, s.query)
	return driver.RowsAffected(1), nil
}

func (s *legacyStmt) Query(_ []driver.Value) (driver.Rows, error) {
	return nil, errors.New("legacy driver does not return rows")
}

type legacyTx struct{}

func (legacyTx) Commit() error   { return nil }
func (legacyTx) Rollback() error { return nil }

// contextDriver adds driver.DriverContext on top of legacyDriver.
type contextDriver struct {
	*legacyDriver
	connectorErr error
}

func (d *contextDriver) OpenConnector(_ string) (driver.Connector, error) {
	if d.connectorErr != nil {
		return nil, d.connectorErr
	}
	return &legacyConnector{d: d}, nil
}

type legacyConnector struct {
	d *contextDriver
}

func (c *legacyConnector) Connect(context.Context) (driver.Conn, error) { return c.d.Open("") }
func (c *legacyConnector) Driver() driver.Driver                        { return c.d }

func sqlOpenDB(t *testing.T, c driver.Connector) *sql.DB {
	t.Helper()
	db := sql.OpenDB(c)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sqlmockNew(dsn string) (*sql.DB, sqlmock.Sqlmock, error) {
	return sqlmock.NewWithDSN(dsn, sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
}

// skipDriver declines every direct query with driver.ErrSkip, the way
// drivers that only prepare server-side do, so database/sql retries through
// Prepare.
type skipDriver struct {
	legacyDriver
}

func (d *skipDriver) Open(_ string) (driver.Conn, error) {
	return &skipConn{legacyConn{d: &d.legacyDriver}}, nil
}

type skipConn struct {
	legacyConn
}

func (*skipConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	return nil, driver.ErrSkip
}

func (*skipConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return nil, driver.ErrSkip
}
