package sql

import (
	"context"
	"database/sql/driver"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Compile-time interface checks.
var (
	_ driver.Conn               = (*otelConn)(nil)
	_ driver.ConnPrepareContext = (*otelConn)(nil)
	_ driver.ConnBeginTx        = (*otelConn)(nil)
	_ driver.ExecerContext      = (*otelConn)(nil)
	_ driver.QueryerContext     = (*otelConn)(nil)
	_ driver.Pinger             = (*otelConn)(nil)
	_ driver.SessionResetter    = (*otelConn)(nil)
	_ driver.Validator          = (*otelConn)(nil)
	_ driver.NamedValueChecker  = (*otelConn)(nil)
)

// otelConn routes every statement through the configured QueryObserver.
type otelConn struct {
	conn driver.Conn
	cfg  *config
}

func newOtelConn(conn driver.Conn, cfg *config) *otelConn {
	return &otelConn{
		conn: conn,
		cfg:  cfg,
	}
}

// Prepare implements driver.Conn.
func (c *otelConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return newOtelStmt(stmt, c.cfg, query), nil
}

// Close implements driver.Conn.
func (c *otelConn) Close() error {
	return c.conn.Close()
}

// Begin implements driver.Conn.
//
// Deprecated: Use BeginTx instead.
func (c *otelConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// PrepareContext implements driver.ConnPrepareContext.
func (c *otelConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if preparer, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err = preparer.PrepareContext(ctx, query)
	} else {
		stmt, err = c.conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return newOtelStmt(stmt, c.cfg, query), nil
}

// BeginTx implements driver.ConnBeginTx. Transaction control statements are
// traced directly; they carry no values and skip normalization.
func (c *otelConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	var tx driver.Tx
	err := c.cfg.control(ctx, "BEGIN", func(ctx context.Context) error {
		var err error
		if beginner, ok := c.conn.(driver.ConnBeginTx); ok {
			tx, err = beginner.BeginTx(ctx, opts)
		} else {
			tx, err = c.conn.Begin() //nolint:staticcheck // fallback for older drivers
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return newOtelTx(ctx, tx, c.cfg), nil
}

// ExecContext implements driver.ExecerContext.
func (c *otelConn) ExecContext(
	ctx context.Context,
	query string,
	args []driver.NamedValue,
) (driver.Result, error) {
	execer, ok := c.conn.(driver.ExecerContext)
	if !ok {
		// database/sql falls back to prepare and exec, which is observed there
		return nil, driver.ErrSkip
	}

	ctx, done := c.cfg.observe(ctx, query)
	result, err := execer.ExecContext(ctx, query, args)
	done(err)
	return result, err
}

// QueryContext implements driver.QueryerContext.
func (c *otelConn) QueryContext(
	ctx context.Context,
	query string,
	args []driver.NamedValue,
) (driver.Rows, error) {
	queryer, ok := c.conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}

	ctx, done := c.cfg.observe(ctx, query)
	rows, err := queryer.QueryContext(ctx, query, args)
	done(err)
	return rows, err
}

// Ping implements driver.Pinger.
func (c *otelConn) Ping(ctx context.Context) error {
	pinger, ok := c.conn.(driver.Pinger)
	if !ok {
		return nil
	}
	return c.cfg.control(ctx, "PING", pinger.Ping)
}

// ResetSession implements driver.SessionResetter.
func (c *otelConn) ResetSession(ctx context.Context) error {
	if resetter, ok := c.conn.(driver.SessionResetter); ok {
		return resetter.ResetSession(ctx)
	}
	return nil
}

// IsValid implements driver.Validator.
func (c *otelConn) IsValid() bool {
	if validator, ok := c.conn.(driver.Validator); ok {
		return validator.IsValid()
	}
	return true
}

// CheckNamedValue implements driver.NamedValueChecker so drivers with custom
// argument types keep working behind the wrapper.
func (c *otelConn) CheckNamedValue(nv *driver.NamedValue) error {
	if checker, ok := c.conn.(driver.NamedValueChecker); ok {
		return checker.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

// control traces a connection or transaction control operation such as PING
// or COMMIT under a fixed span name.
func (cfg *config) control(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := cfg.Tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(cfg.baseAttributes()...),
	)
	defer span.End()

	err := fn(ctx)
	cfg.Metrics.recordQueryDuration(ctx, time.Since(start), name, cfg.baseAttributes(), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
