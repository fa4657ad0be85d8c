package sql

import (
	"context"
	"database/sql/driver"
)

// Compile-time interface checks.
var (
	_ driver.Stmt             = (*otelStmt)(nil)
	_ driver.StmtExecContext  = (*otelStmt)(nil)
	_ driver.StmtQueryContext = (*otelStmt)(nil)
)

// otelStmt observes each execution of a prepared statement under the SQL it
// was prepared with.
type otelStmt struct {
	stmt  driver.Stmt
	cfg   *config
	query string
}

func newOtelStmt(stmt driver.Stmt, cfg *config, query string) *otelStmt {
	return &otelStmt{
		stmt:  stmt,
		cfg:   cfg,
		query: query,
	}
}

// Close implements driver.Stmt.
func (s *otelStmt) Close() error {
	return s.stmt.Close()
}

// NumInput implements driver.Stmt.
func (s *otelStmt) NumInput() int {
	return s.stmt.NumInput()
}

// Exec implements driver.Stmt.
//
// Deprecated: Use ExecContext instead.
func (s *otelStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), valueToNamedValue(args))
}

// Query implements driver.Stmt.
//
// Deprecated: Use QueryContext instead.
func (s *otelStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), valueToNamedValue(args))
}

// ExecContext implements driver.StmtExecContext.
func (s *otelStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	ctx, done := s.cfg.observe(ctx, s.query)

	var (
		result driver.Result
		err    error
	)
	if execer, ok := s.stmt.(driver.StmtExecContext); ok {
		result, err = execer.ExecContext(ctx, args)
	} else {
		result, err = s.stmt.Exec(namedValueToValue(args)) //nolint:staticcheck // fallback for older drivers
	}

	done(err)
	return result, err
}

// QueryContext implements driver.StmtQueryContext.
func (s *otelStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	ctx, done := s.cfg.observe(ctx, s.query)

	var (
		rows driver.Rows
		err  error
	)
	if queryer, ok := s.stmt.(driver.StmtQueryContext); ok {
		rows, err = queryer.QueryContext(ctx, args)
	} else {
		rows, err = s.stmt.Query(namedValueToValue(args)) //nolint:staticcheck // fallback for older drivers
	}

	done(err)
	return rows, err
}

func namedValueToValue(named []driver.NamedValue) []driver.Value {
	values := make([]driver.Value, len(named))
	for i, nv := range named {
		values[i] = nv.Value
	}
	return values
}

func valueToNamedValue(values []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(values))
	for i, v := range values {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}
