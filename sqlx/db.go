package sqlx

import (
	"context"
	"database/sql/driver"

	"github.com/jmoiron/sqlx"

	sentinelsql "github.com/kroma-labs/sqlsentinel/sql"
)

// Open opens a *sqlx.DB on top of the instrumented driver. Every statement
// issued through it, including Get, Select and NamedExec, is normalized and
// traced by the sql package.
//
// Example:
//
//	db, err := sentinelsqlx.Open("postgres", dsn,
//	    sentinelsql.WithDBSystem("postgresql"),
//	    sentinelsql.WithDBName("mydb"),
//	)
func Open(driverName, dsn string, opts ...sentinelsql.Option) (*sqlx.DB, error) {
	db, err := sentinelsql.Open(driverName, dsn, opts...)
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(db, driverName), nil
}

// Connect opens and verifies a database connection.
// It is equivalent to Open followed by PingContext.
//
// Example:
//
//	db, err := sentinelsqlx.Connect(ctx, "postgres", dsn,
//	    sentinelsql.WithDBSystem("postgresql"),
//	)
func Connect(ctx context.Context, driverName, dsn string, opts ...sentinelsql.Option) (*sqlx.DB, error) {
	db, err := Open(driverName, dsn, opts...)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewDB opens a *sqlx.DB from a connector, for drivers configured in code
// rather than through a DSN. driverName selects the bind variable style.
//
// Example:
//
//	connector, _ := pq.NewConnector(dsn)
//	db := sentinelsqlx.NewDB(connector, "postgres",
//	    sentinelsql.WithDBSystem("postgresql"),
//	)
func NewDB(c driver.Connector, driverName string, opts ...sentinelsql.Option) *sqlx.DB {
	return sqlx.NewDb(sentinelsql.OpenConnector(c, opts...), driverName)
}

// MustConnect is like Connect but panics on error.
func MustConnect(ctx context.Context, driverName, dsn string, opts ...sentinelsql.Option) *sqlx.DB {
	db, err := Connect(ctx, driverName, dsn, opts...)
	if err != nil {
		panic(err)
	}
	return db
}

// MustOpen is like Open but panics on error.
func MustOpen(driverName, dsn string, opts ...sentinelsql.Option) *sqlx.DB {
	db, err := Open(driverName, dsn, opts...)
	if err != nil {
		panic(err)
	}
	return db
}
