// Package sqlx opens jmoiron/sqlx handles over the instrumented driver from
// package sql.
//
// Instrumentation happens at the driver level, so the returned *sqlx.DB is
// the plain sqlx type: struct scanning, named parameters and transactions
// all work unchanged, and each statement they send is normalized, redacted
// and traced.
//
// # Quick Start
//
//	import (
//	    sentinelsql "github.com/kroma-labs/sqlsentinel/sql"
//	    sentinelsqlx "github.com/kroma-labs/sqlsentinel/sqlx"
//	)
//
//	db, err := sentinelsqlx.Open("postgres", dsn,
//	    sentinelsql.WithDBSystem("postgresql"),
//	    sentinelsql.WithDBName("mydb"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// # Labels
//
// Labels travel on the context, exactly as with package sql:
//
//	ctx = sentinelsql.WithLabel(ctx, "User Load")
//
//	var user User
//	err := db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", 1)
//	// span: "SELECT FROM users", db.statement: "SELECT * FROM users WHERE id = ?"
//
// # Named Parameters
//
// sqlx rewrites named parameters into bind variables before the statement
// reaches the driver, so literals in the struct never appear in the span:
//
//	_, err := db.NamedExecContext(ctx,
//	    "INSERT INTO users (name, email) VALUES (:name, :email)",
//	    user,
//	)
//	// span: "INSERT INTO users"
package sqlx
