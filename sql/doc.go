// Package sql wraps a database/sql driver so that every query is normalized
// and traced.
//
// Each statement executed through the wrapped driver is handed to a
// QueryObserver together with the label attached to the context and the
// connection metadata. The default observer runs it through a
// normalizer.Normalizer and:
//
//   - records nothing for queries labelled SCHEMA or CACHE
//   - starts a client span named by the title ("SELECT FROM users") with the
//     redacted statement as "db.statement"
//   - for statements that cannot be normalized, starts a span named by the
//     label without any statement attribute
//
// Raw SQL never reaches a span.
//
// # Quick Start
//
//	import sentinelsql "github.com/kroma-labs/sqlsentinel/sql"
//
//	db, err := sentinelsql.Open("postgres", dsn,
//	    sentinelsql.WithDBSystem("postgresql"),
//	    sentinelsql.WithDBName("myapp"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	ctx = sentinelsql.WithLabel(ctx, "User Load")
//	rows, err := db.QueryContext(ctx, "SELECT * FROM users WHERE id = $1", id)
//	// span "SELECT FROM users", db.statement "SELECT * FROM users WHERE id = ?"
//
// # Driver Registration
//
//	sentinelsql.Register("postgres-instrumented", pq.Driver{},
//	    sentinelsql.WithDBSystem("postgresql"),
//	)
//	db, _ := sql.Open("postgres-instrumented", dsn)
//
// # Custom Observers
//
// WithObserver replaces tracing entirely, for example to feed another APM
// agent:
//
//	obs := sentinelsql.ObserverFunc(func(ctx context.Context, q normalizer.RawQuery) (context.Context, func(error)) {
//	    out := n.Normalize(ctx, q)
//	    return ctx, func(err error) { agent.Record(out, err) }
//	})
//	db, _ := sentinelsql.Open("postgres", dsn, sentinelsql.WithObserver(obs))
//
// # Observability
//
// Traces:
//   - one span per query, named by its normalized title
//   - BEGIN, COMMIT, ROLLBACK and PING spans
//   - attributes: db.system, db.name, db.instance, db.operation,
//     db.statement, db.query.label, db.query.normalization and, with
//     WithFingerprinter, db.query.fingerprint
//
// Metrics:
//   - db.client.operation.duration (histogram by operation and status)
//   - db.client.query.normalizations (counter by result)
//   - db.client.connections.* via RecordPoolMetrics
package sql
