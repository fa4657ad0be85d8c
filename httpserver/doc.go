// Package httpserver serves the normalizer over HTTP for agents that do not
// link it directly.
//
// # Endpoints
//
//	POST /v1/normalize   normalize a batch of queries
//	GET  /livez          liveness probe
//	GET  /readyz         readiness probe
//	GET  /metrics        Prometheus scrape, when WithMetricsHandler is set
//
// A normalize request carries the raw queries:
//
//	{"queries": [{"label": "User Load", "sql": "SELECT * FROM users WHERE id = 1"}]}
//
// and the response carries one outcome per query, in order:
//
//	{"data": [{"result": "normalized", "query": {
//	    "name": "db.sql.query",
//	    "title": "SELECT FROM users",
//	    "description": "SELECT * FROM users WHERE id = ?"
//	}}]}
//
// # Quick Start
//
//	server := httpserver.New(
//	    httpserver.WithAddr(":8080"),
//	    httpserver.WithNormalizer(n),
//	    httpserver.WithLogger(logger),
//	    httpserver.WithRateLimit(500, 1000),
//	)
//
//	// Blocks until SIGTERM, SIGINT or ctx is cancelled.
//	if err := server.ListenAndServe(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Middleware
//
// Every request passes through RequestID, Tracing, the metrics middleware,
// Logger and Recovery, in that order. Request bodies are never logged:
// they hold unredacted SQL.
package httpserver
