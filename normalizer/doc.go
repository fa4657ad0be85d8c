// Package normalizer converts raw SQL into a stable, PII-free form suitable
// for aggregating database spans.
//
// Every statement goes through a fixed pipeline:
//
//  1. Filter: queries labelled "SCHEMA" or "CACHE" are skipped.
//  2. Tokenize: a single-pass lexer produces a lossless token stream.
//  3. ExtractTitle: the verb and primary table, e.g. "SELECT FROM users".
//  4. Redact: literals and bind parameters become "?".
//
// # Quick Start
//
//	out := normalizer.Normalize("User Load", `SELECT * FROM "users" WHERE id = $1`, nil)
//	switch out.Result {
//	case normalizer.Skipped:
//	    // do not trace
//	case normalizer.Normalized:
//	    span.SetName(out.Query.Title) // SELECT FROM users
//	    span.SetAttributes(attribute.String("db.statement", out.Query.Description))
//	case normalizer.Failed:
//	    span.SetName(out.Query.Title) // User Load
//	}
//
// # Configuration
//
// Failures are reported through a Reporter (zerolog by default). Reporting can
// be switched off at runtime with a Settings source whose
// LogSQLParseErrors returns false; the value is read on every call.
//
//	n := normalizer.New(
//	    normalizer.WithLogger(logger),
//	    normalizer.WithSettings(src),
//	)
//	out := n.Normalize(ctx, normalizer.RawQuery{Label: "User Load", SQL: sql})
package normalizer
