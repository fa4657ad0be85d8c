package normalizer

import (
	"context"
	"fmt"
	"maps"
)

// OperationName is the fixed operation name of every normalized query.
const OperationName = "db.sql.query"

// Labels whose queries are never traced: schema lookups and cache hits.
const (
	LabelSchema = "SCHEMA"
	LabelCache  = "CACHE"
)

// RawQuery is one intercepted database call.
type RawQuery struct {
	// Label is the caller supplied name, e.g. "User Load". Empty means absent.
	Label string `json:"label,omitempty"`

	// SQL is the statement text as sent to the database.
	SQL string `json:"sql"`

	// Metadata describes the connection (adapter, database, ...).
	// It is copied into the result unchanged.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Result is the kind of an Outcome.
type Result uint8

const (
	// Normalized means the query has a title and a redacted description.
	Normalized Result = iota
	// Skipped means the query must not be traced at all.
	Skipped
	// Failed means only a fallback title is available.
	Failed
)

func (r Result) String() string {
	switch r {
	case Normalized:
		return "normalized"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MarshalText encodes r by name.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a name produced by MarshalText.
func (r *Result) UnmarshalText(text []byte) error {
	switch string(text) {
	case "normalized":
		*r = Normalized
	case "skipped":
		*r = Skipped
	case "failed":
		*r = Failed
	default:
		return fmt.Errorf("unknown result %q", text)
	}
	return nil
}

// Query is the normalized, PII-free form of a RawQuery.
type Query struct {
	OperationName string            `json:"name"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// HasDescription reports whether a redacted description is present.
func (q Query) HasDescription() bool {
	return q.Description != ""
}

// Outcome is the result of normalizing one RawQuery. Query is zero when
// Result is Skipped; when Result is Failed it carries the fallback title and
// no description.
type Outcome struct {
	Result Result `json:"result"`
	Query  Query  `json:"query"`
}

// Normalizer turns raw SQL into titles and redacted descriptions.
// It holds no per-call state and is safe for concurrent use.
type Normalizer struct {
	reporter Reporter
	settings Settings
}

// New creates a Normalizer with the given options applied.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		reporter: LogReporter{Logger: defaultLogger()},
		settings: StaticSettings(true),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var defaultNormalizer = New()

// Normalize normalizes a query with the default Normalizer.
//
// Example:
//
//	out := normalizer.Normalize("User Load", "SELECT * FROM users WHERE id = 1", nil)
//	// out.Query.Title       == "SELECT FROM users"
//	// out.Query.Description == "SELECT * FROM users WHERE id = ?"
func Normalize(label, sql string, metadata map[string]string) Outcome {
	return defaultNormalizer.Normalize(context.Background(), RawQuery{
		Label:    label,
		SQL:      sql,
		Metadata: metadata,
	})
}

// Normalize filters, tokenizes, titles and redacts q.
//
// Queries labelled SCHEMA or CACHE are Skipped without looking at the SQL.
// A statement without structure, with unclassifiable bytes or without a
// verb and table is Failed: its title falls back to the label (or the SQL
// when there is no label) and the failure is sent to the Reporter unless
// Settings disables it. Normalize never panics.
func (n *Normalizer) Normalize(ctx context.Context, q RawQuery) Outcome {
	out, err := n.Analyze(q)
	if err != nil {
		n.Report(ctx, q, err)
	}
	return out
}

// Analyze is Normalize without the report: a Failed outcome comes back with
// the error that caused it and nothing is sent to the Reporter. Callers that
// only learn later whether the query really ran pass the error to Report
// then.
func (n *Normalizer) Analyze(q RawQuery) (Outcome, error) {
	if q.Label == LabelSchema || q.Label == LabelCache {
		return Outcome{Result: Skipped}, nil
	}

	query, err := normalizeSafe(q)
	if err != nil {
		return fallback(q), err
	}
	return Outcome{Result: Normalized, Query: query}, nil
}

// Report sends a parse failure of q to the Reporter unless Settings
// disables it.
func (n *Normalizer) Report(ctx context.Context, q RawQuery, err error) {
	if err == nil || !n.settings.LogSQLParseErrors() {
		return
	}
	n.reporter.ReportParseError(ctx, q, err)
}

func fallback(q RawQuery) Outcome {
	title := q.Label
	if title == "" {
		title = q.SQL
	}
	return Outcome{
		Result: Failed,
		Query: Query{
			OperationName: OperationName,
			Title:         title,
			Metadata:      maps.Clone(q.Metadata),
		},
	}
}

// normalizeSafe turns a panic anywhere in the pipeline into an error.
func normalizeSafe(q RawQuery) (query Query, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrUnrecognizedInput, r)
		}
	}()
	return normalize(q)
}

func normalize(q RawQuery) (Query, error) {
	tokens, err := Tokenize(q.SQL)
	if err != nil {
		return Query{}, err
	}
	for _, tok := range tokens {
		if tok.Kind == Unknown {
			return Query{}, fmt.Errorf("%w at byte %d", ErrUnrecognizedInput, tok.Span.Start)
		}
	}

	title, err := ExtractTitle(tokens)
	if err != nil {
		return Query{}, err
	}

	return Query{
		OperationName: OperationName,
		Title:         title,
		Description:   Redact(tokens),
		Metadata:      maps.Clone(q.Metadata),
	}, nil
}
