package sql

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kroma-labs/sqlsentinel/normalizer"
)

// spanName returns the span name for a traced query: the normalized title,
// or for a failed normalization the label, falling back to
// normalizer.OperationName. The raw SQL is never used as a span name.
//
// Example:
//
//	"SELECT * FROM users WHERE id = 1" -> "SELECT FROM users"
//	"!!!" labelled "User Load"         -> "User Load"
//	"!!!" without a label              -> "db.sql.query"
func spanName(q normalizer.RawQuery, out normalizer.Outcome) string {
	if out.Result == normalizer.Normalized {
		return out.Query.Title
	}
	if q.Label != "" {
		return q.Label
	}
	return normalizer.OperationName
}

// operationFromOutcome returns the verb of a normalized title, e.g. "SELECT"
// for "SELECT FROM users", or "" when normalization failed.
func operationFromOutcome(out normalizer.Outcome) string {
	if out.Result != normalizer.Normalized {
		return ""
	}
	verb, _, _ := strings.Cut(out.Query.Title, " ")
	return verb
}

// baseAttributes returns the base attributes for all spans and metrics.
func (cfg *config) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if cfg.DBSystem != "" {
		attrs = append(attrs, attribute.String("db.system", cfg.DBSystem))
	}
	if cfg.DBName != "" {
		attrs = append(attrs, attribute.String("db.name", cfg.DBName))
	}
	if cfg.InstanceName != "" {
		attrs = append(attrs, attribute.String("db.instance", cfg.InstanceName))
	}
	return attrs
}

// queryAttributes returns attributes for query spans. Only the redacted
// description is recorded as the statement.
func (cfg *config) queryAttributes(q normalizer.RawQuery, out normalizer.Outcome) []attribute.KeyValue {
	attrs := cfg.baseAttributes()
	attrs = append(attrs, attribute.String("db.query.normalization", out.Result.String()))

	if op := operationFromOutcome(out); op != "" {
		attrs = append(attrs, attribute.String("db.operation", op))
	}
	if q.Label != "" {
		attrs = append(attrs, attribute.String("db.query.label", q.Label))
	}
	if !cfg.DisableQuery && out.Query.HasDescription() {
		attrs = append(attrs, attribute.String("db.statement", out.Query.Description))
	}
	if cfg.Fingerprinter != nil && out.Result == normalizer.Normalized {
		if fp, err := cfg.Fingerprinter(q.SQL); err == nil && fp != "" {
			attrs = append(attrs, attribute.String("db.query.fingerprint", fp))
		}
	}

	return attrs
}
