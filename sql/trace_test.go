package sql

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kroma-labs/sqlsentinel/normalizer"
)

func normalized(title, description string) normalizer.Outcome {
	return normalizer.Outcome{
		Result: normalizer.Normalized,
		Query: normalizer.Query{
			OperationName: normalizer.OperationName,
			Title:         title,
			Description:   description,
		},
	}
}

func failed(title string) normalizer.Outcome {
	return normalizer.Outcome{
		Result: normalizer.Failed,
		Query:  normalizer.Query{OperationName: normalizer.OperationName, Title: title},
	}
}

func TestSpanName(t *testing.T) {
	type args struct {
		q   normalizer.RawQuery
		out normalizer.Outcome
	}

	tests := []struct {
		name string
		args args
		want string
	}{
		{
			name: "given normalized query, then uses title",
			args: args{
				q:   normalizer.RawQuery{Label: "User Load", SQL: "SELECT * FROM users"},
				out: normalized("SELECT FROM users", "SELECT * FROM users"),
			},
			want: "SELECT FROM users",
		},
		{
			name: "given failed query with label, then uses label",
			args: args{
				q:   normalizer.RawQuery{Label: "User Load", SQL: "!!!"},
				out: failed("User Load"),
			},
			want: "User Load",
		},
		{
			name: "given failed query without label, then uses operation name instead of sql",
			args: args{
				q:   normalizer.RawQuery{SQL: "SELECT secret FROM t WHERE pw = 'x' !"},
				out: failed("SELECT secret FROM t WHERE pw = 'x' !"),
			},
			want: normalizer.OperationName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, spanName(tt.args.q, tt.args.out))
		})
	}
}

func TestOperationFromOutcome(t *testing.T) {
	tests := []struct {
		name string
		out  normalizer.Outcome
		want string
	}{
		{
			name: "given select title, then returns SELECT",
			out:  normalized("SELECT FROM users", ""),
			want: "SELECT",
		},
		{
			name: "given update title, then returns UPDATE",
			out:  normalized("UPDATE users", ""),
			want: "UPDATE",
		},
		{
			name: "given failed outcome, then returns empty",
			out:  failed("INSERT whatever"),
			want: "",
		},
		{
			name: "given skipped outcome, then returns empty",
			out:  normalizer.Outcome{Result: normalizer.Skipped},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, operationFromOutcome(tt.out))
		})
	}
}

func TestQueryAttributes(t *testing.T) {
	fingerprint := func(string) (string, error) { return "a1b2", nil }
	broken := func(string) (string, error) { return "", errors.New("cannot parse") }

	type args struct {
		opts []Option
		q    normalizer.RawQuery
		out  normalizer.Outcome
	}

	tests := []struct {
		name string
		args args
		want map[string]string
	}{
		{
			name: "given normalized query, then records redacted statement and operation",
			args: args{
				opts: []Option{WithDBSystem("postgresql")},
				q:    normalizer.RawQuery{SQL: "SELECT * FROM users WHERE id = 1"},
				out:  normalized("SELECT FROM users", "SELECT * FROM users WHERE id = ?"),
			},
			want: map[string]string{
				"db.system":              "postgresql",
				"db.query.normalization": "normalized",
				"db.operation":           "SELECT",
				"db.statement":           "SELECT * FROM users WHERE id = ?",
			},
		},
		{
			name: "given label, then records label",
			args: args{
				q:   normalizer.RawQuery{Label: "User Load", SQL: "SELECT * FROM users"},
				out: normalized("SELECT FROM users", "SELECT * FROM users"),
			},
			want: map[string]string{
				"db.query.normalization": "normalized",
				"db.operation":           "SELECT",
				"db.query.label":         "User Load",
				"db.statement":           "SELECT * FROM users",
			},
		},
		{
			name: "given disabled query, then omits statement",
			args: args{
				opts: []Option{WithDisableQuery()},
				q:    normalizer.RawQuery{SQL: "SELECT * FROM users"},
				out:  normalized("SELECT FROM users", "SELECT * FROM users"),
			},
			want: map[string]string{
				"db.query.normalization": "normalized",
				"db.operation":           "SELECT",
			},
		},
		{
			name: "given failed query, then records neither statement nor fingerprint",
			args: args{
				opts: []Option{WithFingerprinter(fingerprint)},
				q:    normalizer.RawQuery{SQL: "SELECT 'leak' !"},
				out:  failed("SELECT 'leak' !"),
			},
			want: map[string]string{
				"db.query.normalization": "failed",
			},
		},
		{
			name: "given fingerprinter, then records fingerprint",
			args: args{
				opts: []Option{WithFingerprinter(fingerprint)},
				q:    normalizer.RawQuery{SQL: "DELETE FROM t"},
				out:  normalized("DELETE FROM t", "DELETE FROM t"),
			},
			want: map[string]string{
				"db.query.normalization": "normalized",
				"db.operation":           "DELETE",
				"db.statement":           "DELETE FROM t",
				"db.query.fingerprint":   "a1b2",
			},
		},
		{
			name: "given failing fingerprinter, then omits fingerprint",
			args: args{
				opts: []Option{WithFingerprinter(broken)},
				q:    normalizer.RawQuery{SQL: "DELETE FROM t"},
				out:  normalized("DELETE FROM t", "DELETE FROM t"),
			},
			want: map[string]string{
				"db.query.normalization": "normalized",
				"db.operation":           "DELETE",
				"db.statement":           "DELETE FROM t",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(tt.args.opts...)
			assert.Equal(t, tt.want, attrMap(cfg.queryAttributes(tt.args.q, tt.args.out)))
		})
	}
}
