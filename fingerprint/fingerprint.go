// Package fingerprint computes structural fingerprints of SQL statements.
//
// Two statements that differ only in their constants share a fingerprint,
// which lets a backend group spans without seeing the literals.
package fingerprint

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Postgres returns the libpg_query fingerprint of sql, a 16 character hex
// string. It fails for statements the PostgreSQL parser rejects.
//
// Example:
//
//	db, _ := sentinelsql.Open("postgres", dsn,
//	    sentinelsql.WithFingerprinter(fingerprint.Postgres),
//	)
func Postgres(sql string) (string, error) {
	fp, err := pg_query.Fingerprint(sql)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return fp, nil
}
