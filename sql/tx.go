package sql

import (
	"context"
	"database/sql/driver"
)

// Compile-time interface check.
var _ driver.Tx = (*otelTx)(nil)

// otelTx traces COMMIT and ROLLBACK as children of the context the
// transaction was started with.
type otelTx struct {
	ctx context.Context
	tx  driver.Tx
	cfg *config
}

func newOtelTx(ctx context.Context, tx driver.Tx, cfg *config) *otelTx {
	return &otelTx{
		ctx: ctx,
		tx:  tx,
		cfg: cfg,
	}
}

// Commit implements driver.Tx.
func (t *otelTx) Commit() error {
	return t.cfg.control(t.ctx, "COMMIT", func(context.Context) error {
		return t.tx.Commit()
	})
}

// Rollback implements driver.Tx.
func (t *otelTx) Rollback() error {
	return t.cfg.control(t.ctx, "ROLLBACK", func(context.Context) error {
		return t.tx.Rollback()
	})
}
