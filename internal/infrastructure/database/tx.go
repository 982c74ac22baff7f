package database

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// WithTx binds a transaction to the context so downstream writers join it.
// Used by the conversation repository's lock helper: everything written
// while the per-conversation lock is held must commit or roll back together.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Conn returns the transaction bound to ctx, or the fallback connection
// scoped to ctx when none is bound.
func Conn(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return fallback.WithContext(ctx)
}
