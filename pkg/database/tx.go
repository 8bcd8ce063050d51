package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxRunner runs fn inside a single database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ TxRunner = (*DB)(nil)

// InTx begins a transaction on the pinned connection in ctx, or on the pool when there is none,
// stores it in the context passed to fn, and commits when fn returns nil.
// Any error from fn rolls the transaction back and is returned unchanged.
// Nested calls join the outer transaction.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := GetTx(ctx); ok {
		return fn(ctx)
	}

	var tx pgx.Tx
	if scope, ok := GetScope(ctx); ok {
		tx, err = scope.Conn.Begin(ctx)
	} else {
		tx, err = db.Pool.Begin(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(setTx(ctx, tx)); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
