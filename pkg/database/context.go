package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const (
	// ScopeKey is the context key for the request-scoped connection.
	ScopeKey contextKey = "dbScope"
	// TxKey is the context key for the active transaction.
	TxKey contextKey = "dbTx"
	// PoolKey is the context key for the shared connection pool.
	PoolKey contextKey = "dbPool"
)

// ErrNoScope is returned when a repository runs without a connection or pool in context.
var ErrNoScope = errors.New("no database scope in context")

// GetScope retrieves the request-scoped connection from context.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok && scope != nil && scope.Conn != nil
}

// SetScope stores the request-scoped connection in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// GetPool retrieves the connection pool from context.
func GetPool(ctx context.Context) (*pgxpool.Pool, bool) {
	pool, ok := ctx.Value(PoolKey).(*pgxpool.Pool)
	return pool, ok && pool != nil
}

// SetPool stores the connection pool in context.
func SetPool(ctx context.Context, pool *pgxpool.Pool) context.Context {
	return context.WithValue(ctx, PoolKey, pool)
}

// GetTx retrieves the active transaction from context.
func GetTx(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(TxKey).(pgx.Tx)
	return tx, ok && tx != nil
}

func setTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, TxKey, tx)
}

// QuerierFrom returns the transaction in ctx if there is one, then a pinned connection,
// then the pool. Repositories call this so they join whatever transaction the caller opened.
func QuerierFrom(ctx context.Context) (Querier, error) {
	if tx, ok := GetTx(ctx); ok {
		return tx, nil
	}
	if scope, ok := GetScope(ctx); ok {
		return scope.Conn, nil
	}
	if pool, ok := GetPool(ctx); ok {
		return pool, nil
	}
	return nil, ErrNoScope
}
