// Package dbtx threads a *sql.Tx through context so that repository methods
// written against database/sql work unchanged whether or not they're
// currently inside a transaction, without a second "tx" parameter on every
// call.
package dbtx

import (
	"context"
	"database/sql"
)

type txKey struct{}

// Executor is the subset of *sql.DB and *sql.Tx that repository code needs.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ContextWithTx returns a copy of ctx carrying tx. Passing a nil tx is a
// no-op: the returned context behaves as if no tx had been set.
func ContextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}

	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the *sql.Tx stashed in ctx, or nil if none.
func TxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// GetExecutor returns the transaction in ctx if present, otherwise db
// itself. Repository methods call this once at the top of every method
// instead of branching on whether they were invoked inside RunInTransaction.
func GetExecutor(ctx context.Context, db *sql.DB) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}

	return db
}

// RunInTransaction begins a transaction on db, runs fn with the transaction
// bound into ctx, and commits on a nil return or rolls back otherwise. A
// panic inside fn rolls back and repropagates.
func RunInTransaction(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	txCtx := ContextWithTx(ctx, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}

		if err != nil {
			_ = tx.Rollback()
			return
		}

		err = tx.Commit()
	}()

	err = fn(txCtx)

	return err
}
