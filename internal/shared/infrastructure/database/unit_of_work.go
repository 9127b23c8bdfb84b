package database

import (
	"context"
	"errors"
)

// ErrNoTransaction is returned when Commit or Rollback finds no transaction,
// and by row locks that only make sense inside one.
var ErrNoTransaction = errors.New("no transaction in context")

type txKey struct{}

// txState is the transaction carried by a context. Only the unit that began
// it may finish it.
type txState struct {
	tx    Transaction
	owner bool
}

func txFrom(ctx context.Context) (txState, bool) {
	st, ok := ctx.Value(txKey{}).(txState)
	return st, ok && st.tx != nil
}

// InTransaction reports whether ctx carries a unit of work.
func InTransaction(ctx context.Context) bool {
	_, ok := txFrom(ctx)
	return ok
}

// ExecutorFromContext returns the transaction of ctx, or conn outside one.
// Repositories call it on every statement so they join a unit of work
// without knowing about it.
func ExecutorFromContext(ctx context.Context, conn Connection) Executor {
	if st, ok := txFrom(ctx); ok {
		return st.tx
	}
	return conn
}

// UnitOfWork implements application.UnitOfWork on a Connection of either
// driver.
type UnitOfWork struct {
	conn Connection
}

// NewUnitOfWork creates a unit of work over conn.
func NewUnitOfWork(conn Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

// Begin starts a transaction. A context that already carries one joins it,
// so nested services share the outer commit.
func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if st, ok := txFrom(ctx); ok {
		return context.WithValue(ctx, txKey{}, txState{tx: st.tx}), nil
	}
	tx, err := u.conn.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, txKey{}, txState{tx: tx, owner: true}), nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	return u.finish(ctx, Transaction.Commit)
}

func (u *UnitOfWork) Rollback(ctx context.Context) error {
	return u.finish(ctx, Transaction.Rollback)
}

func (u *UnitOfWork) finish(ctx context.Context, end func(Transaction, context.Context) error) error {
	st, ok := txFrom(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !st.owner {
		return nil
	}
	return end(st.tx, ctx)
}
