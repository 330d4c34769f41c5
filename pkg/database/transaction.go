package database

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	pkgerrors "github.com/pkg/errors"
)

type txContextKey struct{}

// Querier is the statement surface shared by DB and Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Tx is a transaction handle. Only the handle that began the transaction can end it;
// handles joined from a context commit and roll back as no-ops.
type Tx interface {
	Querier
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction is the owning handle of an sqlx transaction
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger
	closed atomic.Bool
}

func (t *Transaction) IsOpen() bool {
	return !t.closed.Load()
}

func (t *Transaction) Commit(ctx context.Context) error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Error("error while committing transaction")
		return pkgerrors.Wrap(err, "error while committing transaction")
	}
	return nil
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := t.Tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		t.logger.WithContext(ctx).WithError(err).Error("error while rolling back transaction")
		return pkgerrors.Wrap(err, "error while rolling back transaction")
	}
	return nil
}

// joined is a borrowed view of a transaction some caller further up the stack owns
type joined struct {
	*Transaction
}

func (joined) Commit(context.Context) error   { return nil }
func (joined) Rollback(context.Context) error { return nil }

func openTx(ctx context.Context) *Transaction {
	tx, _ := ctx.Value(txContextKey{}).(*Transaction)
	if tx == nil || !tx.IsOpen() {
		return nil
	}
	return tx
}

// GetTx joins the transaction already open on ctx, or begins one and returns a context carrying it.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if tx := openTx(ctx); tx != nil {
		return ctx, joined{tx}, nil
	}

	sqlTx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("error while beginning transaction")
		return ctx, nil, pkgerrors.Wrap(err, "error while beginning transaction")
	}

	tx := &Transaction{Tx: sqlTx, logger: logger}
	return context.WithValue(ctx, txContextKey{}, tx), tx, nil
}

// WithTx runs fn inside a transaction, committing when it returns nil and rolling back
// when it fails or panics.
func WithTx(ctx context.Context, db DB, fn func(ctx context.Context, tx Tx) error) (err error) {
	ctx, tx, err := db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Conn returns the transaction open on ctx, falling back to db.
func Conn(ctx context.Context, db DB) Querier {
	if tx := openTx(ctx); tx != nil {
		return tx
	}
	return db
}
