package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type txKey struct{}

type TxOptions struct {
	IsoLevel pgx.TxIsoLevel
	// LockTimeout bounds both connection acquisition and every lock wait
	// inside the transaction. Zero means no bound.
	LockTimeout time.Duration
}

// WithTransaction executes function inside a transaction
func WithTransaction(ctx context.Context, db Client, fn func(context.Context) error) error {
	return WithTransactionOptions(ctx, db, TxOptions{}, fn)
}

// WithTransactionOptions runs fn inside a transaction opened with opts. When
// ctx already carries a transaction fn joins it instead.
func WithTransactionOptions(ctx context.Context, db Client, opts TxOptions, fn func(context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	beginCtx := ctx
	if opts.LockTimeout > 0 {
		var cancel context.CancelFunc
		beginCtx, cancel = context.WithTimeout(ctx, opts.LockTimeout)
		defer cancel()
	}

	tx, err := db.BeginTx(beginCtx, pgx.TxOptions{IsoLevel: opts.IsoLevel})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	if opts.LockTimeout > 0 {
		// SET does not accept bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", opts.LockTimeout.Milliseconds())
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	err = fn(txCtx)
	return err
}

// GetDBClient returns transaction from context if present, otherwise returns the default client
func GetDBClient(ctx context.Context, defaultClient Client) Client {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return txClient{tx}
	}
	return defaultClient
}

// txClient adapts pgx.Tx to Client. Begin on a transaction opens a savepoint.
type txClient struct {
	pgx.Tx
}

func (c txClient) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	return c.Tx.Begin(ctx)
}
