package postgresql

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/S1riyS/tnfs/internal/pkg/kerrors"
	"github.com/S1riyS/tnfs/pkg/logging"
	"github.com/S1riyS/tnfs/pkg/logging/slogext"
	"github.com/jackc/pgx/v5"
)

// Transactor runs units of work as serializable transactions whose lock
// waits are bounded by lockTimeout. Contention surfaces as a Timeout fault;
// there is no retry.
type Transactor struct {
	db   Client
	opts TxOptions
}

func NewTransactor(db Client, lockTimeout time.Duration) *Transactor {
	return &Transactor{
		db: db,
		opts: TxOptions{
			IsoLevel:    pgx.Serializable,
			LockTimeout: lockTimeout,
		},
	}
}

func (t *Transactor) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	const op = "postgresql.Transactor.WithinTransaction"

	err := WithTransactionOptions(ctx, t.db, t.opts, fn)
	if err == nil {
		return nil
	}

	if _, isFault := kerrors.As(err); !isFault && IsContention(err) {
		logger := logging.GetLoggerFromContextWithOp(ctx, op)
		logger.Warn("Transaction aborted by contention",
			slogext.Err(err),
			slog.String("condition", ConditionName(err)),
		)
		return kerrors.Timeout(fmt.Sprintf("lock not acquired within %s", t.opts.LockTimeout), err)
	}

	return err
}
