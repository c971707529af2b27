package composables

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/shepherdhq/shepherd/pkg/constants"
)

// InTenantTx runs fn inside a transaction with the tenant RLS variables
// applied, committing on success and rolling back on any error. When the
// context already carries a transaction, fn is nested in a savepoint on it
// instead, so a failure here can never leave partial writes behind in the
// caller's transaction.
func InTenantTx(ctx context.Context, fn func(context.Context) error) error {
	if existing, ok := ctx.Value(constants.TxKey).(pgx.Tx); ok && existing != nil {
		if err := ApplyTenantRLS(ctx, existing); err != nil {
			return err
		}
		return inSavepoint(ctx, existing, fn)
	}

	pool, err := UsePool(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}

	txCtx := WithTx(ctx, tx)
	if err := ApplyTenantRLS(txCtx, tx); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil {
			return errors.Join(err, rErr)
		}
		return err
	}

	if err := fn(txCtx); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil {
			return errors.Join(err, rErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// inSavepoint nests fn under a savepoint (pgx models savepoints as nested
// transactions), releasing it on success and rolling back to it on failure.
// The outer transaction's own commit/rollback stays with its owner.
func inSavepoint(ctx context.Context, tx pgx.Tx, fn func(context.Context) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}

	spCtx := WithTx(ctx, sp)
	if err := fn(spCtx); err != nil {
		if rErr := sp.Rollback(ctx); rErr != nil {
			return errors.Join(err, rErr)
		}
		return err
	}
	return sp.Commit(ctx)
}

func InTenantTxResult[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := InTenantTx(ctx, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	return out, err
}
