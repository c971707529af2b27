package composables

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTx satisfies pgx.Tx and records the lifecycle of the savepoints
// opened on it.
type recordingTx struct {
	children   []*recordingTx
	committed  bool
	rolledBack bool
}

func (t *recordingTx) Begin(context.Context) (pgx.Tx, error) {
	child := &recordingTx{}
	t.children = append(t.children, child)
	return child, nil
}
func (t *recordingTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *recordingTx) Rollback(context.Context) error { t.rolledBack = true; return nil }
func (t *recordingTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (t *recordingTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *recordingTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *recordingTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (t *recordingTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *recordingTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (t *recordingTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (t *recordingTx) Conn() *pgx.Conn                                  { return nil }

func TestInTenantTx_ReusedTxFailureRollsBackSavepoint(t *testing.T) {
	outer := &recordingTx{}
	ctx := WithTx(context.Background(), outer)

	boom := errors.New("boom")
	err := InTenantTx(ctx, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	require.Len(t, outer.children, 1)
	sp := outer.children[0]
	assert.True(t, sp.rolledBack, "failed work must roll back to the savepoint")
	assert.False(t, sp.committed)

	// The caller's transaction stays untouched either way; were the failed
	// writes not fenced off by the savepoint, a later commit by the owner
	// would persist them.
	assert.False(t, outer.committed)
	assert.False(t, outer.rolledBack)
}

func TestInTenantTx_ReusedTxSuccessReleasesSavepoint(t *testing.T) {
	outer := &recordingTx{}
	ctx := WithTx(context.Background(), outer)

	err := InTenantTx(ctx, func(txCtx context.Context) error {
		got, err := UseTx(txCtx)
		require.NoError(t, err)
		assert.Same(t, outer.children[0], got, "fn must run against the savepoint, not the outer tx")
		return nil
	})
	require.NoError(t, err)

	require.Len(t, outer.children, 1)
	assert.True(t, outer.children[0].committed)
	assert.False(t, outer.children[0].rolledBack)
	assert.False(t, outer.committed)
}

func TestInTenantTx_NoTxNoPool(t *testing.T) {
	err := InTenantTx(context.Background(), func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrNoPool)
}
