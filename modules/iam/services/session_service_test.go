package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/assignment"
	"github.com/shepherdhq/shepherd/modules/iam/permissions"
	"github.com/shepherdhq/shepherd/pkg/composables"
)

func bindCtx() context.Context {
	return composables.WithTx(context.Background(), nopTx{})
}

func TestSessionBind(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()
	assignments := newMemAssignmentRepo()
	sessions := NewSessionService(assignments)

	churchID := uuid.New()
	outpostID := uuid.New()
	pastorRole := uuid.New()
	auditRole := uuid.New()
	assignments.grantRole(pastorRole, permissions.RegistryPeopleRead, permissions.RegistryAttendanceCreate)
	assignments.grantRole(auditRole, permissions.SystemAuditView, permissions.RegistryPeopleRead)
	assignments.add(assignment.New(tenantID, userID, churchID, pastorRole, assignment.ScopeSelf))
	assignments.add(assignment.New(tenantID, userID, outpostID, auditRole, assignment.ScopeSelf))

	session, err := sessions.Bind(bindCtx(), Principal{TenantID: tenantID, UserID: userID}, tenantID)
	require.NoError(t, err)
	assert.Equal(t, tenantID, session.TenantID)
	assert.Equal(t, userID, session.UserID)

	// The session carries the coarse union across all assignments,
	// deduplicated, regardless of where each assignment is rooted.
	assert.True(t, session.HasPermission(permissions.RegistryPeopleRead))
	assert.True(t, session.HasPermission(permissions.RegistryAttendanceCreate))
	assert.True(t, session.HasPermission(permissions.SystemAuditView))
	assert.False(t, session.HasPermission(permissions.FinanceEntriesCreate))
	assert.Len(t, session.PermissionCodes(), 3)
}

// trackingTx counts the nested transactions opened on it.
type trackingTx struct {
	nopTx
	begun int
}

func (t *trackingTx) Begin(context.Context) (pgx.Tx, error) {
	t.begun++
	return nopTx{}, nil
}

func TestSessionBind_QueriesInsideTenantTransaction(t *testing.T) {
	// The RLS policies read transaction-scoped session variables, so the
	// coarse union query must run inside a transaction bound to the
	// principal, never through the bare pool.
	assignments := newMemAssignmentRepo()
	sessions := NewSessionService(assignments)

	tx := &trackingTx{}
	ctx := composables.WithTx(context.Background(), tx)
	_, err := sessions.Bind(ctx, Principal{TenantID: uuid.New(), UserID: uuid.New()}, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tx.begun)
}

func TestSessionBind_NoAssignments(t *testing.T) {
	sessions := NewSessionService(newMemAssignmentRepo())

	session, err := sessions.Bind(bindCtx(), Principal{TenantID: uuid.New(), UserID: uuid.New()}, uuid.Nil)
	require.NoError(t, err)
	assert.Empty(t, session.PermissionCodes())
}

func TestSessionBind_RejectsMissingIdentity(t *testing.T) {
	sessions := NewSessionService(newMemAssignmentRepo())
	ctx := bindCtx()

	_, err := sessions.Bind(ctx, Principal{TenantID: uuid.Nil, UserID: uuid.New()}, uuid.Nil)
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = sessions.Bind(ctx, Principal{TenantID: uuid.New(), UserID: uuid.Nil}, uuid.Nil)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSessionBind_TenantMismatch(t *testing.T) {
	sessions := NewSessionService(newMemAssignmentRepo())

	principal := Principal{TenantID: uuid.New(), UserID: uuid.New()}
	_, err := sessions.Bind(bindCtx(), principal, uuid.New())
	require.ErrorIs(t, err, ErrTenantMismatch)
}

func TestSessionBind_OtherTenantAssignmentsExcluded(t *testing.T) {
	tenantID := uuid.New()
	otherTenant := uuid.New()
	userID := uuid.New()
	assignments := newMemAssignmentRepo()
	sessions := NewSessionService(assignments)

	roleID := uuid.New()
	assignments.grantRole(roleID, permissions.FinanceEntriesCreate)
	assignments.add(assignment.New(otherTenant, userID, uuid.New(), roleID, assignment.ScopeSubtree))

	session, err := sessions.Bind(bindCtx(), Principal{TenantID: tenantID, UserID: userID}, tenantID)
	require.NoError(t, err)
	assert.False(t, session.HasPermission(permissions.FinanceEntriesCreate))
}
