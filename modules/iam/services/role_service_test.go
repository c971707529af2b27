package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/assignment"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/role"
	"github.com/shepherdhq/shepherd/modules/iam/permissions"
)

var roleAdminPerms = []string{
	permissions.SystemRolesRead,
	permissions.SystemRolesCreate,
	permissions.SystemRolesUpdate,
	permissions.SystemRolesDelete,
}

type roleFixture struct {
	svc         *RoleService
	roles       *memRoleRepo
	perms       *memPermissionRepo
	assignments *memAssignmentRepo
	tenantID    uuid.UUID
	ctx         context.Context
}

func newRoleFixture(t *testing.T, catalogCodes ...string) *roleFixture {
	t.Helper()
	tenantID := uuid.New()
	perms := newMemPermissionRepo(catalogCodes...)
	roles := newMemRoleRepo(perms)
	assignments := newMemAssignmentRepo()
	return &roleFixture{
		svc:         NewRoleService(roles, perms, assignments, testBus()),
		roles:       roles,
		perms:       perms,
		assignments: assignments,
		tenantID:    tenantID,
		ctx:         authCtx(tenantID, uuid.New(), roleAdminPerms...),
	}
}

func TestRoleCreate(t *testing.T) {
	f := newRoleFixture(t)

	created, err := f.svc.Create(f.ctx, "  Church Pastor ")
	require.NoError(t, err)
	assert.Equal(t, "Church Pastor", created.Name())
	assert.Equal(t, f.tenantID, created.TenantID())

	_, err = f.svc.Create(f.ctx, "church pastor")
	require.ErrorIs(t, err, ErrConflict, "role names are unique per tenant, case-insensitive")

	_, err = f.svc.Create(f.ctx, "   ")
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Create(authCtx(f.tenantID, uuid.New(), permissions.SystemRolesRead), "Analyst")
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestRoleCreate_SameNameDifferentTenant(t *testing.T) {
	f := newRoleFixture(t)

	_, err := f.svc.Create(f.ctx, "Auditor")
	require.NoError(t, err)

	otherCtx := authCtx(uuid.New(), uuid.New(), roleAdminPerms...)
	_, err = f.svc.Create(otherCtx, "Auditor")
	require.NoError(t, err, "uniqueness is scoped to the tenant")
}

func TestRoleRename(t *testing.T) {
	f := newRoleFixture(t)

	created, err := f.svc.Create(f.ctx, "Zone Leader")
	require.NoError(t, err)
	taken, err := f.svc.Create(f.ctx, "Regional Pastor")
	require.NoError(t, err)

	renamed, err := f.svc.Rename(f.ctx, created.ID(), "Senior Zone Leader")
	require.NoError(t, err)
	assert.Equal(t, "Senior Zone Leader", renamed.Name())

	// Renaming to itself is a no-op, not a conflict.
	_, err = f.svc.Rename(f.ctx, renamed.ID(), "Senior Zone Leader")
	require.NoError(t, err)

	_, err = f.svc.Rename(f.ctx, renamed.ID(), taken.Name())
	require.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.Rename(f.ctx, uuid.New(), "Ghost")
	require.ErrorIs(t, err, role.ErrNotFound)
}

func TestRoleDelete(t *testing.T) {
	f := newRoleFixture(t)

	created, err := f.svc.Create(f.ctx, "Outreach Leader")
	require.NoError(t, err)

	// A role still carried by an assignment cannot be removed.
	f.assignments.add(assignment.New(f.tenantID, uuid.New(), uuid.New(), created.ID(), assignment.ScopeSelf))
	require.ErrorIs(t, f.svc.Delete(f.ctx, created.ID()), ErrHasDependents)

	unused, err := f.svc.Create(f.ctx, "Abandoned")
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(f.ctx, unused.ID()))
	_, err = f.svc.GetByID(f.ctx, unused.ID())
	require.ErrorIs(t, err, role.ErrNotFound)
}

func TestRolePermissions(t *testing.T) {
	f := newRoleFixture(t,
		permissions.RegistryPeopleRead,
		permissions.RegistryAttendanceCreate,
		permissions.FinanceEntriesCreate,
	)

	created, err := f.svc.Create(f.ctx, "Church Pastor")
	require.NoError(t, err)

	err = f.svc.AssignPermissions(f.ctx, created.ID(), []string{
		permissions.RegistryPeopleRead,
		permissions.RegistryAttendanceCreate,
		permissions.RegistryPeopleRead, // duplicates collapse
	})
	require.NoError(t, err)

	granted, err := f.svc.ListPermissions(f.ctx, created.ID())
	require.NoError(t, err)
	require.Len(t, granted, 2)
	assert.Equal(t, permissions.RegistryAttendanceCreate, granted[0].Code())
	assert.Equal(t, permissions.RegistryPeopleRead, granted[1].Code())

	// Assign keeps existing grants; replace swaps the whole set.
	require.NoError(t, f.svc.AssignPermissions(f.ctx, created.ID(), []string{permissions.FinanceEntriesCreate}))
	granted, err = f.svc.ListPermissions(f.ctx, created.ID())
	require.NoError(t, err)
	assert.Len(t, granted, 3)

	require.NoError(t, f.svc.ReplacePermissions(f.ctx, created.ID(), []string{permissions.RegistryPeopleRead}))
	granted, err = f.svc.ListPermissions(f.ctx, created.ID())
	require.NoError(t, err)
	require.Len(t, granted, 1)
	assert.Equal(t, permissions.RegistryPeopleRead, granted[0].Code())

	require.NoError(t, f.svc.RemovePermission(f.ctx, created.ID(), permissions.RegistryPeopleRead))
	granted, err = f.svc.ListPermissions(f.ctx, created.ID())
	require.NoError(t, err)
	assert.Empty(t, granted)
}

func TestRolePermissions_UnknownCodeFailsWholeCall(t *testing.T) {
	f := newRoleFixture(t, permissions.RegistryPeopleRead)

	created, err := f.svc.Create(f.ctx, "Analyst")
	require.NoError(t, err)

	err = f.svc.AssignPermissions(f.ctx, created.ID(), []string{
		permissions.RegistryPeopleRead,
		"registry.people.reed",
	})
	require.ErrorIs(t, err, ErrValidation)

	granted, err := f.svc.ListPermissions(f.ctx, created.ID())
	require.NoError(t, err)
	assert.Empty(t, granted, "nothing is granted when any code is unknown")
}

func TestRoleList_RequiresCoarseGrant(t *testing.T) {
	f := newRoleFixture(t)

	_, err := f.svc.List(context.Background())
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.List(authCtx(f.tenantID, uuid.New()))
	require.ErrorIs(t, err, ErrPermissionDenied)

	roles, err := f.svc.List(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, roles)
}
