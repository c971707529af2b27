package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/assignment"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/orgunit"
	"github.com/shepherdhq/shepherd/modules/iam/domain/events"
	"github.com/shepherdhq/shepherd/modules/iam/permissions"
	"github.com/shepherdhq/shepherd/pkg/eventbus"
)

// eventRecorder captures published audit events for assertions.
type eventRecorder struct {
	entries []events.Entry
}

func (r *eventRecorder) Handle(e events.Auditable) {
	r.entries = append(r.entries, e.Audit())
}

func (r *eventRecorder) actions() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action+":"+e.EntityType)
	}
	return out
}

var orgUnitAdminPerms = []string{
	permissions.SystemOrgUnitsRead,
	permissions.SystemOrgUnitsCreate,
	permissions.SystemOrgUnitsUpdate,
	permissions.SystemOrgUnitsDelete,
}

type orgUnitFixture struct {
	svc         *OrgUnitService
	access      *AccessService
	units       *memUnitRepo
	assignments *memAssignmentRepo
	bus         eventbus.EventBus
	recorder    *eventRecorder
	tr          tree
	tenantID    uuid.UUID
	adminID     uuid.UUID
	ctx         context.Context
}

// newOrgUnitFixture wires the service against in-memory repositories with an
// admin holding a subtree assignment at the region root.
func newOrgUnitFixture(t *testing.T) *orgUnitFixture {
	t.Helper()
	f := &orgUnitFixture{
		tenantID:    uuid.New(),
		adminID:     uuid.New(),
		units:       newMemUnitRepo(),
		assignments: newMemAssignmentRepo(),
		bus:         testBus(),
		recorder:    &eventRecorder{},
	}
	f.tr = buildTree(f.units, f.tenantID)
	hierarchy := NewHierarchyService(f.units)
	f.access = NewAccessService(f.assignments, f.units, hierarchy, f.bus)
	f.svc = NewOrgUnitService(f.units, hierarchy, f.access, f.assignments, f.bus)
	f.bus.Subscribe(f.recorder.Handle)

	adminRole := uuid.New()
	f.assignments.grantRole(adminRole, orgUnitAdminPerms...)
	f.assignments.add(assignment.New(f.tenantID, f.adminID, f.tr.region.ID(), adminRole, assignment.ScopeSubtree))

	f.ctx = authCtx(f.tenantID, f.adminID, orgUnitAdminPerms...)
	return f
}

func TestOrgUnitList(t *testing.T) {
	f := newOrgUnitFixture(t)

	all, err := f.svc.List(f.ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 7)

	churches, err := f.svc.List(f.ctx, &orgunit.FindParams{Type: orgunit.TypeChurch})
	require.NoError(t, err)
	assert.Len(t, churches, 2)

	_, err = f.svc.List(context.Background(), nil)
	require.ErrorIs(t, err, ErrUnauthenticated)

	noRead := authCtx(f.tenantID, f.adminID, permissions.SystemOrgUnitsCreate)
	_, err = f.svc.List(noRead, nil)
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestOrgUnitGetSubtree(t *testing.T) {
	f := newOrgUnitFixture(t)

	subtree, err := f.svc.GetSubtree(f.ctx, f.tr.churchX.ID())
	require.NoError(t, err)
	require.Len(t, subtree, 2)
	assert.Equal(t, f.tr.churchX.ID(), subtree[0].ID(), "subtree starts at its root")
	assert.Equal(t, f.tr.outreachY.ID(), subtree[1].ID())
}

func TestOrgUnitGetByID_TargetedDenial(t *testing.T) {
	f := newOrgUnitFixture(t)

	// A leader scoped to Church X holds the coarse read grant but no
	// assignment covering the sibling church.
	leaderID := uuid.New()
	leaderRole := uuid.New()
	f.assignments.grantRole(leaderRole, permissions.SystemOrgUnitsRead)
	f.assignments.add(assignment.New(f.tenantID, leaderID, f.tr.churchX.ID(), leaderRole, assignment.ScopeSelf))
	ctx := authCtx(f.tenantID, leaderID, permissions.SystemOrgUnitsRead)

	got, err := f.svc.GetByID(ctx, f.tr.churchX.ID())
	require.NoError(t, err)
	assert.Equal(t, f.tr.churchX.ID(), got.ID())

	_, err = f.svc.GetByID(ctx, f.tr.churchZ.ID())
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestOrgUnitCreate(t *testing.T) {
	f := newOrgUnitFixture(t)
	parentID := f.tr.group.ID()

	created, err := f.svc.Create(f.ctx, "  Church W  ", orgunit.TypeChurch, &parentID)
	require.NoError(t, err)
	assert.Equal(t, "Church W", created.Name(), "name is trimmed")
	assert.Equal(t, f.tenantID, created.TenantID())
	require.NotNil(t, created.ParentID())
	assert.Equal(t, parentID, *created.ParentID())

	stored, err := f.units.GetByID(f.ctx, f.tenantID, created.ID())
	require.NoError(t, err)
	assert.Equal(t, "Church W", stored.Name())

	require.Len(t, f.recorder.entries, 1)
	entry := f.recorder.entries[0]
	assert.Equal(t, "create", entry.Action)
	assert.Equal(t, "org_units", entry.EntityType)
	assert.Equal(t, f.adminID, entry.ActorID)
	assert.Equal(t, f.tenantID, entry.TenantID)
}

func TestOrgUnitCreate_Validation(t *testing.T) {
	f := newOrgUnitFixture(t)
	parentID := f.tr.group.ID()

	_, err := f.svc.Create(f.ctx, "   ", orgunit.TypeChurch, &parentID)
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Create(f.ctx, "Campus", orgunit.Type("campus"), &parentID)
	require.ErrorIs(t, err, ErrValidation)

	// Type ordering: a zone cannot sit under a church.
	churchID := f.tr.churchX.ID()
	_, err = f.svc.Create(f.ctx, "Inverted Zone", orgunit.TypeZone, &churchID)
	require.ErrorIs(t, err, ErrValidation)

	assert.Empty(t, f.recorder.entries, "rejected creates publish nothing")
}

func TestOrgUnitCreate_SiblingNameConflict(t *testing.T) {
	f := newOrgUnitFixture(t)
	parentID := f.tr.group.ID()

	_, err := f.svc.Create(f.ctx, "church x", orgunit.TypeChurch, &parentID)
	require.ErrorIs(t, err, ErrConflict, "sibling names are case-insensitive")

	// The same name is fine under a different parent.
	churchZID := f.tr.churchZ.ID()
	_, err = f.svc.Create(f.ctx, "Outreach Y", orgunit.TypeOutreach, &churchZID)
	require.NoError(t, err)
}

func TestOrgUnitCreate_Root(t *testing.T) {
	f := newOrgUnitFixture(t)

	created, err := f.svc.Create(f.ctx, "South Region", orgunit.TypeRegion, nil)
	require.NoError(t, err)
	assert.True(t, created.IsRoot())

	// Root creation has no target unit, so only the coarse session grant
	// is consulted.
	noCreate := authCtx(f.tenantID, f.adminID, permissions.SystemOrgUnitsRead)
	_, err = f.svc.Create(noCreate, "East Region", orgunit.TypeRegion, nil)
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestOrgUnitCreate_ParentTargetedDenial(t *testing.T) {
	f := newOrgUnitFixture(t)

	// Coarse grant present, but no assignment covers the target parent.
	strangerID := uuid.New()
	ctx := authCtx(f.tenantID, strangerID, orgUnitAdminPerms...)

	parentID := f.tr.group.ID()
	_, err := f.svc.Create(ctx, "Church V", orgunit.TypeChurch, &parentID)
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestOrgUnitUpdate_Rename(t *testing.T) {
	f := newOrgUnitFixture(t)

	name := "Church X Renewed"
	updated, err := f.svc.Update(f.ctx, f.tr.churchX.ID(), OrgUnitUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name())

	require.Len(t, f.recorder.entries, 1)
	entry := f.recorder.entries[0]
	assert.Equal(t, "update", entry.Action)
	assert.Equal(t, "Church X", entry.Before["name"])
	assert.Equal(t, name, entry.After["name"])
}

func TestOrgUnitUpdate_ReparentOntoDescendantFails(t *testing.T) {
	f := newOrgUnitFixture(t)

	childID := f.tr.churchX.ID()
	_, err := f.svc.Update(f.ctx, f.tr.group.ID(), OrgUnitUpdate{ParentID: &childID, SetParent: true})
	require.ErrorIs(t, err, ErrCycleDetected)

	stored, err := f.units.GetByID(f.ctx, f.tenantID, f.tr.group.ID())
	require.NoError(t, err)
	require.NotNil(t, stored.ParentID())
	assert.Equal(t, f.tr.zone.ID(), *stored.ParentID(), "failed reparent leaves the tree untouched")
}

func TestOrgUnitUpdate_Reparent(t *testing.T) {
	f := newOrgUnitFixture(t)

	// Move Outreach Y from Church X to Church Z.
	newParent := f.tr.churchZ.ID()
	updated, err := f.svc.Update(f.ctx, f.tr.outreachY.ID(), OrgUnitUpdate{ParentID: &newParent, SetParent: true})
	require.NoError(t, err)
	require.NotNil(t, updated.ParentID())
	assert.Equal(t, newParent, *updated.ParentID())
}

func TestOrgUnitDelete(t *testing.T) {
	f := newOrgUnitFixture(t)

	// A unit with children cannot go.
	err := f.svc.Delete(f.ctx, f.tr.churchX.ID())
	require.ErrorIs(t, err, ErrHasDependents)

	// Neither can one with live assignments.
	roleID := uuid.New()
	f.assignments.add(assignment.New(f.tenantID, uuid.New(), f.tr.outreachQ.ID(), roleID, assignment.ScopeSelf))
	err = f.svc.Delete(f.ctx, f.tr.outreachQ.ID())
	require.ErrorIs(t, err, ErrHasDependents)

	// A bare leaf deletes cleanly.
	require.NoError(t, f.svc.Delete(f.ctx, f.tr.outreachY.ID()))
	_, err = f.units.GetByID(f.ctx, f.tenantID, f.tr.outreachY.ID())
	require.ErrorIs(t, err, orgunit.ErrNotFound)

	assert.Contains(t, f.recorder.actions(), "delete:org_units")
}
