package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/assignment"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/orgunit"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/permission"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/role"
	"github.com/shepherdhq/shepherd/pkg/composables"
	"github.com/shepherdhq/shepherd/pkg/eventbus"
	"github.com/shepherdhq/shepherd/pkg/logging"

	"github.com/sirupsen/logrus"
)

// nopTx satisfies pgx.Tx so transaction composables run against in-memory
// repositories.
type nopTx struct{}

func (nopTx) Begin(context.Context) (pgx.Tx, error) { return nopTx{}, nil }
func (nopTx) Commit(context.Context) error          { return nil }
func (nopTx) Rollback(context.Context) error        { return nil }
func (nopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (nopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (nopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (nopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (nopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (nopTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (nopTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (nopTx) Conn() *pgx.Conn                                  { return nil }

func testBus() eventbus.EventBus {
	return eventbus.NewEventPublisher(logging.ConsoleLogger(logrus.PanicLevel))
}

// authCtx builds a context carrying a bound session and a usable fake
// transaction.
func authCtx(tenantID, userID uuid.UUID, perms ...string) context.Context {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	ctx := composables.WithTx(context.Background(), nopTx{})
	return composables.WithSession(ctx, &composables.Session{
		TenantID:    tenantID,
		UserID:      userID,
		Permissions: set,
	})
}

// --- org unit repository fake ---

type memUnitRepo struct {
	units map[uuid.UUID]orgunit.OrgUnit
}

func newMemUnitRepo() *memUnitRepo {
	return &memUnitRepo{units: make(map[uuid.UUID]orgunit.OrgUnit)}
}

func (r *memUnitRepo) add(u orgunit.OrgUnit) orgunit.OrgUnit {
	r.units[u.ID()] = u
	return u
}

func (r *memUnitRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (orgunit.OrgUnit, error) {
	u, ok := r.units[id]
	if !ok || u.TenantID() != tenantID {
		return orgunit.OrgUnit{}, orgunit.ErrNotFound
	}
	return u, nil
}

func (r *memUnitRepo) GetChildren(_ context.Context, tenantID, parentID uuid.UUID) ([]orgunit.OrgUnit, error) {
	out := make([]orgunit.OrgUnit, 0)
	for _, u := range r.units {
		if u.TenantID() == tenantID && u.ParentID() != nil && *u.ParentID() == parentID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (r *memUnitRepo) List(_ context.Context, tenantID uuid.UUID, params *orgunit.FindParams) ([]orgunit.OrgUnit, error) {
	out := make([]orgunit.OrgUnit, 0)
	for _, u := range r.units {
		if u.TenantID() != tenantID {
			continue
		}
		if params != nil && params.Type != "" && u.Type() != params.Type {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (r *memUnitRepo) ExistsSiblingNamed(_ context.Context, tenantID uuid.UUID, parentID *uuid.UUID, name string, excludeID uuid.UUID) (bool, error) {
	for _, u := range r.units {
		if u.TenantID() != tenantID || u.ID() == excludeID {
			continue
		}
		sameParent := (u.ParentID() == nil && parentID == nil) ||
			(u.ParentID() != nil && parentID != nil && *u.ParentID() == *parentID)
		if sameParent && strings.EqualFold(u.Name(), name) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memUnitRepo) Create(_ context.Context, unit orgunit.OrgUnit) (orgunit.OrgUnit, error) {
	r.units[unit.ID()] = unit
	return unit, nil
}

func (r *memUnitRepo) Update(_ context.Context, unit orgunit.OrgUnit) (orgunit.OrgUnit, error) {
	if _, ok := r.units[unit.ID()]; !ok {
		return orgunit.OrgUnit{}, orgunit.ErrNotFound
	}
	r.units[unit.ID()] = unit
	return unit, nil
}

func (r *memUnitRepo) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	u, ok := r.units[id]
	if !ok || u.TenantID() != tenantID {
		return orgunit.ErrNotFound
	}
	delete(r.units, id)
	return nil
}

// --- assignment repository fake ---

type memAssignmentRepo struct {
	assignments map[uuid.UUID]assignment.Assignment
	permsByRole map[uuid.UUID][]string
}

func newMemAssignmentRepo() *memAssignmentRepo {
	return &memAssignmentRepo{
		assignments: make(map[uuid.UUID]assignment.Assignment),
		permsByRole: make(map[uuid.UUID][]string),
	}
}

func (r *memAssignmentRepo) add(a assignment.Assignment) assignment.Assignment {
	r.assignments[a.ID()] = a
	return a
}

func (r *memAssignmentRepo) grantRole(roleID uuid.UUID, codes ...string) {
	r.permsByRole[roleID] = append(r.permsByRole[roleID], codes...)
}

func (r *memAssignmentRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (assignment.Assignment, error) {
	a, ok := r.assignments[id]
	if !ok || a.TenantID() != tenantID {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	return a, nil
}

func (r *memAssignmentRepo) ListByUser(_ context.Context, tenantID, userID uuid.UUID) ([]assignment.Assignment, error) {
	out := make([]assignment.Assignment, 0)
	for _, a := range r.assignments {
		if a.TenantID() == tenantID && a.UserID() == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAssignmentRepo) ListByOrgUnit(_ context.Context, tenantID, orgUnitID uuid.UUID) ([]assignment.Assignment, error) {
	out := make([]assignment.Assignment, 0)
	for _, a := range r.assignments {
		if a.TenantID() == tenantID && a.OrgUnitID() == orgUnitID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAssignmentRepo) ExistsForUserAndUnit(_ context.Context, tenantID, userID, orgUnitID uuid.UUID) (bool, error) {
	for _, a := range r.assignments {
		if a.TenantID() == tenantID && a.UserID() == userID && a.OrgUnitID() == orgUnitID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memAssignmentRepo) CountByOrgUnit(_ context.Context, tenantID, orgUnitID uuid.UUID) (int64, error) {
	var n int64
	for _, a := range r.assignments {
		if a.TenantID() == tenantID && a.OrgUnitID() == orgUnitID {
			n++
		}
	}
	return n, nil
}

func (r *memAssignmentRepo) CountByRole(_ context.Context, tenantID, roleID uuid.UUID) (int64, error) {
	var n int64
	for _, a := range r.assignments {
		if a.TenantID() == tenantID && a.RoleID() == roleID {
			n++
		}
	}
	return n, nil
}

func (r *memAssignmentRepo) Create(_ context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	r.assignments[a.ID()] = a
	return a, nil
}

func (r *memAssignmentRepo) Update(_ context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	if _, ok := r.assignments[a.ID()]; !ok {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	r.assignments[a.ID()] = a
	return a, nil
}

func (r *memAssignmentRepo) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	a, ok := r.assignments[id]
	if !ok || a.TenantID() != tenantID {
		return assignment.ErrNotFound
	}
	delete(r.assignments, id)
	return nil
}

func (r *memAssignmentRepo) AddCustomUnit(_ context.Context, assignmentID, orgUnitID uuid.UUID) error {
	a, ok := r.assignments[assignmentID]
	if !ok {
		return assignment.ErrNotFound
	}
	r.assignments[assignmentID] = a.WithCustomUnits(append(a.CustomUnitIDs(), orgUnitID))
	return nil
}

func (r *memAssignmentRepo) RemoveCustomUnit(_ context.Context, assignmentID, orgUnitID uuid.UUID) error {
	a, ok := r.assignments[assignmentID]
	if !ok {
		return assignment.ErrNotFound
	}
	kept := make([]uuid.UUID, 0)
	for _, id := range a.CustomUnitIDs() {
		if id != orgUnitID {
			kept = append(kept, id)
		}
	}
	r.assignments[assignmentID] = a.WithCustomUnits(kept)
	return nil
}

func (r *memAssignmentRepo) PermissionCodes(_ context.Context, tenantID, userID uuid.UUID) ([]string, error) {
	seen := make(map[string]struct{})
	for _, a := range r.assignments {
		if a.TenantID() != tenantID || a.UserID() != userID {
			continue
		}
		for _, code := range r.permsByRole[a.RoleID()] {
			seen[code] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for code := range seen {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

func (r *memAssignmentRepo) PermissionCodesByRole(_ context.Context, roleIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	out := make(map[uuid.UUID][]string, len(roleIDs))
	for _, id := range roleIDs {
		out[id] = append([]string(nil), r.permsByRole[id]...)
	}
	return out, nil
}

// --- role repository fake ---

type memRoleRepo struct {
	roles   map[uuid.UUID]role.Role
	perms   map[uuid.UUID]map[uuid.UUID]permission.Permission
	catalog *memPermissionRepo
}

func newMemRoleRepo(catalog *memPermissionRepo) *memRoleRepo {
	return &memRoleRepo{
		roles:   make(map[uuid.UUID]role.Role),
		perms:   make(map[uuid.UUID]map[uuid.UUID]permission.Permission),
		catalog: catalog,
	}
}

func (r *memRoleRepo) add(rl role.Role) role.Role {
	r.roles[rl.ID()] = rl
	return rl
}

func (r *memRoleRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (role.Role, error) {
	rl, ok := r.roles[id]
	if !ok || rl.TenantID() != tenantID {
		return role.Role{}, role.ErrNotFound
	}
	return rl, nil
}

func (r *memRoleRepo) GetByName(_ context.Context, tenantID uuid.UUID, name string) (role.Role, error) {
	for _, rl := range r.roles {
		if rl.TenantID() == tenantID && strings.EqualFold(rl.Name(), name) {
			return rl, nil
		}
	}
	return role.Role{}, role.ErrNotFound
}

func (r *memRoleRepo) List(_ context.Context, tenantID uuid.UUID) ([]role.Role, error) {
	out := make([]role.Role, 0)
	for _, rl := range r.roles {
		if rl.TenantID() == tenantID {
			out = append(out, rl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (r *memRoleRepo) Create(_ context.Context, rl role.Role) (role.Role, error) {
	r.roles[rl.ID()] = rl
	return rl, nil
}

func (r *memRoleRepo) Update(_ context.Context, rl role.Role) (role.Role, error) {
	if _, ok := r.roles[rl.ID()]; !ok {
		return role.Role{}, role.ErrNotFound
	}
	r.roles[rl.ID()] = rl
	return rl, nil
}

func (r *memRoleRepo) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	rl, ok := r.roles[id]
	if !ok || rl.TenantID() != tenantID {
		return role.ErrNotFound
	}
	delete(r.roles, id)
	return nil
}

func (r *memRoleRepo) ListPermissions(_ context.Context, roleID uuid.UUID) ([]permission.Permission, error) {
	out := make([]permission.Permission, 0)
	for _, p := range r.perms[roleID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out, nil
}

func (r *memRoleRepo) AssignPermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	if r.perms[roleID] == nil {
		r.perms[roleID] = make(map[uuid.UUID]permission.Permission)
	}
	for _, id := range permissionIDs {
		p, err := r.catalog.GetByID(ctx, id)
		if err != nil {
			p = permission.Hydrate(id, "", "")
		}
		r.perms[roleID][id] = p
	}
	return nil
}

func (r *memRoleRepo) RemovePermission(_ context.Context, roleID, permissionID uuid.UUID) error {
	delete(r.perms[roleID], permissionID)
	return nil
}

func (r *memRoleRepo) ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	r.perms[roleID] = make(map[uuid.UUID]permission.Permission)
	return r.AssignPermissions(ctx, roleID, permissionIDs)
}

// --- permission repository fake ---

type memPermissionRepo struct {
	byCode map[string]permission.Permission
}

func newMemPermissionRepo(codes ...string) *memPermissionRepo {
	r := &memPermissionRepo{byCode: make(map[string]permission.Permission)}
	for _, code := range codes {
		p, _ := permission.New(code, "")
		r.byCode[code] = p
	}
	return r
}

func (r *memPermissionRepo) List(context.Context) ([]permission.Permission, error) {
	out := make([]permission.Permission, 0, len(r.byCode))
	for _, p := range r.byCode {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code() < out[j].Code() })
	return out, nil
}

func (r *memPermissionRepo) GetByID(_ context.Context, id uuid.UUID) (permission.Permission, error) {
	for _, p := range r.byCode {
		if p.ID() == id {
			return p, nil
		}
	}
	return permission.Permission{}, permission.ErrNotFound
}

func (r *memPermissionRepo) GetByCode(_ context.Context, code string) (permission.Permission, error) {
	p, ok := r.byCode[code]
	if !ok {
		return permission.Permission{}, permission.ErrNotFound
	}
	return p, nil
}

func (r *memPermissionRepo) Ensure(_ context.Context, perms []permission.Permission) error {
	for _, p := range perms {
		if _, ok := r.byCode[p.Code()]; !ok {
			r.byCode[p.Code()] = p
		}
	}
	return nil
}
