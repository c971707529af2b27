package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/assignment"
	"github.com/shepherdhq/shepherd/pkg/composables"
)

const assignmentColumns = `id, tenant_id, user_id, org_unit_id, role_id, scope_type, created_at, updated_at`

type AssignmentRepository struct{}

func NewAssignmentRepository() assignment.Repository {
	return &AssignmentRepository{}
}

func (r *AssignmentRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignment.Assignment{}, err
	}
	row := tx.QueryRow(ctx, `
SELECT `+assignmentColumns+`
FROM org_assignments
WHERE tenant_id=$1 AND id=$2
`, pgUUID(tenantID), pgUUID(id))
	a, err := scanAssignment(row)
	if err != nil {
		return assignment.Assignment{}, mapPgError(err, assignment.ErrNotFound)
	}
	withUnits, err := r.loadCustomUnits(ctx, []assignment.Assignment{a})
	if err != nil {
		return assignment.Assignment{}, err
	}
	return withUnits[0], nil
}

func (r *AssignmentRepository) ListByUser(ctx context.Context, tenantID, userID uuid.UUID) ([]assignment.Assignment, error) {
	return r.list(ctx, `
SELECT `+assignmentColumns+`
FROM org_assignments
WHERE tenant_id=$1 AND user_id=$2
ORDER BY created_at
`, pgUUID(tenantID), pgUUID(userID))
}

func (r *AssignmentRepository) ListByOrgUnit(ctx context.Context, tenantID, orgUnitID uuid.UUID) ([]assignment.Assignment, error) {
	return r.list(ctx, `
SELECT `+assignmentColumns+`
FROM org_assignments
WHERE tenant_id=$1 AND org_unit_id=$2
ORDER BY created_at
`, pgUUID(tenantID), pgUUID(orgUnitID))
}

func (r *AssignmentRepository) list(ctx context.Context, query string, args ...any) ([]assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]assignment.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.loadCustomUnits(ctx, out)
}

func (r *AssignmentRepository) ExistsForUserAndUnit(ctx context.Context, tenantID, userID, orgUnitID uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, `
SELECT EXISTS(
	SELECT 1 FROM org_assignments
	WHERE tenant_id=$1 AND user_id=$2 AND org_unit_id=$3
)`, pgUUID(tenantID), pgUUID(userID), pgUUID(orgUnitID)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *AssignmentRepository) CountByOrgUnit(ctx context.Context, tenantID, orgUnitID uuid.UUID) (int64, error) {
	return r.count(ctx, `
SELECT COUNT(*) FROM org_assignments WHERE tenant_id=$1 AND org_unit_id=$2
`, pgUUID(tenantID), pgUUID(orgUnitID))
}

func (r *AssignmentRepository) CountByRole(ctx context.Context, tenantID, roleID uuid.UUID) (int64, error) {
	return r.count(ctx, `
SELECT COUNT(*) FROM org_assignments WHERE tenant_id=$1 AND role_id=$2
`, pgUUID(tenantID), pgUUID(roleID))
}

func (r *AssignmentRepository) count(ctx context.Context, query string, args ...any) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *AssignmentRepository) Create(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignment.Assignment{}, err
	}
	row := tx.QueryRow(ctx, `
INSERT INTO org_assignments (id, tenant_id, user_id, org_unit_id, role_id, scope_type, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING `+assignmentColumns+`
`,
		pgUUID(a.ID()),
		pgUUID(a.TenantID()),
		pgUUID(a.UserID()),
		pgUUID(a.OrgUnitID()),
		pgUUID(a.RoleID()),
		string(a.ScopeType()),
		a.CreatedAt(),
		a.UpdatedAt(),
	)
	created, err := scanAssignment(row)
	if err != nil {
		return assignment.Assignment{}, mapPgError(err, assignment.ErrNotFound)
	}
	if err := r.replaceCustomUnits(ctx, created.ID(), a.CustomUnitIDs()); err != nil {
		return assignment.Assignment{}, err
	}
	return created.WithCustomUnits(a.CustomUnitIDs()), nil
}

func (r *AssignmentRepository) Update(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignment.Assignment{}, err
	}
	row := tx.QueryRow(ctx, `
UPDATE org_assignments
SET role_id=$3, scope_type=$4, updated_at=$5
WHERE tenant_id=$1 AND id=$2
RETURNING `+assignmentColumns+`
`,
		pgUUID(a.TenantID()),
		pgUUID(a.ID()),
		pgUUID(a.RoleID()),
		string(a.ScopeType()),
		a.UpdatedAt(),
	)
	updated, err := scanAssignment(row)
	if err != nil {
		return assignment.Assignment{}, mapPgError(err, assignment.ErrNotFound)
	}
	// The entity's custom unit list is authoritative: scope changes away
	// from custom_set arrive here with an empty list, which clears the rows.
	if err := r.replaceCustomUnits(ctx, updated.ID(), a.CustomUnitIDs()); err != nil {
		return assignment.Assignment{}, err
	}
	return updated.WithCustomUnits(a.CustomUnitIDs()), nil
}

func (r *AssignmentRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
DELETE FROM org_assignment_units WHERE assignment_id=$1
`, pgUUID(id)); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
DELETE FROM org_assignments WHERE tenant_id=$1 AND id=$2
`, pgUUID(tenantID), pgUUID(id))
	if err != nil {
		return mapPgError(err, assignment.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return assignment.ErrNotFound
	}
	return nil
}

func (r *AssignmentRepository) AddCustomUnit(ctx context.Context, assignmentID, orgUnitID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO org_assignment_units (assignment_id, org_unit_id)
VALUES ($1,$2)
ON CONFLICT (assignment_id, org_unit_id) DO NOTHING
`, pgUUID(assignmentID), pgUUID(orgUnitID))
	return mapPgError(err, assignment.ErrNotFound)
}

func (r *AssignmentRepository) RemoveCustomUnit(ctx context.Context, assignmentID, orgUnitID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
DELETE FROM org_assignment_units WHERE assignment_id=$1 AND org_unit_id=$2
`, pgUUID(assignmentID), pgUUID(orgUnitID))
	return err
}

func (r *AssignmentRepository) PermissionCodes(ctx context.Context, tenantID, userID uuid.UUID) ([]string, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT DISTINCT p.code
FROM org_assignments a
JOIN role_permissions rp ON rp.role_id = a.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE a.tenant_id=$1 AND a.user_id=$2
ORDER BY p.code
`, pgUUID(tenantID), pgUUID(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

func (r *AssignmentRepository) PermissionCodesByRole(ctx context.Context, roleIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	out := make(map[uuid.UUID][]string, len(roleIDs))
	if len(roleIDs) == 0 {
		return out, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT rp.role_id, p.code
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = ANY($1)
ORDER BY p.code
`, pgUUIDArray(roleIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			roleID pgtype.UUID
			code   string
		)
		if err := rows.Scan(&roleID, &code); err != nil {
			return nil, err
		}
		out[uuidFromPg(roleID)] = append(out[uuidFromPg(roleID)], code)
	}
	return out, rows.Err()
}

func (r *AssignmentRepository) replaceCustomUnits(ctx context.Context, assignmentID uuid.UUID, unitIDs []uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
DELETE FROM org_assignment_units WHERE assignment_id=$1
`, pgUUID(assignmentID)); err != nil {
		return err
	}
	for _, unitID := range unitIDs {
		if _, err := tx.Exec(ctx, `
INSERT INTO org_assignment_units (assignment_id, org_unit_id)
VALUES ($1,$2)
`, pgUUID(assignmentID), pgUUID(unitID)); err != nil {
			return mapPgError(err, assignment.ErrNotFound)
		}
	}
	return nil
}

// loadCustomUnits attaches the enumerated unit lists to custom_set
// assignments in one extra query.
func (r *AssignmentRepository) loadCustomUnits(ctx context.Context, assignments []assignment.Assignment) ([]assignment.Assignment, error) {
	ids := make([]uuid.UUID, 0, len(assignments))
	for _, a := range assignments {
		if a.ScopeType() == assignment.ScopeCustomSet {
			ids = append(ids, a.ID())
		}
	}
	if len(ids) == 0 {
		return assignments, nil
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT assignment_id, org_unit_id
FROM org_assignment_units
WHERE assignment_id = ANY($1)
`, pgUUIDArray(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make(map[uuid.UUID][]uuid.UUID, len(ids))
	for rows.Next() {
		var assignmentID, orgUnitID pgtype.UUID
		if err := rows.Scan(&assignmentID, &orgUnitID); err != nil {
			return nil, err
		}
		units[uuidFromPg(assignmentID)] = append(units[uuidFromPg(assignmentID)], uuidFromPg(orgUnitID))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, a := range assignments {
		if list, ok := units[a.ID()]; ok {
			assignments[i] = a.WithCustomUnits(list)
		}
	}
	return assignments, nil
}

func scanAssignment(row pgx.Row) (assignment.Assignment, error) {
	var (
		id, tenantID, userID, orgUnitID, roleID pgtype.UUID
		scopeType                               string
		createdAt, updatedAt                    time.Time
	)
	if err := row.Scan(&id, &tenantID, &userID, &orgUnitID, &roleID, &scopeType, &createdAt, &updatedAt); err != nil {
		return assignment.Assignment{}, err
	}
	return assignment.Hydrate(
		uuidFromPg(id),
		uuidFromPg(tenantID),
		uuidFromPg(userID),
		uuidFromPg(orgUnitID),
		uuidFromPg(roleID),
		assignment.ScopeType(scopeType),
		nil,
		createdAt,
		updatedAt,
	), nil
}
