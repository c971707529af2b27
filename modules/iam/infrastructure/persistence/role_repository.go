package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/permission"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/role"
	"github.com/shepherdhq/shepherd/pkg/composables"
)

type RoleRepository struct{}

func NewRoleRepository() role.Repository {
	return &RoleRepository{}
}

func (r *RoleRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (role.Role, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return role.Role{}, err
	}
	row := tx.QueryRow(ctx, `
SELECT id, tenant_id, name, created_at, updated_at
FROM roles
WHERE tenant_id=$1 AND id=$2
`, pgUUID(tenantID), pgUUID(id))
	out, err := scanRole(row)
	if err != nil {
		return role.Role{}, mapPgError(err, role.ErrNotFound)
	}
	return out, nil
}

func (r *RoleRepository) GetByName(ctx context.Context, tenantID uuid.UUID, name string) (role.Role, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return role.Role{}, err
	}
	row := tx.QueryRow(ctx, `
SELECT id, tenant_id, name, created_at, updated_at
FROM roles
WHERE tenant_id=$1 AND lower(name)=lower($2)
`, pgUUID(tenantID), name)
	out, err := scanRole(row)
	if err != nil {
		return role.Role{}, mapPgError(err, role.ErrNotFound)
	}
	return out, nil
}

func (r *RoleRepository) List(ctx context.Context, tenantID uuid.UUID) ([]role.Role, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT id, tenant_id, name, created_at, updated_at
FROM roles
WHERE tenant_id=$1
ORDER BY name
`, pgUUID(tenantID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]role.Role, 0)
	for rows.Next() {
		roleRow, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, roleRow)
	}
	return out, rows.Err()
}

func (r *RoleRepository) Create(ctx context.Context, rl role.Role) (role.Role, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return role.Role{}, err
	}
	row := tx.QueryRow(ctx, `
INSERT INTO roles (id, tenant_id, name, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING id, tenant_id, name, created_at, updated_at
`, pgUUID(rl.ID()), pgUUID(rl.TenantID()), rl.Name(), rl.CreatedAt(), rl.UpdatedAt())
	created, err := scanRole(row)
	if err != nil {
		return role.Role{}, mapPgError(err, role.ErrNotFound)
	}
	return created, nil
}

func (r *RoleRepository) Update(ctx context.Context, rl role.Role) (role.Role, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return role.Role{}, err
	}
	row := tx.QueryRow(ctx, `
UPDATE roles
SET name=$3, updated_at=$4
WHERE tenant_id=$1 AND id=$2
RETURNING id, tenant_id, name, created_at, updated_at
`, pgUUID(rl.TenantID()), pgUUID(rl.ID()), rl.Name(), rl.UpdatedAt())
	updated, err := scanRole(row)
	if err != nil {
		return role.Role{}, mapPgError(err, role.ErrNotFound)
	}
	return updated, nil
}

func (r *RoleRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE tenant_id=$1 AND id=$2`, pgUUID(tenantID), pgUUID(id))
	if err != nil {
		return mapPgError(err, role.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return role.ErrNotFound
	}
	return nil
}

func (r *RoleRepository) ListPermissions(ctx context.Context, roleID uuid.UUID) ([]permission.Permission, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT p.id, p.code, p.description
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id=$1
ORDER BY p.code
`, pgUUID(roleID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]permission.Permission, 0)
	for rows.Next() {
		var (
			id          pgtype.UUID
			code        string
			description string
		)
		if err := rows.Scan(&id, &code, &description); err != nil {
			return nil, err
		}
		out = append(out, permission.Hydrate(uuidFromPg(id), code, description))
	}
	return out, rows.Err()
}

func (r *RoleRepository) AssignPermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	for _, permissionID := range permissionIDs {
		if _, err := tx.Exec(ctx, `
INSERT INTO role_permissions (role_id, permission_id)
VALUES ($1,$2)
ON CONFLICT (role_id, permission_id) DO NOTHING
`, pgUUID(roleID), pgUUID(permissionID)); err != nil {
			return mapPgError(err, role.ErrNotFound)
		}
	}
	return nil
}

func (r *RoleRepository) RemovePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
DELETE FROM role_permissions WHERE role_id=$1 AND permission_id=$2
`, pgUUID(roleID), pgUUID(permissionID))
	return err
}

func (r *RoleRepository) ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id=$1`, pgUUID(roleID)); err != nil {
		return err
	}
	return r.AssignPermissions(ctx, roleID, permissionIDs)
}

func scanRole(row pgx.Row) (role.Role, error) {
	var (
		id, tenantID pgtype.UUID
		name         string
		createdAt    time.Time
		updatedAt    time.Time
	)
	if err := row.Scan(&id, &tenantID, &name, &createdAt, &updatedAt); err != nil {
		return role.Role{}, err
	}
	return role.Hydrate(uuidFromPg(id), uuidFromPg(tenantID), name, createdAt, updatedAt), nil
}
