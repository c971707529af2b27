package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/permission"
	"github.com/shepherdhq/shepherd/pkg/composables"
)

// PermissionRepository serves the global permission catalog. The catalog is
// shared across tenants and carries no tenant column, so RLS does not apply
// to it.
type PermissionRepository struct{}

func NewPermissionRepository() permission.Repository {
	return &PermissionRepository{}
}

func (r *PermissionRepository) List(ctx context.Context) ([]permission.Permission, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT id, code, description
FROM permissions
ORDER BY code
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]permission.Permission, 0)
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PermissionRepository) GetByID(ctx context.Context, id uuid.UUID) (permission.Permission, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return permission.Permission{}, err
	}
	row := tx.QueryRow(ctx, `SELECT id, code, description FROM permissions WHERE id=$1`, pgUUID(id))
	p, err := scanPermission(row)
	if err != nil {
		return permission.Permission{}, mapPgError(err, permission.ErrNotFound)
	}
	return p, nil
}

func (r *PermissionRepository) GetByCode(ctx context.Context, code string) (permission.Permission, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return permission.Permission{}, err
	}
	row := tx.QueryRow(ctx, `SELECT id, code, description FROM permissions WHERE code=$1`, code)
	p, err := scanPermission(row)
	if err != nil {
		return permission.Permission{}, mapPgError(err, permission.ErrNotFound)
	}
	return p, nil
}

func (r *PermissionRepository) Ensure(ctx context.Context, perms []permission.Permission) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	for _, p := range perms {
		if _, err := tx.Exec(ctx, `
INSERT INTO permissions (id, code, description)
VALUES ($1,$2,$3)
ON CONFLICT (code) DO NOTHING
`, pgUUID(p.ID()), p.Code(), p.Description()); err != nil {
			return err
		}
	}
	return nil
}

func scanPermission(row pgx.Row) (permission.Permission, error) {
	var (
		id          pgtype.UUID
		code        string
		description string
	)
	if err := row.Scan(&id, &code, &description); err != nil {
		return permission.Permission{}, err
	}
	return permission.Hydrate(uuidFromPg(id), code, description), nil
}
