package persistence

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/orgunit"
	"github.com/shepherdhq/shepherd/pkg/composables"
)

const orgUnitColumns = `id, tenant_id, type, parent_id, name, created_at, updated_at`

type OrgUnitRepository struct{}

func NewOrgUnitRepository() orgunit.Repository {
	return &OrgUnitRepository{}
}

func (r *OrgUnitRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (orgunit.OrgUnit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return orgunit.OrgUnit{}, err
	}
	row := tx.QueryRow(ctx, `
SELECT `+orgUnitColumns+`
FROM org_units
WHERE tenant_id=$1 AND id=$2
`, pgUUID(tenantID), pgUUID(id))
	unit, err := scanOrgUnit(row)
	if err != nil {
		return orgunit.OrgUnit{}, mapPgError(err, orgunit.ErrNotFound)
	}
	return unit, nil
}

func (r *OrgUnitRepository) GetChildren(ctx context.Context, tenantID, parentID uuid.UUID) ([]orgunit.OrgUnit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT `+orgUnitColumns+`
FROM org_units
WHERE tenant_id=$1 AND parent_id=$2
ORDER BY name
`, pgUUID(tenantID), pgUUID(parentID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrgUnits(rows)
}

func (r *OrgUnitRepository) List(ctx context.Context, tenantID uuid.UUID, params *orgunit.FindParams) ([]orgunit.OrgUnit, error) {
	if params == nil {
		params = &orgunit.FindParams{}
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + orgUnitColumns + ` FROM org_units WHERE tenant_id=$1`
	args := []any{pgUUID(tenantID)}
	if params.Type != "" {
		args = append(args, string(params.Type))
		query += ` AND type=$` + strconv.Itoa(len(args))
	}
	if params.ParentID != nil {
		args = append(args, pgUUID(*params.ParentID))
		query += ` AND parent_id=$` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY type, name`
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrgUnits(rows)
}

func (r *OrgUnitRepository) ExistsSiblingNamed(ctx context.Context, tenantID uuid.UUID, parentID *uuid.UUID, name string, excludeID uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, `
SELECT EXISTS(
	SELECT 1
	FROM org_units
	WHERE tenant_id=$1
	  AND parent_id IS NOT DISTINCT FROM $2
	  AND lower(name)=lower($3)
	  AND id <> $4
)`, pgUUID(tenantID), pgNullableUUID(parentID), name, pgUUID(excludeID)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *OrgUnitRepository) Create(ctx context.Context, unit orgunit.OrgUnit) (orgunit.OrgUnit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return orgunit.OrgUnit{}, err
	}
	row := tx.QueryRow(ctx, `
INSERT INTO org_units (id, tenant_id, type, parent_id, name, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING `+orgUnitColumns+`
`,
		pgUUID(unit.ID()),
		pgUUID(unit.TenantID()),
		string(unit.Type()),
		pgNullableUUID(unit.ParentID()),
		unit.Name(),
		unit.CreatedAt(),
		unit.UpdatedAt(),
	)
	created, err := scanOrgUnit(row)
	if err != nil {
		return orgunit.OrgUnit{}, mapPgError(err, orgunit.ErrNotFound)
	}
	return created, nil
}

func (r *OrgUnitRepository) Update(ctx context.Context, unit orgunit.OrgUnit) (orgunit.OrgUnit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return orgunit.OrgUnit{}, err
	}
	row := tx.QueryRow(ctx, `
UPDATE org_units
SET type=$3, parent_id=$4, name=$5, updated_at=$6
WHERE tenant_id=$1 AND id=$2
RETURNING `+orgUnitColumns+`
`,
		pgUUID(unit.TenantID()),
		pgUUID(unit.ID()),
		string(unit.Type()),
		pgNullableUUID(unit.ParentID()),
		unit.Name(),
		unit.UpdatedAt(),
	)
	updated, err := scanOrgUnit(row)
	if err != nil {
		return orgunit.OrgUnit{}, mapPgError(err, orgunit.ErrNotFound)
	}
	return updated, nil
}

func (r *OrgUnitRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM org_units WHERE tenant_id=$1 AND id=$2`, pgUUID(tenantID), pgUUID(id))
	if err != nil {
		return mapPgError(err, orgunit.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return orgunit.ErrNotFound
	}
	return nil
}

func scanOrgUnit(row pgx.Row) (orgunit.OrgUnit, error) {
	var (
		id, tenantID pgtype.UUID
		parentID     pgtype.UUID
		unitType     string
		name         string
		createdAt    time.Time
		updatedAt    time.Time
	)
	if err := row.Scan(&id, &tenantID, &unitType, &parentID, &name, &createdAt, &updatedAt); err != nil {
		return orgunit.OrgUnit{}, err
	}
	return orgunit.Hydrate(
		uuidFromPg(id),
		uuidFromPg(tenantID),
		name,
		orgunit.Type(unitType),
		nullableUUIDFromPg(parentID),
		createdAt,
		updatedAt,
	), nil
}

func collectOrgUnits(rows pgx.Rows) ([]orgunit.OrgUnit, error) {
	out := make([]orgunit.OrgUnit, 0)
	for rows.Next() {
		unit, err := scanOrgUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, unit)
	}
	return out, rows.Err()
}
