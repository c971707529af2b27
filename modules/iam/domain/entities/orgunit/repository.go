package orgunit

import (
	"context"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/pkg/serrors"
)

var ErrNotFound = serrors.NewError("IAM_NOT_FOUND", "org unit not found", "IAM.Errors.NotFound")

type FindParams struct {
	Type     Type
	ParentID *uuid.UUID
	Limit    int
	Offset   int
}

type Repository interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (OrgUnit, error)
	GetChildren(ctx context.Context, tenantID, parentID uuid.UUID) ([]OrgUnit, error)
	List(ctx context.Context, tenantID uuid.UUID, params *FindParams) ([]OrgUnit, error)
	ExistsSiblingNamed(ctx context.Context, tenantID uuid.UUID, parentID *uuid.UUID, name string, excludeID uuid.UUID) (bool, error)
	Create(ctx context.Context, unit OrgUnit) (OrgUnit, error)
	Update(ctx context.Context, unit OrgUnit) (OrgUnit, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}
