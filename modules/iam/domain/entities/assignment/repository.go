package assignment

import (
	"context"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/pkg/serrors"
)

var ErrNotFound = serrors.NewError("IAM_NOT_FOUND", "assignment not found", "IAM.Errors.NotFound")

type Repository interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (Assignment, error)
	// ListByUser returns every assignment the user holds in the tenant,
	// custom unit lists included. An unknown user yields an empty slice,
	// not an error: holding no assignments is a valid state.
	ListByUser(ctx context.Context, tenantID, userID uuid.UUID) ([]Assignment, error)
	ListByOrgUnit(ctx context.Context, tenantID, orgUnitID uuid.UUID) ([]Assignment, error)
	ExistsForUserAndUnit(ctx context.Context, tenantID, userID, orgUnitID uuid.UUID) (bool, error)
	CountByOrgUnit(ctx context.Context, tenantID, orgUnitID uuid.UUID) (int64, error)
	CountByRole(ctx context.Context, tenantID, roleID uuid.UUID) (int64, error)
	Create(ctx context.Context, a Assignment) (Assignment, error)
	Update(ctx context.Context, a Assignment) (Assignment, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	AddCustomUnit(ctx context.Context, assignmentID, orgUnitID uuid.UUID) error
	RemoveCustomUnit(ctx context.Context, assignmentID, orgUnitID uuid.UUID) error

	// PermissionCodes returns the deduplicated union of permission codes
	// granted by every role the user holds anywhere in the tenant, scope
	// ignored. This seeds the coarse session grant.
	PermissionCodes(ctx context.Context, tenantID, userID uuid.UUID) ([]string, error)
	// PermissionCodesByRole returns the catalog codes attached to each of
	// the given roles. Roles without grants are absent from the map.
	PermissionCodesByRole(ctx context.Context, roleIDs []uuid.UUID) (map[uuid.UUID][]string, error)
}
