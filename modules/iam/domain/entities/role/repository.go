package role

import (
	"context"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/permission"
	"github.com/shepherdhq/shepherd/pkg/serrors"
)

var ErrNotFound = serrors.NewError("IAM_NOT_FOUND", "role not found", "IAM.Errors.NotFound")

type Repository interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (Role, error)
	GetByName(ctx context.Context, tenantID uuid.UUID, name string) (Role, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]Role, error)
	Create(ctx context.Context, r Role) (Role, error)
	Update(ctx context.Context, r Role) (Role, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	// ListPermissions returns the catalog permissions attached to the role.
	// Dangling references are skipped by the join and grant nothing.
	ListPermissions(ctx context.Context, roleID uuid.UUID) ([]permission.Permission, error)
	// AssignPermissions attaches permissions with set semantics (already
	// assigned permissions are ignored, never duplicated).
	AssignPermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
	RemovePermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	// ReplacePermissions atomically swaps the role's permission set.
	ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
}
