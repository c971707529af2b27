package services

import "github.com/shepherdhq/shepherd/pkg/serrors"

var (
	// ErrUnauthenticated is returned when no verified principal is present.
	ErrUnauthenticated = serrors.NewError("IAM_UNAUTHENTICATED", "no authenticated principal", "IAM.Errors.Unauthenticated")

	// ErrTenantMismatch is returned when a request names a tenant other
	// than the principal's.
	ErrTenantMismatch = serrors.NewError("IAM_TENANT_MISMATCH", "tenant does not match principal", "IAM.Errors.TenantMismatch")

	// ErrPermissionDenied is the boundary failure for refused operations.
	// It deliberately carries no information about whether the target
	// exists.
	ErrPermissionDenied = serrors.NewError("IAM_PERMISSION_DENIED", "permission denied", "IAM.Errors.PermissionDenied")

	// ErrCycleDetected rejects structural writes that would make an org
	// unit its own ancestor.
	ErrCycleDetected = serrors.NewError("IAM_CYCLE_DETECTED", "org unit hierarchy cycle detected", "IAM.Errors.CycleDetected")

	// ErrCrossTenant rejects operations that would span tenants.
	ErrCrossTenant = serrors.NewError("IAM_CROSS_TENANT", "operation spans tenants", "IAM.Errors.CrossTenant")

	// ErrConflict covers uniqueness violations (duplicate role name,
	// duplicate assignment, sibling name collision).
	ErrConflict = serrors.NewError("IAM_CONFLICT", "conflicting record exists", "IAM.Errors.Conflict")

	// ErrHasDependents blocks deletes while children or dependent records
	// remain.
	ErrHasDependents = serrors.NewError("IAM_HAS_DEPENDENTS", "record has dependents", "IAM.Errors.HasDependents")

	// ErrValidation covers malformed input (unknown scope type, bad
	// permission code, type-order violations).
	ErrValidation = serrors.NewError("IAM_VALIDATION", "validation failed", "IAM.Errors.Validation")

	// ErrHierarchyCorrupt is the depth guard for hierarchy traversals. It
	// fires only on corrupted data; legitimate trees never approach the
	// limit.
	ErrHierarchyCorrupt = serrors.NewError("IAM_HIERARCHY_CORRUPT", "hierarchy depth guard exceeded", "IAM.Errors.HierarchyCorrupt")
)
