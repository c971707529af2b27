package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/pkg/composables"
)

// requireSessionPermission enforces a coarse, tenant-wide grant from the
// bound session. It is used for operations that have no org unit target
// (role administration, list endpoints, root creation). It never replaces
// a targeted check on unit-scoped writes.
func requireSessionPermission(ctx context.Context, code string) (uuid.UUID, error) {
	session, err := composables.UseSession(ctx)
	if err != nil {
		return uuid.Nil, ErrUnauthenticated
	}
	if !session.HasPermission(code) {
		return uuid.Nil, ErrPermissionDenied
	}
	return session.TenantID, nil
}

// requireTargeted enforces a scope-aware grant for the acting user against
// a specific org unit. Missing targets surface as permission denied so the
// check cannot be used to discover unit existence.
func requireTargeted(ctx context.Context, access *AccessService, orgUnitID uuid.UUID, code string) (tenantID, actorID uuid.UUID, err error) {
	tenantID, err = composables.UseTenantID(ctx)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrUnauthenticated
	}
	actorID, err = composables.UseUserID(ctx)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrUnauthenticated
	}
	if err = access.Require(ctx, actorID, orgUnitID, code); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return tenantID, actorID, nil
}
