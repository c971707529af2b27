package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/assignment"
	"github.com/shepherdhq/shepherd/pkg/composables"
)

// Principal is the verified identity supplied by the authentication
// collaborator (token or session verification). This core never performs
// credential checks itself.
type Principal struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

// SessionService binds a principal into the request-scoped session the
// data-access layer consumes. The session's permission set is the COARSE
// union across all of the user's assignments, scope ignored: good enough
// for tenant-wide listing surfaces and the RLS GUCs, never a substitute
// for a targeted AccessService check on a write path.
type SessionService struct {
	assignments assignment.Repository
}

func NewSessionService(assignments assignment.Repository) *SessionService {
	return &SessionService{assignments: assignments}
}

// Bind resolves the session for the principal. tenantID is the tenant the
// request claims to operate on; it must match the principal's.
func (s *SessionService) Bind(ctx context.Context, principal Principal, tenantID uuid.UUID) (*composables.Session, error) {
	if principal.UserID == uuid.Nil || principal.TenantID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	if tenantID != uuid.Nil && tenantID != principal.TenantID {
		return nil, ErrTenantMismatch
	}

	// The tenant-isolation policies key off the app.tenant_id GUC, which is
	// transaction-scoped. No session exists yet, so bind the principal's
	// identity into the context and run the union query inside a tenant
	// transaction; a bare pool query would see zero rows under enforcement.
	bindCtx := composables.WithUserID(composables.WithTenantID(ctx, principal.TenantID), principal.UserID)
	codes, err := composables.InTenantTxResult(bindCtx, func(txCtx context.Context) ([]string, error) {
		return s.assignments.PermissionCodes(txCtx, principal.TenantID, principal.UserID)
	})
	if err != nil {
		return nil, err
	}

	perms := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		perms[code] = struct{}{}
	}
	return &composables.Session{
		TenantID:    principal.TenantID,
		UserID:      principal.UserID,
		Permissions: perms,
	}, nil
}
