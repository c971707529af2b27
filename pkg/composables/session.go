package composables

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/pkg/constants"
)

var (
	ErrNoTenant  = errors.New("no tenant found in context")
	ErrNoUser    = errors.New("no user found in context")
	ErrNoSession = errors.New("no session found in context")
)

// Session is the resolved request identity the data-access layer consumes.
// Permissions is the coarse union of permission codes across every
// assignment the user holds, ignoring org scope. It seeds tenant-wide
// listing surfaces and the Postgres RLS GUCs; per-resource write paths must
// still perform a targeted effective-permission check.
type Session struct {
	TenantID    uuid.UUID
	UserID      uuid.UUID
	Permissions map[string]struct{}
}

// HasPermission reports whether code is in the coarse session grant.
func (s *Session) HasPermission(code string) bool {
	_, ok := s.Permissions[code]
	return ok
}

// PermissionCodes returns the grant as a sorted slice, suitable for the
// app.perms RLS session variable and for JSON responses.
func (s *Session) PermissionCodes() []string {
	codes := make([]string, 0, len(s.Permissions))
	for code := range s.Permissions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.TenantIDKey, tenantID)
}

func UseTenantID(ctx context.Context) (uuid.UUID, error) {
	tenantID, ok := ctx.Value(constants.TenantIDKey).(uuid.UUID)
	if !ok || tenantID == uuid.Nil {
		return uuid.Nil, ErrNoTenant
	}
	return tenantID, nil
}

func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.UserIDKey, userID)
}

func UseUserID(ctx context.Context) (uuid.UUID, error) {
	userID, ok := ctx.Value(constants.UserIDKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, ErrNoUser
	}
	return userID, nil
}

// WithSession binds the session and its tenant/user IDs in one step.
func WithSession(ctx context.Context, session *Session) context.Context {
	ctx = WithTenantID(ctx, session.TenantID)
	ctx = WithUserID(ctx, session.UserID)
	return context.WithValue(ctx, constants.SessionKey, session)
}

func UseSession(ctx context.Context) (*Session, error) {
	session, ok := ctx.Value(constants.SessionKey).(*Session)
	if !ok || session == nil {
		return nil, ErrNoSession
	}
	return session, nil
}
