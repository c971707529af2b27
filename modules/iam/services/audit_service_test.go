package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/auditlog"
	"github.com/shepherdhq/shepherd/modules/iam/permissions"
)

type memAuditRepo struct {
	logs []auditlog.AuditLog
}

func (r *memAuditRepo) Create(_ context.Context, log auditlog.AuditLog) (auditlog.AuditLog, error) {
	r.logs = append(r.logs, log)
	return log, nil
}

func (r *memAuditRepo) List(_ context.Context, tenantID uuid.UUID, params *auditlog.FindParams) ([]auditlog.AuditLog, error) {
	out := make([]auditlog.AuditLog, 0)
	for _, l := range r.logs {
		if l.TenantID() != tenantID {
			continue
		}
		if params != nil && params.EntityType != "" && l.EntityType() != params.EntityType {
			continue
		}
		if params != nil && params.ActorID != uuid.Nil && l.ActorID() != params.ActorID {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func TestAuditList(t *testing.T) {
	tenantID := uuid.New()
	actorID := uuid.New()
	repo := &memAuditRepo{}
	svc := NewAuditService(repo)
	ctx := context.Background()

	_, err := repo.Create(ctx, auditlog.New(tenantID, actorID, "create", "org_units", uuid.New(), nil, map[string]any{"name": "Church X"}, "", ""))
	require.NoError(t, err)
	_, err = repo.Create(ctx, auditlog.New(tenantID, actorID, "deny", "permissions", uuid.New(), nil, nil, "", ""))
	require.NoError(t, err)
	_, err = repo.Create(ctx, auditlog.New(uuid.New(), actorID, "create", "roles", uuid.New(), nil, nil, "", ""))
	require.NoError(t, err)

	auditorCtx := authCtx(tenantID, uuid.New(), permissions.SystemAuditView)

	logs, err := svc.List(auditorCtx, nil)
	require.NoError(t, err)
	assert.Len(t, logs, 2, "other tenants' entries stay invisible")

	denials, err := svc.List(auditorCtx, &auditlog.FindParams{EntityType: "permissions"})
	require.NoError(t, err)
	require.Len(t, denials, 1)
	assert.Equal(t, "deny", denials[0].Action())

	_, err = svc.List(authCtx(tenantID, uuid.New()), nil)
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, err = svc.List(context.Background(), nil)
	require.ErrorIs(t, err, ErrUnauthenticated)
}
