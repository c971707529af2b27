package services

import (
	"context"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/auditlog"
	"github.com/shepherdhq/shepherd/modules/iam/permissions"
)

// AuditService is the read surface over the audit trail. Writes happen in
// the event handler, not here.
type AuditService struct {
	logs auditlog.Repository
}

func NewAuditService(logs auditlog.Repository) *AuditService {
	return &AuditService{logs: logs}
}

func (s *AuditService) List(ctx context.Context, params *auditlog.FindParams) ([]auditlog.AuditLog, error) {
	tenantID, err := requireSessionPermission(ctx, permissions.SystemAuditView)
	if err != nil {
		return nil, err
	}
	return s.logs.List(ctx, tenantID, params)
}
