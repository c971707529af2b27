package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/auditlog"
	"github.com/shepherdhq/shepherd/modules/iam/domain/events"
	"github.com/shepherdhq/shepherd/pkg/composables"
	"github.com/shepherdhq/shepherd/pkg/eventbus"
)

// AuditHandler persists every Auditable event to the audit trail. Events
// are published after their originating transaction commits, so the handler
// writes in a transaction of its own; a failed audit write is logged, never
// propagated back to the operation that already succeeded.
type AuditHandler struct {
	pool *pgxpool.Pool
	logs auditlog.Repository
	log  *logrus.Logger
}

func NewAuditHandler(pool *pgxpool.Pool, logs auditlog.Repository, log *logrus.Logger) *AuditHandler {
	return &AuditHandler{pool: pool, logs: logs, log: log}
}

// Register subscribes the handler to the bus. One subscription covers every
// IAM event because they all implement events.Auditable.
func (h *AuditHandler) Register(bus eventbus.EventBus) {
	bus.Subscribe(h.Handle)
}

func (h *AuditHandler) Handle(e events.Auditable) {
	entry := e.Audit()
	if entry.TenantID == uuid.Nil {
		// Seed and CLI paths publish without a bound tenant; there is no
		// row-security context to write under.
		return
	}

	ctx := composables.WithPool(context.Background(), h.pool)
	ctx = composables.WithTenantID(ctx, entry.TenantID)
	if entry.ActorID != uuid.Nil {
		ctx = composables.WithUserID(ctx, entry.ActorID)
	}

	err := composables.InTx(ctx, func(txCtx context.Context) error {
		_, err := h.logs.Create(txCtx, auditlog.New(
			entry.TenantID,
			entry.ActorID,
			entry.Action,
			entry.EntityType,
			entry.EntityID,
			entry.Before,
			entry.After,
			entry.IP,
			entry.UserAgent,
		))
		return err
	})
	if err != nil && h.log != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"action":      entry.Action,
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityID,
		}).Error("iam: audit write failed")
	}
}
