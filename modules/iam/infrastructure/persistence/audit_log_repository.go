package persistence

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/auditlog"
	"github.com/shepherdhq/shepherd/pkg/composables"
)

type AuditLogRepository struct{}

func NewAuditLogRepository() auditlog.Repository {
	return &AuditLogRepository{}
}

func (r *AuditLogRepository) Create(ctx context.Context, log auditlog.AuditLog) (auditlog.AuditLog, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return auditlog.AuditLog{}, err
	}

	before, err := marshalSnapshot(log.Before())
	if err != nil {
		return auditlog.AuditLog{}, err
	}
	after, err := marshalSnapshot(log.After())
	if err != nil {
		return auditlog.AuditLog{}, err
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO audit_logs (id, tenant_id, actor_id, action, entity_type, entity_id, before, after, ip, user_agent, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8::jsonb,$9,$10,$11)
`,
		pgUUID(log.ID()),
		pgUUID(log.TenantID()),
		pgUUID(log.ActorID()),
		log.Action(),
		log.EntityType(),
		pgUUID(log.EntityID()),
		before,
		after,
		log.IP(),
		log.UserAgent(),
		log.CreatedAt(),
	); err != nil {
		return auditlog.AuditLog{}, err
	}
	return log, nil
}

func (r *AuditLogRepository) List(ctx context.Context, tenantID uuid.UUID, params *auditlog.FindParams) ([]auditlog.AuditLog, error) {
	if params == nil {
		params = &auditlog.FindParams{}
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	query := `
SELECT id, tenant_id, actor_id, action, entity_type, entity_id, before, after, ip, user_agent, created_at
FROM audit_logs
WHERE tenant_id=$1`
	args := []any{pgUUID(tenantID)}
	if params.EntityType != "" {
		args = append(args, params.EntityType)
		query += ` AND entity_type=$` + strconv.Itoa(len(args))
	}
	if params.EntityID != uuid.Nil {
		args = append(args, pgUUID(params.EntityID))
		query += ` AND entity_id=$` + strconv.Itoa(len(args))
	}
	if params.ActorID != uuid.Nil {
		args = append(args, pgUUID(params.ActorID))
		query += ` AND actor_id=$` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]auditlog.AuditLog, 0)
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, log)
	}
	return out, rows.Err()
}

func scanAuditLog(row pgx.Row) (auditlog.AuditLog, error) {
	var (
		id, tenantID, actorID, entityID pgtype.UUID
		action, entityType              string
		before, after                   []byte
		ip, userAgent                   string
		createdAt                       time.Time
	)
	if err := row.Scan(&id, &tenantID, &actorID, &action, &entityType, &entityID, &before, &after, &ip, &userAgent, &createdAt); err != nil {
		return auditlog.AuditLog{}, err
	}

	beforeMap, err := unmarshalSnapshot(before)
	if err != nil {
		return auditlog.AuditLog{}, err
	}
	afterMap, err := unmarshalSnapshot(after)
	if err != nil {
		return auditlog.AuditLog{}, err
	}

	return auditlog.Hydrate(
		uuidFromPg(id),
		uuidFromPg(tenantID),
		uuidFromPg(actorID),
		action,
		entityType,
		uuidFromPg(entityID),
		beforeMap,
		afterMap,
		ip,
		userAgent,
		createdAt,
	), nil
}

func marshalSnapshot(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalSnapshot(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}
