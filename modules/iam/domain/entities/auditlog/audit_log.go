package auditlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditLog records who did what to which entity, with before/after
// snapshots. Permission denials are recorded with Action "deny".
type AuditLog struct {
	id         uuid.UUID
	tenantID   uuid.UUID
	actorID    uuid.UUID
	action     string
	entityType string
	entityID   uuid.UUID
	before     map[string]any
	after      map[string]any
	ip         string
	userAgent  string
	createdAt  time.Time
}

func New(
	tenantID uuid.UUID,
	actorID uuid.UUID,
	action string,
	entityType string,
	entityID uuid.UUID,
	before map[string]any,
	after map[string]any,
	ip string,
	userAgent string,
) AuditLog {
	return AuditLog{
		id:         uuid.New(),
		tenantID:   tenantID,
		actorID:    actorID,
		action:     action,
		entityType: entityType,
		entityID:   entityID,
		before:     before,
		after:      after,
		ip:         ip,
		userAgent:  userAgent,
		createdAt:  time.Now(),
	}
}

func Hydrate(
	id uuid.UUID,
	tenantID uuid.UUID,
	actorID uuid.UUID,
	action string,
	entityType string,
	entityID uuid.UUID,
	before map[string]any,
	after map[string]any,
	ip string,
	userAgent string,
	createdAt time.Time,
) AuditLog {
	return AuditLog{
		id:         id,
		tenantID:   tenantID,
		actorID:    actorID,
		action:     action,
		entityType: entityType,
		entityID:   entityID,
		before:     before,
		after:      after,
		ip:         ip,
		userAgent:  userAgent,
		createdAt:  createdAt,
	}
}

func (l AuditLog) ID() uuid.UUID          { return l.id }
func (l AuditLog) TenantID() uuid.UUID    { return l.tenantID }
func (l AuditLog) ActorID() uuid.UUID     { return l.actorID }
func (l AuditLog) Action() string         { return l.action }
func (l AuditLog) EntityType() string     { return l.entityType }
func (l AuditLog) EntityID() uuid.UUID    { return l.entityID }
func (l AuditLog) Before() map[string]any { return l.before }
func (l AuditLog) After() map[string]any  { return l.after }
func (l AuditLog) IP() string             { return l.ip }
func (l AuditLog) UserAgent() string      { return l.userAgent }
func (l AuditLog) CreatedAt() time.Time   { return l.createdAt }

type FindParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    uuid.UUID
	Limit      int
	Offset     int
}

type Repository interface {
	Create(ctx context.Context, log AuditLog) (AuditLog, error)
	List(ctx context.Context, tenantID uuid.UUID, params *FindParams) ([]AuditLog, error)
}
