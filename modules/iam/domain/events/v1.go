package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/pkg/composables"
)

// Entry is the audit-log projection of a domain event: actor, action and
// outcome, with optional before/after snapshots.
type Entry struct {
	TenantID   uuid.UUID
	ActorID    uuid.UUID
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Before     map[string]any
	After      map[string]any
	IP         string
	UserAgent  string
	OccurredAt time.Time
}

// Auditable is implemented by every IAM domain event so a single audit
// subscriber can persist them all.
type Auditable interface {
	Audit() Entry
}

// NewEntry captures actor and request metadata from the context. Events are
// published after their transaction commits, so everything needed for the
// audit record is snapshotted here.
func NewEntry(ctx context.Context, action, entityType string, entityID uuid.UUID, before, after map[string]any) Entry {
	e := Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Before:     before,
		After:      after,
		OccurredAt: time.Now(),
	}
	if tenantID, err := composables.UseTenantID(ctx); err == nil {
		e.TenantID = tenantID
	}
	if userID, err := composables.UseUserID(ctx); err == nil {
		e.ActorID = userID
	}
	if ip, ok := composables.UseIP(ctx); ok {
		e.IP = ip
	}
	if ua, ok := composables.UseUserAgent(ctx); ok {
		e.UserAgent = ua
	}
	return e
}

type OrgUnitCreated struct{ Entry }
type OrgUnitUpdated struct{ Entry }
type OrgUnitDeleted struct{ Entry }

type RoleCreated struct{ Entry }
type RoleUpdated struct{ Entry }
type RoleDeleted struct{ Entry }
type RolePermissionsChanged struct{ Entry }

type AssignmentCreated struct{ Entry }
type AssignmentUpdated struct{ Entry }
type AssignmentDeleted struct{ Entry }
type CustomUnitAdded struct{ Entry }
type CustomUnitRemoved struct{ Entry }

// PermissionDenied is emitted when a boundary check refuses an operation.
type PermissionDenied struct{ Entry }

func (e OrgUnitCreated) Audit() Entry         { return e.Entry }
func (e OrgUnitUpdated) Audit() Entry         { return e.Entry }
func (e OrgUnitDeleted) Audit() Entry         { return e.Entry }
func (e RoleCreated) Audit() Entry            { return e.Entry }
func (e RoleUpdated) Audit() Entry            { return e.Entry }
func (e RoleDeleted) Audit() Entry            { return e.Entry }
func (e RolePermissionsChanged) Audit() Entry { return e.Entry }
func (e AssignmentCreated) Audit() Entry      { return e.Entry }
func (e AssignmentUpdated) Audit() Entry      { return e.Entry }
func (e AssignmentDeleted) Audit() Entry      { return e.Entry }
func (e CustomUnitAdded) Audit() Entry        { return e.Entry }
func (e CustomUnitRemoved) Audit() Entry      { return e.Entry }
func (e PermissionDenied) Audit() Entry       { return e.Entry }
