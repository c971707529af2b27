package role

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role struct {
	id        uuid.UUID
	tenantID  uuid.UUID
	name      string
	createdAt time.Time
	updatedAt time.Time
}

func New(tenantID uuid.UUID, name string) Role {
	now := time.Now()
	return Role{
		id:        uuid.New(),
		tenantID:  tenantID,
		name:      strings.TrimSpace(name),
		createdAt: now,
		updatedAt: now,
	}
}

func Hydrate(id, tenantID uuid.UUID, name string, createdAt, updatedAt time.Time) Role {
	return Role{
		id:        id,
		tenantID:  tenantID,
		name:      strings.TrimSpace(name),
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (r Role) ID() uuid.UUID        { return r.id }
func (r Role) TenantID() uuid.UUID  { return r.tenantID }
func (r Role) Name() string         { return r.name }
func (r Role) CreatedAt() time.Time { return r.createdAt }
func (r Role) UpdatedAt() time.Time { return r.updatedAt }
func (r Role) IsZero() bool         { return r.id == uuid.Nil }

// Renamed returns a copy with the new name.
func (r Role) Renamed(name string) Role {
	r.name = strings.TrimSpace(name)
	r.updatedAt = time.Now()
	return r
}
