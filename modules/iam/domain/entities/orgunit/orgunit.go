package orgunit

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type identifies a node's place in the organizational hierarchy. Lower
// Level() means higher in the tree; a child must always have a strictly
// greater level than its parent.
type Type string

const (
	TypeRegion   Type = "region"
	TypeZone     Type = "zone"
	TypeGroup    Type = "group"
	TypeChurch   Type = "church"
	TypeOutreach Type = "outreach"
)

var typeLevels = map[Type]int{
	TypeRegion:   0,
	TypeZone:     1,
	TypeGroup:    2,
	TypeChurch:   3,
	TypeOutreach: 4,
}

func (t Type) IsValid() bool {
	_, ok := typeLevels[t]
	return ok
}

// Level returns the hierarchy depth rank of the type, -1 for unknown types.
func (t Type) Level() int {
	level, ok := typeLevels[t]
	if !ok {
		return -1
	}
	return level
}

type OrgUnit struct {
	id        uuid.UUID
	tenantID  uuid.UUID
	unitType  Type
	parentID  *uuid.UUID
	name      string
	createdAt time.Time
	updatedAt time.Time
}

func New(tenantID uuid.UUID, name string, unitType Type, parentID *uuid.UUID) OrgUnit {
	now := time.Now()
	return OrgUnit{
		id:        uuid.New(),
		tenantID:  tenantID,
		unitType:  unitType,
		parentID:  parentID,
		name:      strings.TrimSpace(name),
		createdAt: now,
		updatedAt: now,
	}
}

func Hydrate(
	id uuid.UUID,
	tenantID uuid.UUID,
	name string,
	unitType Type,
	parentID *uuid.UUID,
	createdAt time.Time,
	updatedAt time.Time,
) OrgUnit {
	return OrgUnit{
		id:        id,
		tenantID:  tenantID,
		unitType:  unitType,
		parentID:  parentID,
		name:      strings.TrimSpace(name),
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (u OrgUnit) ID() uuid.UUID        { return u.id }
func (u OrgUnit) TenantID() uuid.UUID  { return u.tenantID }
func (u OrgUnit) Type() Type           { return u.unitType }
func (u OrgUnit) ParentID() *uuid.UUID { return u.parentID }
func (u OrgUnit) Name() string         { return u.name }
func (u OrgUnit) CreatedAt() time.Time { return u.createdAt }
func (u OrgUnit) UpdatedAt() time.Time { return u.updatedAt }
func (u OrgUnit) IsRoot() bool         { return u.parentID == nil }
func (u OrgUnit) IsZero() bool         { return u.id == uuid.Nil }

// Renamed returns a copy with the new name.
func (u OrgUnit) Renamed(name string) OrgUnit {
	u.name = strings.TrimSpace(name)
	u.updatedAt = time.Now()
	return u
}

// Reparented returns a copy attached to the given parent. Structural
// validity (cycles, tenant, type ordering) is the hierarchy service's job.
func (u OrgUnit) Reparented(parentID *uuid.UUID) OrgUnit {
	u.parentID = parentID
	u.updatedAt = time.Now()
	return u
}
