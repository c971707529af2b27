package assignment

import (
	"time"

	"github.com/google/uuid"
)

// ScopeType is the breadth of authority an assignment grants, rooted at its
// org unit.
type ScopeType string

const (
	// ScopeSelf covers exactly the assignment's own org unit.
	ScopeSelf ScopeType = "self"
	// ScopeSubtree covers the assignment's org unit and every descendant.
	ScopeSubtree ScopeType = "subtree"
	// ScopeCustomSet covers the assignment's org unit plus an explicitly
	// enumerated list of extra units. Membership is flat: descendants of a
	// listed unit are NOT covered unless listed themselves.
	ScopeCustomSet ScopeType = "custom_set"
)

func (s ScopeType) IsValid() bool {
	switch s {
	case ScopeSelf, ScopeSubtree, ScopeCustomSet:
		return true
	}
	return false
}

// Assignment states that a user holds a role rooted at an org unit with a
// given scope breadth. CustomUnitIDs is populated only for custom_set.
type Assignment struct {
	id            uuid.UUID
	tenantID      uuid.UUID
	userID        uuid.UUID
	orgUnitID     uuid.UUID
	roleID        uuid.UUID
	scopeType     ScopeType
	customUnitIDs []uuid.UUID
	createdAt     time.Time
	updatedAt     time.Time
}

func New(tenantID, userID, orgUnitID, roleID uuid.UUID, scopeType ScopeType) Assignment {
	now := time.Now()
	return Assignment{
		id:        uuid.New(),
		tenantID:  tenantID,
		userID:    userID,
		orgUnitID: orgUnitID,
		roleID:    roleID,
		scopeType: scopeType,
		createdAt: now,
		updatedAt: now,
	}
}

func Hydrate(
	id uuid.UUID,
	tenantID uuid.UUID,
	userID uuid.UUID,
	orgUnitID uuid.UUID,
	roleID uuid.UUID,
	scopeType ScopeType,
	customUnitIDs []uuid.UUID,
	createdAt time.Time,
	updatedAt time.Time,
) Assignment {
	return Assignment{
		id:            id,
		tenantID:      tenantID,
		userID:        userID,
		orgUnitID:     orgUnitID,
		roleID:        roleID,
		scopeType:     scopeType,
		customUnitIDs: customUnitIDs,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

func (a Assignment) ID() uuid.UUID        { return a.id }
func (a Assignment) TenantID() uuid.UUID  { return a.tenantID }
func (a Assignment) UserID() uuid.UUID    { return a.userID }
func (a Assignment) OrgUnitID() uuid.UUID { return a.orgUnitID }
func (a Assignment) RoleID() uuid.UUID    { return a.roleID }
func (a Assignment) ScopeType() ScopeType { return a.scopeType }
func (a Assignment) CreatedAt() time.Time { return a.createdAt }
func (a Assignment) UpdatedAt() time.Time { return a.updatedAt }
func (a Assignment) IsZero() bool         { return a.id == uuid.Nil }

func (a Assignment) CustomUnitIDs() []uuid.UUID {
	out := make([]uuid.UUID, len(a.customUnitIDs))
	copy(out, a.customUnitIDs)
	return out
}

// HasCustomUnit reports flat membership in the custom unit list.
func (a Assignment) HasCustomUnit(orgUnitID uuid.UUID) bool {
	for _, id := range a.customUnitIDs {
		if id == orgUnitID {
			return true
		}
	}
	return false
}

// WithRole returns a copy granting a different role.
func (a Assignment) WithRole(roleID uuid.UUID) Assignment {
	a.roleID = roleID
	a.updatedAt = time.Now()
	return a
}

// WithScopeType returns a copy with the new scope breadth. Leaving
// custom_set drops the enumerated units.
func (a Assignment) WithScopeType(scopeType ScopeType) Assignment {
	a.scopeType = scopeType
	if scopeType != ScopeCustomSet {
		a.customUnitIDs = nil
	}
	a.updatedAt = time.Now()
	return a
}

// WithCustomUnits returns a copy with the enumerated extra units.
func (a Assignment) WithCustomUnits(ids []uuid.UUID) Assignment {
	a.customUnitIDs = make([]uuid.UUID, len(ids))
	copy(a.customUnitIDs, ids)
	a.updatedAt = time.Now()
	return a
}
