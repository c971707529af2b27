package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/assignment"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/auditlog"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/orgunit"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/permission"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/role"
)

type orgUnitResponse struct {
	ID        uuid.UUID  `json:"id"`
	Type      string     `json:"type"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func toOrgUnitResponse(u orgunit.OrgUnit) orgUnitResponse {
	return orgUnitResponse{
		ID:        u.ID(),
		Type:      string(u.Type()),
		ParentID:  u.ParentID(),
		Name:      u.Name(),
		CreatedAt: u.CreatedAt(),
		UpdatedAt: u.UpdatedAt(),
	}
}

func toOrgUnitResponses(units []orgunit.OrgUnit) []orgUnitResponse {
	out := make([]orgUnitResponse, len(units))
	for i, u := range units {
		out[i] = toOrgUnitResponse(u)
	}
	return out
}

type createOrgUnitRequest struct {
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	ParentID *uuid.UUID `json:"parent_id"`
}

type updateOrgUnitRequest struct {
	Name     *string    `json:"name"`
	ParentID *uuid.UUID `json:"parent_id"`
	// SetParent must be true for parent changes so "omit parent_id" and
	// "make this unit a root" stay distinguishable.
	SetParent bool `json:"set_parent"`
}

type roleResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRoleResponse(r role.Role) roleResponse {
	return roleResponse{
		ID:        r.ID(),
		Name:      r.Name(),
		CreatedAt: r.CreatedAt(),
		UpdatedAt: r.UpdatedAt(),
	}
}

type roleRequest struct {
	Name string `json:"name"`
}

type rolePermissionsRequest struct {
	Codes []string `json:"codes"`
}

type permissionResponse struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
}

func toPermissionResponse(p permission.Permission) permissionResponse {
	return permissionResponse{ID: p.ID(), Code: p.Code(), Description: p.Description()}
}

type assignmentResponse struct {
	ID            uuid.UUID   `json:"id"`
	UserID        uuid.UUID   `json:"user_id"`
	OrgUnitID     uuid.UUID   `json:"org_unit_id"`
	RoleID        uuid.UUID   `json:"role_id"`
	ScopeType     string      `json:"scope_type"`
	CustomUnitIDs []uuid.UUID `json:"custom_unit_ids,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func toAssignmentResponse(a assignment.Assignment) assignmentResponse {
	return assignmentResponse{
		ID:            a.ID(),
		UserID:        a.UserID(),
		OrgUnitID:     a.OrgUnitID(),
		RoleID:        a.RoleID(),
		ScopeType:     string(a.ScopeType()),
		CustomUnitIDs: a.CustomUnitIDs(),
		CreatedAt:     a.CreatedAt(),
		UpdatedAt:     a.UpdatedAt(),
	}
}

func toAssignmentResponses(assignments []assignment.Assignment) []assignmentResponse {
	out := make([]assignmentResponse, len(assignments))
	for i, a := range assignments {
		out[i] = toAssignmentResponse(a)
	}
	return out
}

type createAssignmentRequest struct {
	UserID        uuid.UUID   `json:"user_id"`
	OrgUnitID     uuid.UUID   `json:"org_unit_id"`
	RoleID        uuid.UUID   `json:"role_id"`
	ScopeType     string      `json:"scope_type"`
	CustomUnitIDs []uuid.UUID `json:"custom_unit_ids"`
}

type bulkAssignmentsRequest struct {
	Assignments []createAssignmentRequest `json:"assignments"`
}

type updateAssignmentRequest struct {
	RoleID    *uuid.UUID `json:"role_id"`
	ScopeType *string    `json:"scope_type"`
}

type customUnitRequest struct {
	OrgUnitID uuid.UUID `json:"org_unit_id"`
}

type effectivePermissionsResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	OrgUnitID   uuid.UUID `json:"org_unit_id"`
	Permissions []string  `json:"permissions"`
}

type permissionCheckResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	OrgUnitID uuid.UUID `json:"org_unit_id"`
	Code      string    `json:"code"`
	Allowed   bool      `json:"allowed"`
}

type auditLogResponse struct {
	ID         uuid.UUID      `json:"id"`
	ActorID    uuid.UUID      `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func toAuditLogResponse(l auditlog.AuditLog) auditLogResponse {
	return auditLogResponse{
		ID:         l.ID(),
		ActorID:    l.ActorID(),
		Action:     l.Action(),
		EntityType: l.EntityType(),
		EntityID:   l.EntityID(),
		Before:     l.Before(),
		After:      l.After(),
		IP:         l.IP(),
		UserAgent:  l.UserAgent(),
		CreatedAt:  l.CreatedAt(),
	}
}
