package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/assignment"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/auditlog"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/orgunit"
	"github.com/shepherdhq/shepherd/modules/iam/permissions"
	"github.com/shepherdhq/shepherd/modules/iam/services"
	"github.com/shepherdhq/shepherd/pkg/composables"
	"github.com/shepherdhq/shepherd/pkg/configuration"
	"github.com/shepherdhq/shepherd/pkg/httpapi"
)

// IAMAPIController exposes the IAM surface: org units, roles, permissions,
// assignments, effective permission queries and the audit trail.
type IAMAPIController struct {
	orgUnits    *services.OrgUnitService
	roles       *services.RoleService
	perms       *services.PermissionService
	assignments *services.AssignmentService
	access      *services.AccessService
	audit       *services.AuditService
	apiPrefix   string
}

func NewIAMAPIController(
	orgUnits *services.OrgUnitService,
	roles *services.RoleService,
	perms *services.PermissionService,
	assignments *services.AssignmentService,
	access *services.AccessService,
	audit *services.AuditService,
) *IAMAPIController {
	return &IAMAPIController{
		orgUnits:    orgUnits,
		roles:       roles,
		perms:       perms,
		assignments: assignments,
		access:      access,
		audit:       audit,
		apiPrefix:   "/iam/api",
	}
}

func (c *IAMAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/org-units", c.ListOrgUnits).Methods(http.MethodGet)
	api.HandleFunc("/org-units", c.CreateOrgUnit).Methods(http.MethodPost)
	api.HandleFunc("/org-units/{id}", c.GetOrgUnit).Methods(http.MethodGet)
	api.HandleFunc("/org-units/{id}", c.UpdateOrgUnit).Methods(http.MethodPatch)
	api.HandleFunc("/org-units/{id}", c.DeleteOrgUnit).Methods(http.MethodDelete)
	api.HandleFunc("/org-units/{id}/children", c.GetOrgUnitChildren).Methods(http.MethodGet)
	api.HandleFunc("/org-units/{id}/ancestors", c.GetOrgUnitAncestors).Methods(http.MethodGet)
	api.HandleFunc("/org-units/{id}/subtree", c.GetOrgUnitSubtree).Methods(http.MethodGet)
	api.HandleFunc("/org-units/{id}/assignments", c.ListOrgUnitAssignments).Methods(http.MethodGet)

	api.HandleFunc("/roles", c.ListRoles).Methods(http.MethodGet)
	api.HandleFunc("/roles", c.CreateRole).Methods(http.MethodPost)
	api.HandleFunc("/roles/{id}", c.GetRole).Methods(http.MethodGet)
	api.HandleFunc("/roles/{id}", c.RenameRole).Methods(http.MethodPatch)
	api.HandleFunc("/roles/{id}", c.DeleteRole).Methods(http.MethodDelete)
	api.HandleFunc("/roles/{id}/permissions", c.ListRolePermissions).Methods(http.MethodGet)
	api.HandleFunc("/roles/{id}/permissions", c.AssignRolePermissions).Methods(http.MethodPost)
	api.HandleFunc("/roles/{id}/permissions", c.ReplaceRolePermissions).Methods(http.MethodPut)
	api.HandleFunc("/roles/{id}/permissions/{code}", c.RemoveRolePermission).Methods(http.MethodDelete)

	api.HandleFunc("/permissions", c.ListPermissions).Methods(http.MethodGet)

	api.HandleFunc("/assignments", c.CreateAssignment).Methods(http.MethodPost)
	api.HandleFunc("/assignments/bulk", c.BulkCreateAssignments).Methods(http.MethodPost)
	api.HandleFunc("/assignments/{id}", c.GetAssignment).Methods(http.MethodGet)
	api.HandleFunc("/assignments/{id}", c.UpdateAssignment).Methods(http.MethodPatch)
	api.HandleFunc("/assignments/{id}", c.DeleteAssignment).Methods(http.MethodDelete)
	api.HandleFunc("/assignments/{id}/custom-units", c.AddCustomUnit).Methods(http.MethodPost)
	api.HandleFunc("/assignments/{id}/custom-units/{unitID}", c.RemoveCustomUnit).Methods(http.MethodDelete)

	api.HandleFunc("/users/{id}/assignments", c.ListUserAssignments).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/effective-permissions", c.EffectivePermissions).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/permissions/check", c.CheckPermission).Methods(http.MethodGet)

	api.HandleFunc("/audit-logs", c.ListAuditLogs).Methods(http.MethodGet)
}

// --- org units ---

func (c *IAMAPIController) ListOrgUnits(w http.ResponseWriter, r *http.Request) {
	params := &orgunit.FindParams{
		Type:   orgunit.Type(r.URL.Query().Get("type")),
		Limit:  queryInt(r, "limit", configuration.Use().PageSize),
		Offset: queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("parent_id"); raw != "" {
		parentID, err := uuid.Parse(raw)
		if err != nil {
			writeBadRequest(w, "parent_id is not a valid UUID")
			return
		}
		params.ParentID = &parentID
	}
	if max := configuration.Use().MaxPageSize; params.Limit > max {
		params.Limit = max
	}

	units, err := c.orgUnits.List(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toOrgUnitResponses(units))
}

func (c *IAMAPIController) CreateOrgUnit(w http.ResponseWriter, r *http.Request) {
	var req createOrgUnitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	unit, err := c.orgUnits.Create(r.Context(), req.Name, orgunit.Type(req.Type), req.ParentID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, toOrgUnitResponse(unit))
}

func (c *IAMAPIController) GetOrgUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	unit, err := c.orgUnits.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toOrgUnitResponse(unit))
}

func (c *IAMAPIController) UpdateOrgUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req updateOrgUnitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	unit, err := c.orgUnits.Update(r.Context(), id, services.OrgUnitUpdate{
		Name:      req.Name,
		ParentID:  req.ParentID,
		SetParent: req.SetParent,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toOrgUnitResponse(unit))
}

func (c *IAMAPIController) DeleteOrgUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := c.orgUnits.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *IAMAPIController) GetOrgUnitChildren(w http.ResponseWriter, r *http.Request) {
	c.orgUnitListing(w, r, c.orgUnits.GetChildren)
}

func (c *IAMAPIController) GetOrgUnitAncestors(w http.ResponseWriter, r *http.Request) {
	c.orgUnitListing(w, r, c.orgUnits.GetAncestors)
}

func (c *IAMAPIController) GetOrgUnitSubtree(w http.ResponseWriter, r *http.Request) {
	c.orgUnitListing(w, r, c.orgUnits.GetSubtree)
}

func (c *IAMAPIController) orgUnitListing(
	w http.ResponseWriter,
	r *http.Request,
	fetch func(ctx context.Context, id uuid.UUID) ([]orgunit.OrgUnit, error),
) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	units, err := fetch(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toOrgUnitResponses(units))
}

// --- roles ---

func (c *IAMAPIController) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := c.roles.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]roleResponse, len(roles))
	for i, rl := range roles {
		out[i] = toRoleResponse(rl)
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}

func (c *IAMAPIController) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rl, err := c.roles.Create(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, toRoleResponse(rl))
}

func (c *IAMAPIController) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	rl, err := c.roles.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toRoleResponse(rl))
}

func (c *IAMAPIController) RenameRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req roleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rl, err := c.roles.Rename(r.Context(), id, req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toRoleResponse(rl))
}

func (c *IAMAPIController) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := c.roles.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *IAMAPIController) ListRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	perms, err := c.roles.ListPermissions(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]permissionResponse, len(perms))
	for i, p := range perms {
		out[i] = toPermissionResponse(p)
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}

func (c *IAMAPIController) AssignRolePermissions(w http.ResponseWriter, r *http.Request) {
	c.changeRolePermissions(w, r, c.roles.AssignPermissions)
}

func (c *IAMAPIController) ReplaceRolePermissions(w http.ResponseWriter, r *http.Request) {
	c.changeRolePermissions(w, r, c.roles.ReplacePermissions)
}

func (c *IAMAPIController) changeRolePermissions(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, roleID uuid.UUID, codes []string) error,
) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req rolePermissionsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := apply(r.Context(), id, req.Codes); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *IAMAPIController) RemoveRolePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	code := mux.Vars(r)["code"]
	if err := c.roles.RemovePermission(r.Context(), id, code); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- permissions ---

func (c *IAMAPIController) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := c.perms.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]permissionResponse, len(perms))
	for i, p := range perms {
		out[i] = toPermissionResponse(p)
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}

// --- assignments ---

func (c *IAMAPIController) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := c.assignments.Create(r.Context(), toDraft(req))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, toAssignmentResponse(a))
}

func (c *IAMAPIController) BulkCreateAssignments(w http.ResponseWriter, r *http.Request) {
	var req bulkAssignmentsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	drafts := make([]services.AssignmentDraft, len(req.Assignments))
	for i, item := range req.Assignments {
		drafts[i] = toDraft(item)
	}
	created, err := c.assignments.BulkCreate(r.Context(), drafts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, toAssignmentResponses(created))
}

func toDraft(req createAssignmentRequest) services.AssignmentDraft {
	return services.AssignmentDraft{
		UserID:        req.UserID,
		OrgUnitID:     req.OrgUnitID,
		RoleID:        req.RoleID,
		ScopeType:     assignment.ScopeType(req.ScopeType),
		CustomUnitIDs: req.CustomUnitIDs,
	}
}

func (c *IAMAPIController) GetAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	a, err := c.assignments.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toAssignmentResponse(a))
}

func (c *IAMAPIController) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req updateAssignmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	update := services.AssignmentUpdate{RoleID: req.RoleID}
	if req.ScopeType != nil {
		scope := assignment.ScopeType(*req.ScopeType)
		update.ScopeType = &scope
	}
	a, err := c.assignments.Update(r.Context(), id, update)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toAssignmentResponse(a))
}

func (c *IAMAPIController) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := c.assignments.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *IAMAPIController) AddCustomUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req customUnitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := c.assignments.AddCustomUnit(r.Context(), id, req.OrgUnitID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *IAMAPIController) RemoveCustomUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	unitID, ok := pathUUID(w, r, "unitID")
	if !ok {
		return
	}
	if err := c.assignments.RemoveCustomUnit(r.Context(), id, unitID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *IAMAPIController) ListUserAssignments(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	assignments, err := c.assignments.ListByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toAssignmentResponses(assignments))
}

func (c *IAMAPIController) ListOrgUnitAssignments(w http.ResponseWriter, r *http.Request) {
	orgUnitID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	assignments, err := c.assignments.ListByOrgUnit(r.Context(), orgUnitID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, toAssignmentResponses(assignments))
}

// --- effective permissions ---

func (c *IAMAPIController) EffectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	orgUnitID, ok := queryUUID(w, r, "org_unit_id")
	if !ok {
		return
	}
	if !c.canQueryUser(w, r, userID) {
		return
	}

	codes, err := c.access.EffectivePermissions(r.Context(), userID, orgUnitID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, effectivePermissionsResponse{
		UserID:      userID,
		OrgUnitID:   orgUnitID,
		Permissions: codes,
	})
}

func (c *IAMAPIController) CheckPermission(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	orgUnitID, ok := queryUUID(w, r, "org_unit_id")
	if !ok {
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeBadRequest(w, "code is required")
		return
	}
	if !c.canQueryUser(w, r, userID) {
		return
	}

	allowed, err := c.access.HasPermission(r.Context(), userID, orgUnitID, code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, permissionCheckResponse{
		UserID:    userID,
		OrgUnitID: orgUnitID,
		Code:      code,
		Allowed:   allowed,
	})
}

// canQueryUser lets a user inspect their own effective permissions; reading
// someone else's requires the user administration grant.
func (c *IAMAPIController) canQueryUser(w http.ResponseWriter, r *http.Request, userID uuid.UUID) bool {
	session, err := composables.UseSession(r.Context())
	if err != nil {
		writeServiceError(w, r, services.ErrUnauthenticated)
		return false
	}
	if session.UserID == userID {
		return true
	}
	if !session.HasPermission(permissions.SystemUsersRead) {
		writeServiceError(w, r, services.ErrPermissionDenied)
		return false
	}
	return true
}

// --- audit ---

func (c *IAMAPIController) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	params := &auditlog.FindParams{
		EntityType: r.URL.Query().Get("entity_type"),
		Limit:      queryInt(r, "limit", configuration.Use().PageSize),
		Offset:     queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeBadRequest(w, "entity_id is not a valid UUID")
			return
		}
		params.EntityID = id
	}
	if raw := r.URL.Query().Get("actor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeBadRequest(w, "actor_id is not a valid UUID")
			return
		}
		params.ActorID = id
	}
	if max := configuration.Use().MaxPageSize; params.Limit > max {
		params.Limit = max
	}

	logs, err := c.audit.List(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]auditLogResponse, len(logs))
	for i, l := range logs {
		out[i] = toAuditLogResponse(l)
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}

// --- helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeBadRequest(w, name+" is not a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.URL.Query().Get(name))
	if err != nil {
		writeBadRequest(w, name+" is required and must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeBadRequest(w http.ResponseWriter, message string) {
	_ = httpapi.WriteError(w, http.StatusBadRequest, "IAM_BAD_REQUEST", message, nil)
}
