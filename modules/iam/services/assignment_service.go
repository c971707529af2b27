package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/assignment"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/orgunit"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/role"
	"github.com/shepherdhq/shepherd/modules/iam/domain/events"
	"github.com/shepherdhq/shepherd/modules/iam/permissions"
	"github.com/shepherdhq/shepherd/pkg/composables"
	"github.com/shepherdhq/shepherd/pkg/eventbus"
)

// AssignmentService grants and revokes role assignments. Every write is
// authorized against the assignment's root org unit with a targeted check:
// the actor must hold system.users.assign covering that unit, and for
// custom_set scopes, every enumerated unit as well.
type AssignmentService struct {
	assignments assignment.Repository
	units       orgunit.Repository
	roles       role.Repository
	access      *AccessService
	publisher   eventbus.EventBus
}

func NewAssignmentService(
	assignments assignment.Repository,
	units orgunit.Repository,
	roles role.Repository,
	access *AccessService,
	publisher eventbus.EventBus,
) *AssignmentService {
	return &AssignmentService{
		assignments: assignments,
		units:       units,
		roles:       roles,
		access:      access,
		publisher:   publisher,
	}
}

// AssignmentDraft is one requested grant.
type AssignmentDraft struct {
	UserID        uuid.UUID
	OrgUnitID     uuid.UUID
	RoleID        uuid.UUID
	ScopeType     assignment.ScopeType
	CustomUnitIDs []uuid.UUID
}

func (s *AssignmentService) GetByID(ctx context.Context, id uuid.UUID) (assignment.Assignment, error) {
	tenantID, err := requireSessionPermission(ctx, permissions.SystemUsersRead)
	if err != nil {
		return assignment.Assignment{}, err
	}
	return s.assignments.GetByID(ctx, tenantID, id)
}

func (s *AssignmentService) ListByUser(ctx context.Context, userID uuid.UUID) ([]assignment.Assignment, error) {
	tenantID, err := requireSessionPermission(ctx, permissions.SystemUsersRead)
	if err != nil {
		return nil, err
	}
	return s.assignments.ListByUser(ctx, tenantID, userID)
}

func (s *AssignmentService) ListByOrgUnit(ctx context.Context, orgUnitID uuid.UUID) ([]assignment.Assignment, error) {
	tenantID, _, err := requireTargeted(ctx, s.access, orgUnitID, permissions.SystemUsersRead)
	if err != nil {
		return nil, err
	}
	return s.assignments.ListByOrgUnit(ctx, tenantID, orgUnitID)
}

func (s *AssignmentService) Create(ctx context.Context, draft AssignmentDraft) (assignment.Assignment, error) {
	tenantID, _, err := requireTargeted(ctx, s.access, draft.OrgUnitID, permissions.SystemUsersAssign)
	if err != nil {
		return assignment.Assignment{}, err
	}
	if err := s.authorizeCustomUnits(ctx, draft.ScopeType, draft.CustomUnitIDs); err != nil {
		return assignment.Assignment{}, err
	}

	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (assignment.Assignment, error) {
		return s.create(txCtx, tenantID, draft)
	})
	if err != nil {
		return assignment.Assignment{}, err
	}

	s.publisher.Publish(events.AssignmentCreated{Entry: events.NewEntry(
		ctx, "create", "org_assignments", created.ID(), nil, assignmentSnapshot(created),
	)})
	return created, nil
}

// BulkCreate applies all drafts in one transaction; the first failure rolls
// back every grant.
func (s *AssignmentService) BulkCreate(ctx context.Context, drafts []AssignmentDraft) ([]assignment.Assignment, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	actorID, err := composables.UseUserID(ctx)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	for _, draft := range drafts {
		if err := s.access.Require(ctx, actorID, draft.OrgUnitID, permissions.SystemUsersAssign); err != nil {
			return nil, err
		}
		if err := s.authorizeCustomUnits(ctx, draft.ScopeType, draft.CustomUnitIDs); err != nil {
			return nil, err
		}
	}

	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]assignment.Assignment, error) {
		out := make([]assignment.Assignment, 0, len(drafts))
		for _, draft := range drafts {
			a, err := s.create(txCtx, tenantID, draft)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	for _, a := range created {
		s.publisher.Publish(events.AssignmentCreated{Entry: events.NewEntry(
			ctx, "create", "org_assignments", a.ID(), nil, assignmentSnapshot(a),
		)})
	}
	return created, nil
}

func (s *AssignmentService) create(ctx context.Context, tenantID uuid.UUID, draft AssignmentDraft) (assignment.Assignment, error) {
	if err := validateDraft(draft); err != nil {
		return assignment.Assignment{}, err
	}
	if _, err := s.units.GetByID(ctx, tenantID, draft.OrgUnitID); err != nil {
		return assignment.Assignment{}, err
	}
	if _, err := s.roles.GetByID(ctx, tenantID, draft.RoleID); err != nil {
		return assignment.Assignment{}, err
	}
	for _, unitID := range draft.CustomUnitIDs {
		if _, err := s.units.GetByID(ctx, tenantID, unitID); err != nil {
			return assignment.Assignment{}, err
		}
	}

	exists, err := s.assignments.ExistsForUserAndUnit(ctx, tenantID, draft.UserID, draft.OrgUnitID)
	if err != nil {
		return assignment.Assignment{}, err
	}
	if exists {
		return assignment.Assignment{}, ErrConflict.WithTemplateData(map[string]string{
			"reason": "user already has an assignment at this org unit",
		})
	}

	a := assignment.New(tenantID, draft.UserID, draft.OrgUnitID, draft.RoleID, draft.ScopeType)
	if draft.ScopeType == assignment.ScopeCustomSet {
		a = a.WithCustomUnits(dedupeUnits(draft.CustomUnitIDs))
	}
	return s.assignments.Create(ctx, a)
}

// AssignmentUpdate carries the mutable fields of an assignment. Changing the
// scope away from custom_set drops the enumerated units.
type AssignmentUpdate struct {
	RoleID    *uuid.UUID
	ScopeType *assignment.ScopeType
}

func (s *AssignmentService) Update(ctx context.Context, id uuid.UUID, update AssignmentUpdate) (assignment.Assignment, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return assignment.Assignment{}, ErrUnauthenticated
	}
	current, err := s.assignments.GetByID(ctx, tenantID, id)
	if err != nil {
		return assignment.Assignment{}, err
	}
	if _, _, err := requireTargeted(ctx, s.access, current.OrgUnitID(), permissions.SystemUsersAssign); err != nil {
		return assignment.Assignment{}, err
	}

	before := assignmentSnapshot(current)
	updated, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (assignment.Assignment, error) {
		a, err := s.assignments.GetByID(txCtx, tenantID, id)
		if err != nil {
			return assignment.Assignment{}, err
		}
		if update.RoleID != nil {
			if _, err := s.roles.GetByID(txCtx, tenantID, *update.RoleID); err != nil {
				return assignment.Assignment{}, err
			}
			a = a.WithRole(*update.RoleID)
		}
		if update.ScopeType != nil {
			if !update.ScopeType.IsValid() {
				return assignment.Assignment{}, ErrValidation.WithTemplateData(map[string]string{
					"reason": "unknown scope type: " + string(*update.ScopeType),
				})
			}
			a = a.WithScopeType(*update.ScopeType)
		}
		return s.assignments.Update(txCtx, a)
	})
	if err != nil {
		return assignment.Assignment{}, err
	}

	s.publisher.Publish(events.AssignmentUpdated{Entry: events.NewEntry(
		ctx, "update", "org_assignments", updated.ID(), before, assignmentSnapshot(updated),
	)})
	return updated, nil
}

func (s *AssignmentService) Delete(ctx context.Context, id uuid.UUID) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return ErrUnauthenticated
	}
	current, err := s.assignments.GetByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if _, _, err := requireTargeted(ctx, s.access, current.OrgUnitID(), permissions.SystemUsersAssign); err != nil {
		return err
	}

	err = composables.InTenantTx(ctx, func(txCtx context.Context) error {
		return s.assignments.Delete(txCtx, tenantID, id)
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(events.AssignmentDeleted{Entry: events.NewEntry(
		ctx, "delete", "org_assignments", id, assignmentSnapshot(current), nil,
	)})
	return nil
}

func (s *AssignmentService) AddCustomUnit(ctx context.Context, assignmentID, orgUnitID uuid.UUID) error {
	tenantID, current, err := s.requireCustomSetWrite(ctx, assignmentID, orgUnitID)
	if err != nil {
		return err
	}

	err = composables.InTenantTx(ctx, func(txCtx context.Context) error {
		if _, err := s.units.GetByID(txCtx, tenantID, orgUnitID); err != nil {
			return err
		}
		if current.HasCustomUnit(orgUnitID) {
			return ErrConflict.WithTemplateData(map[string]string{
				"reason": "org unit is already in the custom set",
			})
		}
		return s.assignments.AddCustomUnit(txCtx, assignmentID, orgUnitID)
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(events.CustomUnitAdded{Entry: events.NewEntry(
		ctx, "update", "org_assignment_units", assignmentID, nil,
		map[string]any{"org_unit_id": orgUnitID.String()},
	)})
	return nil
}

func (s *AssignmentService) RemoveCustomUnit(ctx context.Context, assignmentID, orgUnitID uuid.UUID) error {
	_, _, err := s.requireCustomSetWrite(ctx, assignmentID, orgUnitID)
	if err != nil {
		return err
	}

	err = composables.InTenantTx(ctx, func(txCtx context.Context) error {
		return s.assignments.RemoveCustomUnit(txCtx, assignmentID, orgUnitID)
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(events.CustomUnitRemoved{Entry: events.NewEntry(
		ctx, "update", "org_assignment_units", assignmentID,
		map[string]any{"org_unit_id": orgUnitID.String()}, nil,
	)})
	return nil
}

// requireCustomSetWrite authorizes a custom set mutation: the actor must
// cover both the assignment's root unit and the unit being added or removed,
// and the assignment must actually use custom_set scope.
func (s *AssignmentService) requireCustomSetWrite(ctx context.Context, assignmentID, orgUnitID uuid.UUID) (uuid.UUID, assignment.Assignment, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return uuid.Nil, assignment.Assignment{}, ErrUnauthenticated
	}
	current, err := s.assignments.GetByID(ctx, tenantID, assignmentID)
	if err != nil {
		return uuid.Nil, assignment.Assignment{}, err
	}
	if current.ScopeType() != assignment.ScopeCustomSet {
		return uuid.Nil, assignment.Assignment{}, ErrValidation.WithTemplateData(map[string]string{
			"reason": "assignment scope is not custom_set",
		})
	}
	if _, _, err := requireTargeted(ctx, s.access, current.OrgUnitID(), permissions.SystemUsersAssign); err != nil {
		return uuid.Nil, assignment.Assignment{}, err
	}
	if _, _, err := requireTargeted(ctx, s.access, orgUnitID, permissions.SystemUsersAssign); err != nil {
		return uuid.Nil, assignment.Assignment{}, err
	}
	return tenantID, current, nil
}

// authorizeCustomUnits checks the actor covers every enumerated unit of a
// custom_set draft before any write happens.
func (s *AssignmentService) authorizeCustomUnits(ctx context.Context, scopeType assignment.ScopeType, unitIDs []uuid.UUID) error {
	if scopeType != assignment.ScopeCustomSet || len(unitIDs) == 0 {
		return nil
	}
	actorID, err := composables.UseUserID(ctx)
	if err != nil {
		return ErrUnauthenticated
	}
	for _, unitID := range unitIDs {
		if err := s.access.Require(ctx, actorID, unitID, permissions.SystemUsersAssign); err != nil {
			return err
		}
	}
	return nil
}

func validateDraft(draft AssignmentDraft) error {
	if draft.UserID == uuid.Nil || draft.OrgUnitID == uuid.Nil || draft.RoleID == uuid.Nil {
		return ErrValidation.WithTemplateData(map[string]string{
			"reason": "user, org unit and role are required",
		})
	}
	if !draft.ScopeType.IsValid() {
		return ErrValidation.WithTemplateData(map[string]string{
			"reason": "unknown scope type: " + string(draft.ScopeType),
		})
	}
	if draft.ScopeType != assignment.ScopeCustomSet && len(draft.CustomUnitIDs) > 0 {
		return ErrValidation.WithTemplateData(map[string]string{
			"reason": "custom units are only valid for custom_set scope",
		})
	}
	return nil
}

func dedupeUnits(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func assignmentSnapshot(a assignment.Assignment) map[string]any {
	snapshot := map[string]any{
		"id":          a.ID().String(),
		"user_id":     a.UserID().String(),
		"org_unit_id": a.OrgUnitID().String(),
		"role_id":     a.RoleID().String(),
		"scope_type":  string(a.ScopeType()),
	}
	if ids := a.CustomUnitIDs(); len(ids) > 0 {
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = id.String()
		}
		snapshot["custom_unit_ids"] = strings.Join(strs, ",")
	}
	return snapshot
}
