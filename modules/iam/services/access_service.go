package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/assignment"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/orgunit"
	"github.com/shepherdhq/shepherd/modules/iam/domain/events"
	"github.com/shepherdhq/shepherd/pkg/composables"
	"github.com/shepherdhq/shepherd/pkg/eventbus"
)

// AccessService is the single authorization primitive: every protected
// operation reduces to HasPermission (or its failing form, Require) before
// touching tenant data. Evaluations are stateless pure reads, safe to run
// concurrently; nothing is cached between requests.
type AccessService struct {
	assignments assignment.Repository
	units       orgunit.Repository
	hierarchy   *HierarchyService
	publisher   eventbus.EventBus
}

func NewAccessService(
	assignments assignment.Repository,
	units orgunit.Repository,
	hierarchy *HierarchyService,
	publisher eventbus.EventBus,
) *AccessService {
	return &AccessService{
		assignments: assignments,
		units:       units,
		hierarchy:   hierarchy,
		publisher:   publisher,
	}
}

// Covers decides whether the assignment's scope reaches the target unit.
// Cross-tenant targets are always false regardless of scope type, even
// though tenant filtering upstream should already exclude them.
func (s *AccessService) Covers(ctx context.Context, a assignment.Assignment, target orgunit.OrgUnit) (bool, error) {
	if a.TenantID() != target.TenantID() {
		return false, nil
	}
	if a.OrgUnitID() == target.ID() {
		return true, nil
	}

	switch a.ScopeType() {
	case assignment.ScopeSelf:
		return false, nil
	case assignment.ScopeSubtree:
		return s.hierarchy.IsDescendant(ctx, a.TenantID(), target.ID(), a.OrgUnitID())
	case assignment.ScopeCustomSet:
		// Flat membership: listing a unit does not pull in its subtree.
		return a.HasCustomUnit(target.ID()), nil
	default:
		// Unknown scope types grant nothing.
		return false, nil
	}
}

// EffectivePermissions computes the union of permission codes across every
// assignment whose scope covers the target org unit. The result is sorted
// and deduplicated. Roles referencing deleted permissions simply contribute
// nothing.
func (s *AccessService) EffectivePermissions(ctx context.Context, userID, targetOrgUnitID uuid.UUID) ([]string, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	target, err := s.units.GetByID(ctx, tenantID, targetOrgUnitID)
	if err != nil {
		return nil, err
	}

	assignments, err := s.assignments.ListByUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	roleIDs := make([]uuid.UUID, 0, len(assignments))
	seen := make(map[uuid.UUID]struct{}, len(assignments))
	for _, a := range assignments {
		covered, err := s.Covers(ctx, a, target)
		if err != nil {
			return nil, err
		}
		if !covered {
			continue
		}
		if _, ok := seen[a.RoleID()]; ok {
			continue
		}
		seen[a.RoleID()] = struct{}{}
		roleIDs = append(roleIDs, a.RoleID())
	}

	if len(roleIDs) == 0 {
		return []string{}, nil
	}

	codesByRole, err := s.assignments.PermissionCodesByRole(ctx, roleIDs)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for _, codes := range codesByRole {
		for _, code := range codes {
			set[code] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

// HasPermission is the membership test on the effective permission set.
func (s *AccessService) HasPermission(ctx context.Context, userID, targetOrgUnitID uuid.UUID, code string) (bool, error) {
	started := time.Now()
	codes, err := s.EffectivePermissions(ctx, userID, targetOrgUnitID)
	if err != nil {
		return false, err
	}
	allowed := false
	for _, c := range codes {
		if c == code {
			allowed = true
			break
		}
	}
	recordAccessCheck(allowed, time.Since(started))
	return allowed, nil
}

// Require is the boundary form: it fails with ErrPermissionDenied when the
// check does not pass and reports the denial to the audit stream. A missing
// target unit is reported as a denial too, so callers cannot learn whether
// the resource exists.
func (s *AccessService) Require(ctx context.Context, userID, targetOrgUnitID uuid.UUID, code string) error {
	allowed, err := s.HasPermission(ctx, userID, targetOrgUnitID, code)
	if err != nil {
		if errors.Is(err, orgunit.ErrNotFound) {
			s.deny(ctx, userID, targetOrgUnitID, code)
			return ErrPermissionDenied
		}
		return err
	}
	if !allowed {
		s.deny(ctx, userID, targetOrgUnitID, code)
		return ErrPermissionDenied
	}
	return nil
}

func (s *AccessService) deny(ctx context.Context, userID, targetOrgUnitID uuid.UUID, code string) {
	if logger, ok := composables.TryUseLogger(ctx); ok {
		logger.WithFields(logrus.Fields{
			"user_id":     userID,
			"org_unit_id": targetOrgUnitID,
			"permission":  code,
		}).Warn("iam: permission denied")
	}
	if s.publisher != nil {
		s.publisher.Publish(events.PermissionDenied{Entry: events.NewEntry(
			ctx, "deny", "permissions", targetOrgUnitID, nil,
			map[string]any{"user_id": userID.String(), "permission": code},
		)})
	}
}
