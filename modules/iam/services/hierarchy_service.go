package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/orgunit"
)

// maxHierarchyDepth bounds parent-chain walks. Real organizational trees
// stay under ten levels; hitting the guard means corrupted data.
const maxHierarchyDepth = 32

// HierarchyService answers ancestry questions over the org unit tree and
// guards structural writes against cycles, cross-tenant links and type
// ordering violations. The tree is small, so on-demand parent-pointer
// traversal is used instead of a closure table.
type HierarchyService struct {
	units orgunit.Repository
}

func NewHierarchyService(units orgunit.Repository) *HierarchyService {
	return &HierarchyService{units: units}
}

// GetAncestors returns the chain from the unit's immediate parent up to the
// root, in that order.
func (s *HierarchyService) GetAncestors(ctx context.Context, tenantID, unitID uuid.UUID) ([]orgunit.OrgUnit, error) {
	current, err := s.units.GetByID(ctx, tenantID, unitID)
	if err != nil {
		return nil, err
	}

	ancestors := make([]orgunit.OrgUnit, 0, 4)
	for depth := 0; current.ParentID() != nil; depth++ {
		if depth >= maxHierarchyDepth {
			return nil, fmt.Errorf("%w: ancestors of %s", ErrHierarchyCorrupt, unitID)
		}
		parent, err := s.units.GetByID(ctx, tenantID, *current.ParentID())
		if err != nil {
			return nil, err
		}
		ancestors = append(ancestors, parent)
		current = parent
	}
	return ancestors, nil
}

// GetDescendants returns every unit below the given one, unbounded depth.
func (s *HierarchyService) GetDescendants(ctx context.Context, tenantID, unitID uuid.UUID) ([]orgunit.OrgUnit, error) {
	if _, err := s.units.GetByID(ctx, tenantID, unitID); err != nil {
		return nil, err
	}

	descendants := make([]orgunit.OrgUnit, 0, 8)
	frontier := []uuid.UUID{unitID}
	for depth := 0; len(frontier) > 0; depth++ {
		if depth >= maxHierarchyDepth {
			return nil, fmt.Errorf("%w: descendants of %s", ErrHierarchyCorrupt, unitID)
		}
		next := make([]uuid.UUID, 0, len(frontier))
		for _, id := range frontier {
			children, err := s.units.GetChildren(ctx, tenantID, id)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				descendants = append(descendants, child)
				next = append(next, child.ID())
			}
		}
		frontier = next
	}
	return descendants, nil
}

// IsDescendant reports whether candidate sits strictly below ancestor: a
// unit is never its own descendant.
func (s *HierarchyService) IsDescendant(ctx context.Context, tenantID, candidateID, ancestorID uuid.UUID) (bool, error) {
	if candidateID == ancestorID {
		return false, nil
	}

	current, err := s.units.GetByID(ctx, tenantID, candidateID)
	if err != nil {
		return false, err
	}
	for depth := 0; current.ParentID() != nil; depth++ {
		if depth >= maxHierarchyDepth {
			return false, fmt.Errorf("%w: ancestry of %s", ErrHierarchyCorrupt, candidateID)
		}
		if *current.ParentID() == ancestorID {
			return true, nil
		}
		current, err = s.units.GetByID(ctx, tenantID, *current.ParentID())
		if err != nil {
			return false, err
		}
	}
	return false, nil
}

// ValidateParent checks a prospective parent link for the unit: the parent
// must exist in the same tenant, sit strictly higher in the type ordering,
// and not be the unit itself or one of its descendants.
func (s *HierarchyService) ValidateParent(ctx context.Context, unit orgunit.OrgUnit, parentID *uuid.UUID) error {
	if parentID == nil {
		return nil
	}
	if *parentID == unit.ID() {
		return ErrCycleDetected
	}

	parent, err := s.units.GetByID(ctx, unit.TenantID(), *parentID)
	if err != nil {
		return err
	}
	if parent.TenantID() != unit.TenantID() {
		return ErrCrossTenant
	}

	childLevel := unit.Type().Level()
	parentLevel := parent.Type().Level()
	if childLevel < 0 || parentLevel < 0 || childLevel <= parentLevel {
		return ErrValidation.WithTemplateData(map[string]string{
			"reason": fmt.Sprintf("cannot place %s under %s", unit.Type(), parent.Type()),
		})
	}

	// Reparenting onto a descendant would close a loop.
	isDesc, err := s.IsDescendant(ctx, unit.TenantID(), *parentID, unit.ID())
	if err != nil {
		return err
	}
	if isDesc {
		return ErrCycleDetected
	}
	return nil
}
