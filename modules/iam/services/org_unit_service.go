package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/orgunit"
	"github.com/shepherdhq/shepherd/modules/iam/domain/events"
	"github.com/shepherdhq/shepherd/modules/iam/permissions"
	"github.com/shepherdhq/shepherd/pkg/composables"
	"github.com/shepherdhq/shepherd/pkg/eventbus"
)

// OrgUnitService owns administrative reads and structural writes on the
// org unit tree. Structural validation (cycles, tenant, type order) runs
// inside the same transaction as the write so a concurrent reparent cannot
// slip a loop past the check.
type OrgUnitService struct {
	units       orgunit.Repository
	hierarchy   *HierarchyService
	access      *AccessService
	assignments assignmentCounter
	publisher   eventbus.EventBus
}

// assignmentCounter is the slice of the assignment repository the org unit
// service needs for delete blocking.
type assignmentCounter interface {
	CountByOrgUnit(ctx context.Context, tenantID, orgUnitID uuid.UUID) (int64, error)
}

func NewOrgUnitService(
	units orgunit.Repository,
	hierarchy *HierarchyService,
	access *AccessService,
	assignments assignmentCounter,
	publisher eventbus.EventBus,
) *OrgUnitService {
	return &OrgUnitService{
		units:       units,
		hierarchy:   hierarchy,
		access:      access,
		assignments: assignments,
		publisher:   publisher,
	}
}

// OrgUnitUpdate carries the mutable fields of an org unit. SetParent
// distinguishes "reparent to ParentID (possibly nil, making it a root)"
// from "leave the parent alone".
type OrgUnitUpdate struct {
	Name      *string
	ParentID  *uuid.UUID
	SetParent bool
}

func (s *OrgUnitService) List(ctx context.Context, params *orgunit.FindParams) ([]orgunit.OrgUnit, error) {
	tenantID, err := requireSessionPermission(ctx, permissions.SystemOrgUnitsRead)
	if err != nil {
		return nil, err
	}
	return s.units.List(ctx, tenantID, params)
}

func (s *OrgUnitService) GetByID(ctx context.Context, id uuid.UUID) (orgunit.OrgUnit, error) {
	tenantID, _, err := requireTargeted(ctx, s.access, id, permissions.SystemOrgUnitsRead)
	if err != nil {
		return orgunit.OrgUnit{}, err
	}
	return s.units.GetByID(ctx, tenantID, id)
}

func (s *OrgUnitService) GetChildren(ctx context.Context, id uuid.UUID) ([]orgunit.OrgUnit, error) {
	tenantID, _, err := requireTargeted(ctx, s.access, id, permissions.SystemOrgUnitsRead)
	if err != nil {
		return nil, err
	}
	return s.units.GetChildren(ctx, tenantID, id)
}

func (s *OrgUnitService) GetAncestors(ctx context.Context, id uuid.UUID) ([]orgunit.OrgUnit, error) {
	tenantID, _, err := requireTargeted(ctx, s.access, id, permissions.SystemOrgUnitsRead)
	if err != nil {
		return nil, err
	}
	return s.hierarchy.GetAncestors(ctx, tenantID, id)
}

func (s *OrgUnitService) GetSubtree(ctx context.Context, id uuid.UUID) ([]orgunit.OrgUnit, error) {
	tenantID, _, err := requireTargeted(ctx, s.access, id, permissions.SystemOrgUnitsRead)
	if err != nil {
		return nil, err
	}
	root, err := s.units.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	descendants, err := s.hierarchy.GetDescendants(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return append([]orgunit.OrgUnit{root}, descendants...), nil
}

func (s *OrgUnitService) Create(ctx context.Context, name string, unitType orgunit.Type, parentID *uuid.UUID) (orgunit.OrgUnit, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return orgunit.OrgUnit{}, ErrUnauthenticated
	}

	name = strings.TrimSpace(name)
	if name == "" || !unitType.IsValid() {
		return orgunit.OrgUnit{}, ErrValidation.WithTemplateData(map[string]string{
			"reason": "name and a valid org unit type are required",
		})
	}

	// Creating under a parent is authorized against that parent; creating
	// a new root has no target unit, so only the coarse grant applies.
	if parentID != nil {
		actorID, err := composables.UseUserID(ctx)
		if err != nil {
			return orgunit.OrgUnit{}, ErrUnauthenticated
		}
		if err := s.access.Require(ctx, actorID, *parentID, permissions.SystemOrgUnitsCreate); err != nil {
			return orgunit.OrgUnit{}, err
		}
	} else if _, err := requireSessionPermission(ctx, permissions.SystemOrgUnitsCreate); err != nil {
		return orgunit.OrgUnit{}, err
	}

	unit := orgunit.New(tenantID, name, unitType, parentID)

	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (orgunit.OrgUnit, error) {
		if err := s.hierarchy.ValidateParent(txCtx, unit, parentID); err != nil {
			return orgunit.OrgUnit{}, err
		}
		taken, err := s.units.ExistsSiblingNamed(txCtx, tenantID, parentID, name, uuid.Nil)
		if err != nil {
			return orgunit.OrgUnit{}, err
		}
		if taken {
			return orgunit.OrgUnit{}, ErrConflict.WithTemplateData(map[string]string{
				"reason": "an org unit with this name already exists under the same parent",
			})
		}
		return s.units.Create(txCtx, unit)
	})
	if err != nil {
		return orgunit.OrgUnit{}, err
	}

	s.publisher.Publish(events.OrgUnitCreated{Entry: events.NewEntry(
		ctx, "create", "org_units", created.ID(), nil, orgUnitSnapshot(created),
	)})
	return created, nil
}

func (s *OrgUnitService) Update(ctx context.Context, id uuid.UUID, update OrgUnitUpdate) (orgunit.OrgUnit, error) {
	tenantID, _, err := requireTargeted(ctx, s.access, id, permissions.SystemOrgUnitsUpdate)
	if err != nil {
		return orgunit.OrgUnit{}, err
	}

	var before, after map[string]any
	updated, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (orgunit.OrgUnit, error) {
		unit, err := s.units.GetByID(txCtx, tenantID, id)
		if err != nil {
			return orgunit.OrgUnit{}, err
		}
		before = orgUnitSnapshot(unit)

		if update.Name != nil {
			name := strings.TrimSpace(*update.Name)
			if name == "" {
				return orgunit.OrgUnit{}, ErrValidation.WithTemplateData(map[string]string{"reason": "name must not be empty"})
			}
			unit = unit.Renamed(name)
		}
		if update.SetParent {
			// Acyclicity is re-validated here, inside the transaction that
			// performs the structural write.
			if err := s.hierarchy.ValidateParent(txCtx, unit, update.ParentID); err != nil {
				return orgunit.OrgUnit{}, err
			}
			unit = unit.Reparented(update.ParentID)
		}

		taken, err := s.units.ExistsSiblingNamed(txCtx, tenantID, unit.ParentID(), unit.Name(), unit.ID())
		if err != nil {
			return orgunit.OrgUnit{}, err
		}
		if taken {
			return orgunit.OrgUnit{}, ErrConflict.WithTemplateData(map[string]string{
				"reason": "an org unit with this name already exists under the same parent",
			})
		}

		saved, err := s.units.Update(txCtx, unit)
		if err != nil {
			return orgunit.OrgUnit{}, err
		}
		after = orgUnitSnapshot(saved)
		return saved, nil
	})
	if err != nil {
		return orgunit.OrgUnit{}, err
	}

	s.publisher.Publish(events.OrgUnitUpdated{Entry: events.NewEntry(
		ctx, "update", "org_units", updated.ID(), before, after,
	)})
	return updated, nil
}

func (s *OrgUnitService) Delete(ctx context.Context, id uuid.UUID) error {
	tenantID, _, err := requireTargeted(ctx, s.access, id, permissions.SystemOrgUnitsDelete)
	if err != nil {
		return err
	}

	var before map[string]any
	err = composables.InTenantTx(ctx, func(txCtx context.Context) error {
		unit, err := s.units.GetByID(txCtx, tenantID, id)
		if err != nil {
			return err
		}
		before = orgUnitSnapshot(unit)

		children, err := s.units.GetChildren(txCtx, tenantID, id)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return ErrHasDependents.WithTemplateData(map[string]string{
				"reason": "org unit still has children",
			})
		}
		count, err := s.assignments.CountByOrgUnit(txCtx, tenantID, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrHasDependents.WithTemplateData(map[string]string{
				"reason": "org unit still has user assignments",
			})
		}
		return s.units.Delete(txCtx, tenantID, id)
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(events.OrgUnitDeleted{Entry: events.NewEntry(
		ctx, "delete", "org_units", id, before, nil,
	)})
	return nil
}

func orgUnitSnapshot(u orgunit.OrgUnit) map[string]any {
	snapshot := map[string]any{
		"id":   u.ID().String(),
		"name": u.Name(),
		"type": string(u.Type()),
	}
	if u.ParentID() != nil {
		snapshot["parent_id"] = u.ParentID().String()
	}
	return snapshot
}
