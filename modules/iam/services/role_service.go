package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/permission"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/role"
	"github.com/shepherdhq/shepherd/modules/iam/domain/events"
	"github.com/shepherdhq/shepherd/modules/iam/permissions"
	"github.com/shepherdhq/shepherd/pkg/composables"
	"github.com/shepherdhq/shepherd/pkg/eventbus"
)

// RoleService administers tenant-scoped roles and their permission grants.
// Roles have no org unit target, so authorization uses the coarse session
// grant.
type RoleService struct {
	roles       role.Repository
	perms       permission.Repository
	assignments roleUsageCounter
	publisher   eventbus.EventBus
}

type roleUsageCounter interface {
	CountByRole(ctx context.Context, tenantID, roleID uuid.UUID) (int64, error)
}

func NewRoleService(
	roles role.Repository,
	perms permission.Repository,
	assignments roleUsageCounter,
	publisher eventbus.EventBus,
) *RoleService {
	return &RoleService{
		roles:       roles,
		perms:       perms,
		assignments: assignments,
		publisher:   publisher,
	}
}

func (s *RoleService) List(ctx context.Context) ([]role.Role, error) {
	tenantID, err := requireSessionPermission(ctx, permissions.SystemRolesRead)
	if err != nil {
		return nil, err
	}
	return s.roles.List(ctx, tenantID)
}

func (s *RoleService) GetByID(ctx context.Context, id uuid.UUID) (role.Role, error) {
	tenantID, err := requireSessionPermission(ctx, permissions.SystemRolesRead)
	if err != nil {
		return role.Role{}, err
	}
	return s.roles.GetByID(ctx, tenantID, id)
}

func (s *RoleService) Create(ctx context.Context, name string) (role.Role, error) {
	tenantID, err := requireSessionPermission(ctx, permissions.SystemRolesCreate)
	if err != nil {
		return role.Role{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return role.Role{}, ErrValidation.WithTemplateData(map[string]string{"reason": "role name must not be empty"})
	}

	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (role.Role, error) {
		if err := s.ensureNameFree(txCtx, tenantID, name, uuid.Nil); err != nil {
			return role.Role{}, err
		}
		return s.roles.Create(txCtx, role.New(tenantID, name))
	})
	if err != nil {
		return role.Role{}, err
	}

	s.publisher.Publish(events.RoleCreated{Entry: events.NewEntry(
		ctx, "create", "roles", created.ID(), nil, roleSnapshot(created),
	)})
	return created, nil
}

func (s *RoleService) Rename(ctx context.Context, id uuid.UUID, name string) (role.Role, error) {
	tenantID, err := requireSessionPermission(ctx, permissions.SystemRolesUpdate)
	if err != nil {
		return role.Role{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return role.Role{}, ErrValidation.WithTemplateData(map[string]string{"reason": "role name must not be empty"})
	}

	var before map[string]any
	updated, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (role.Role, error) {
		r, err := s.roles.GetByID(txCtx, tenantID, id)
		if err != nil {
			return role.Role{}, err
		}
		before = roleSnapshot(r)
		if err := s.ensureNameFree(txCtx, tenantID, name, id); err != nil {
			return role.Role{}, err
		}
		return s.roles.Update(txCtx, r.Renamed(name))
	})
	if err != nil {
		return role.Role{}, err
	}

	s.publisher.Publish(events.RoleUpdated{Entry: events.NewEntry(
		ctx, "update", "roles", updated.ID(), before, roleSnapshot(updated),
	)})
	return updated, nil
}

func (s *RoleService) Delete(ctx context.Context, id uuid.UUID) error {
	tenantID, err := requireSessionPermission(ctx, permissions.SystemRolesDelete)
	if err != nil {
		return err
	}

	var before map[string]any
	err = composables.InTenantTx(ctx, func(txCtx context.Context) error {
		r, err := s.roles.GetByID(txCtx, tenantID, id)
		if err != nil {
			return err
		}
		before = roleSnapshot(r)

		count, err := s.assignments.CountByRole(txCtx, tenantID, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return ErrHasDependents.WithTemplateData(map[string]string{
				"reason": "role is still referenced by user assignments",
			})
		}
		return s.roles.Delete(txCtx, tenantID, id)
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(events.RoleDeleted{Entry: events.NewEntry(
		ctx, "delete", "roles", id, before, nil,
	)})
	return nil
}

func (s *RoleService) ListPermissions(ctx context.Context, roleID uuid.UUID) ([]permission.Permission, error) {
	tenantID, err := requireSessionPermission(ctx, permissions.SystemRolesRead)
	if err != nil {
		return nil, err
	}
	if _, err := s.roles.GetByID(ctx, tenantID, roleID); err != nil {
		return nil, err
	}
	return s.roles.ListPermissions(ctx, roleID)
}

// AssignPermissions attaches catalog permissions to the role with set
// semantics. Unknown codes fail the whole call.
func (s *RoleService) AssignPermissions(ctx context.Context, roleID uuid.UUID, codes []string) error {
	return s.changePermissions(ctx, roleID, codes, func(txCtx context.Context, ids []uuid.UUID) error {
		return s.roles.AssignPermissions(txCtx, roleID, ids)
	})
}

// ReplacePermissions swaps the role's permission set atomically.
func (s *RoleService) ReplacePermissions(ctx context.Context, roleID uuid.UUID, codes []string) error {
	return s.changePermissions(ctx, roleID, codes, func(txCtx context.Context, ids []uuid.UUID) error {
		return s.roles.ReplacePermissions(txCtx, roleID, ids)
	})
}

func (s *RoleService) RemovePermission(ctx context.Context, roleID uuid.UUID, code string) error {
	tenantID, err := requireSessionPermission(ctx, permissions.SystemRolesUpdate)
	if err != nil {
		return err
	}

	err = composables.InTenantTx(ctx, func(txCtx context.Context) error {
		if _, err := s.roles.GetByID(txCtx, tenantID, roleID); err != nil {
			return err
		}
		p, err := s.perms.GetByCode(txCtx, code)
		if err != nil {
			return err
		}
		return s.roles.RemovePermission(txCtx, roleID, p.ID())
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(events.RolePermissionsChanged{Entry: events.NewEntry(
		ctx, "update", "role_permissions", roleID, nil, map[string]any{"removed": code},
	)})
	return nil
}

func (s *RoleService) changePermissions(
	ctx context.Context,
	roleID uuid.UUID,
	codes []string,
	apply func(context.Context, []uuid.UUID) error,
) error {
	tenantID, err := requireSessionPermission(ctx, permissions.SystemRolesUpdate)
	if err != nil {
		return err
	}

	err = composables.InTenantTx(ctx, func(txCtx context.Context) error {
		if _, err := s.roles.GetByID(txCtx, tenantID, roleID); err != nil {
			return err
		}
		ids, err := s.resolveCodes(txCtx, codes)
		if err != nil {
			return err
		}
		return apply(txCtx, ids)
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(events.RolePermissionsChanged{Entry: events.NewEntry(
		ctx, "update", "role_permissions", roleID, nil, map[string]any{"codes": strings.Join(codes, ",")},
	)})
	return nil
}

func (s *RoleService) resolveCodes(ctx context.Context, codes []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		if !permissions.Known(code) {
			return nil, ErrValidation.WithTemplateData(map[string]string{
				"reason": "unknown permission code: " + code,
			})
		}
		p, err := s.perms.GetByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		ids = append(ids, p.ID())
	}
	return ids, nil
}

func (s *RoleService) ensureNameFree(ctx context.Context, tenantID uuid.UUID, name string, excludeID uuid.UUID) error {
	existing, err := s.roles.GetByName(ctx, tenantID, name)
	switch {
	case err == nil:
		if existing.ID() != excludeID {
			return ErrConflict.WithTemplateData(map[string]string{
				"reason": "a role with this name already exists",
			})
		}
		return nil
	case errors.Is(err, role.ErrNotFound):
		return nil
	default:
		return err
	}
}

func roleSnapshot(r role.Role) map[string]any {
	return map[string]any{
		"id":   r.ID().String(),
		"name": r.Name(),
	}
}
