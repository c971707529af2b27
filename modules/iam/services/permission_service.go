package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/permission"
	"github.com/shepherdhq/shepherd/modules/iam/domain/entities/role"
	"github.com/shepherdhq/shepherd/modules/iam/permissions"
	"github.com/shepherdhq/shepherd/pkg/composables"
)

// PermissionService serves the read-only permission catalog and the seed
// paths that bootstrap it: the code catalog itself, and the CSV role
// matrix that maps default roles to grants.
type PermissionService struct {
	perms permission.Repository
	roles role.Repository
}

func NewPermissionService(perms permission.Repository, roles role.Repository) *PermissionService {
	return &PermissionService{perms: perms, roles: roles}
}

func (s *PermissionService) List(ctx context.Context) ([]permission.Permission, error) {
	if _, err := requireSessionPermission(ctx, permissions.SystemPermissionsRead); err != nil {
		return nil, err
	}
	return s.perms.List(ctx)
}

func (s *PermissionService) GetByCode(ctx context.Context, code string) (permission.Permission, error) {
	if _, err := requireSessionPermission(ctx, permissions.SystemPermissionsRead); err != nil {
		return permission.Permission{}, err
	}
	return s.perms.GetByCode(ctx, code)
}

// SeedCatalog inserts every catalog code that does not exist yet. It is
// idempotent and intended for the CLI / startup path, which runs before any
// session exists, so it performs no authorization.
func (s *PermissionService) SeedCatalog(ctx context.Context) error {
	codes := permissions.All()
	sort.Strings(codes)

	perms := make([]permission.Permission, 0, len(codes))
	for _, code := range codes {
		p, err := permission.New(code, "")
		if err != nil {
			return err
		}
		perms = append(perms, p)
	}
	// The catalog is global and carries no row security, so no tenant
	// transaction is needed; Ensure is idempotent per code.
	return s.perms.Ensure(ctx, perms)
}

// SeedMatrix loads a role/permission matrix from a CSV file with the header
// role_name,permission,default_granted and applies the granted rows to the
// tenant: missing roles are created, grants are attached with set semantics.
// Rows naming codes outside the catalog fail the whole seed.
func (s *PermissionService) SeedMatrix(ctx context.Context, tenantID uuid.UUID, csvPath string) error {
	f, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("open permissions matrix: %w", err)
	}
	defer f.Close()

	grants, err := parseMatrix(f)
	if err != nil {
		return err
	}

	return composables.InTx(ctx, func(txCtx context.Context) error {
		for roleName, codes := range grants {
			r, err := s.roles.GetByName(txCtx, tenantID, roleName)
			if errors.Is(err, role.ErrNotFound) {
				r, err = s.roles.Create(txCtx, role.New(tenantID, roleName))
			}
			if err != nil {
				return err
			}

			ids := make([]uuid.UUID, 0, len(codes))
			for _, code := range codes {
				p, err := s.perms.GetByCode(txCtx, code)
				if err != nil {
					return fmt.Errorf("matrix role %q: %w", roleName, err)
				}
				ids = append(ids, p.ID())
			}
			if err := s.roles.AssignPermissions(txCtx, r.ID(), ids); err != nil {
				return err
			}
		}
		return nil
	})
}

func parseMatrix(r io.Reader) (map[string][]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read matrix header: %w", err)
	}
	if len(header) < 3 || header[0] != "role_name" || header[1] != "permission" || header[2] != "default_granted" {
		return nil, ErrValidation.WithTemplateData(map[string]string{
			"reason": "matrix header must be role_name,permission,default_granted",
		})
	}

	grants := make(map[string][]string)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read matrix row: %w", err)
		}
		roleName := strings.TrimSpace(record[0])
		code := strings.TrimSpace(record[1])
		granted := strings.EqualFold(strings.TrimSpace(record[2]), "true")
		if !granted {
			continue
		}
		if !permissions.Known(code) {
			return nil, ErrValidation.WithTemplateData(map[string]string{
				"reason": "unknown permission code in matrix: " + code,
			})
		}
		grants[roleName] = append(grants[roleName], code)
	}
	return grants, nil
}
