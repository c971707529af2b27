package permission

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/shepherdhq/shepherd/pkg/serrors"
)

var (
	ErrNotFound    = serrors.NewError("IAM_NOT_FOUND", "permission not found", "IAM.Errors.NotFound")
	ErrInvalidCode = serrors.NewError("IAM_VALIDATION", "invalid permission code", "IAM.Errors.InvalidPermissionCode")
)

// codePattern enforces the module.resource.action shape, e.g.
// registry.people.read. Codes outside this shape are rejected at write time
// instead of silently granting nothing at evaluation time.
var codePattern = regexp.MustCompile(`^[a-z][a-z_]*\.[a-z][a-z_]*\.[a-z][a-z_]*$`)

// Permission is an entry in the global permission catalog. The catalog is
// shared across tenants; only role attachments are tenant-owned.
type Permission struct {
	id          uuid.UUID
	code        string
	description string
}

func New(code, description string) (Permission, error) {
	code = strings.TrimSpace(code)
	if !ValidCode(code) {
		return Permission{}, ErrInvalidCode.WithTemplateData(map[string]string{"code": code})
	}
	return Permission{
		id:          uuid.New(),
		code:        code,
		description: description,
	}, nil
}

func Hydrate(id uuid.UUID, code, description string) Permission {
	return Permission{
		id:          id,
		code:        strings.TrimSpace(code),
		description: description,
	}
}

func (p Permission) ID() uuid.UUID       { return p.id }
func (p Permission) Code() string        { return p.code }
func (p Permission) Description() string { return p.description }
func (p Permission) IsZero() bool        { return p.id == uuid.Nil }

// Module returns the first code segment, e.g. "registry" for
// registry.people.read.
func (p Permission) Module() string {
	if i := strings.IndexByte(p.code, '.'); i > 0 {
		return p.code[:i]
	}
	return p.code
}

func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}
