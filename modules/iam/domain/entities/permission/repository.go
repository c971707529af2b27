package permission

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	List(ctx context.Context) ([]Permission, error)
	GetByID(ctx context.Context, id uuid.UUID) (Permission, error)
	GetByCode(ctx context.Context, code string) (Permission, error)
	// Ensure inserts any catalog entries that do not exist yet; existing
	// codes are left untouched.
	Ensure(ctx context.Context, perms []Permission) error
}
