package auth

import (
	"context"

	"github.com/google/uuid"
)

// IdentityStore describes persistence operations required by the auth subsystem.
// Lookups return ErrNotFound when no row matches; Create returns ErrConflict
// when the email is already registered.
type IdentityStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	Create(ctx context.Context, in NewIdentity) (*Identity, error)
	List(ctx context.Context, limit, offset int) ([]*Identity, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*Identity, error)
}
