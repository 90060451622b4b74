package identity

import "context"

// Store describes the persistence operations the authentication coordinator
// depends on. Lookups by username, email and session token are exact; the
// existence checks back uniqueness enforcement during registration.
type Store interface {
	Create(ctx context.Context, id *Identity) error
	Update(ctx context.Context, id *Identity) error
	FindByID(ctx context.Context, id string) (*Identity, error)
	FindByUsername(ctx context.Context, username string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindBySessionToken(ctx context.Context, token string) (*Identity, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}
