package identity

import (
	"context"

	"github.com/motorlot/marketplace/internal/domain"
)

// Repository stores local profiles mirrored from the identity provider.
type Repository interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	ListProfilesByRole(ctx context.Context, role domain.Role) ([]*domain.Profile, error)
	// UpsertProfile inserts or updates email and name. The role is only set on
	// insert and profile is refreshed from the stored row. created reports
	// whether the row was new.
	UpsertProfile(ctx context.Context, profile *domain.Profile) (created bool, err error)
}
