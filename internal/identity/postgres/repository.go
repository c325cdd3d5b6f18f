// Package postgres provides PostgreSQL implementation of the profile repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorlot/marketplace/internal/domain"
	"github.com/motorlot/marketplace/internal/identity"
)

const profileColumns = `id, email, full_name, role, created_at, updated_at`

// Repository implements identity.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetProfile retrieves a profile by ID.
func (r *Repository) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, identity.ErrProfileNotFound
	}

	row := r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// ListProfilesByRole returns all profiles with the given role.
func (r *Repository) ListProfilesByRole(ctx context.Context, role domain.Role) ([]*domain.Profile, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE role = $1
		ORDER BY created_at
	`, role)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]*domain.Profile, 0)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

// UpsertProfile inserts a profile or updates its email and name.
func (r *Repository) UpsertProfile(ctx context.Context, profile *domain.Profile) (bool, error) {
	// xmax is zero only for a freshly inserted row.
	query := `
		INSERT INTO profiles (id, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, full_name = EXCLUDED.full_name, updated_at = NOW()
		RETURNING role, created_at, updated_at, (xmax = 0)
	`
	var created bool
	err := r.db.QueryRow(ctx, query,
		profile.ID,
		profile.Email,
		profile.FullName,
		profile.Role,
	).Scan(&profile.Role, &profile.CreatedAt, &profile.UpdatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("upsert profile: %w", err)
	}
	return created, nil
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	if err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
