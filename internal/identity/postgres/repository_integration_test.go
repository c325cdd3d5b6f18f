//go:build integration

package postgres_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/marketplace/internal/domain"
	"github.com/motorlot/marketplace/internal/identity"
	"github.com/motorlot/marketplace/internal/identity/postgres"
	"github.com/motorlot/marketplace/internal/testutil"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}

	testDB, err = pgContainer.Pool(ctx)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}

	code := m.Run()

	testDB.Close()
	if err := pgContainer.Terminate(ctx); err != nil {
		log.Printf("terminate postgres: %v", err)
	}

	os.Exit(code)
}

func newRepository(t *testing.T) *postgres.Repository {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `TRUNCATE profiles CASCADE`)
	require.NoError(t, err)
	return postgres.NewRepository(testDB)
}

func TestRepository_UpsertProfile(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	id := uuid.NewString()

	profile := &domain.Profile{ID: id, Email: "jane@example.com", FullName: "Jane", Role: domain.RoleUser}
	created, err := repo.UpsertProfile(ctx, profile)
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, profile.CreatedAt.IsZero())

	_, err = testDB.Exec(ctx, `UPDATE profiles SET role = 'dealer' WHERE id = $1`, id)
	require.NoError(t, err)

	// An update must not reset a role granted locally.
	update := &domain.Profile{ID: id, Email: "jane@new.example.com", FullName: "Jane Doe", Role: domain.RoleUser}
	created, err = repo.UpsertProfile(ctx, update)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, domain.RoleDealer, update.Role)

	got, err := repo.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "jane@new.example.com", got.Email)
	assert.Equal(t, "Jane Doe", got.FullName)
	assert.Equal(t, domain.RoleDealer, got.Role)
	assert.True(t, profile.CreatedAt.Equal(got.CreatedAt))
}

func TestRepository_GetProfile_Unknown(t *testing.T) {
	repo := newRepository(t)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		_, err := repo.GetProfile(context.Background(), id)
		assert.ErrorIs(t, err, identity.ErrProfileNotFound, id)
	}
}

func TestRepository_ListProfilesByRole(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)

	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := repo.UpsertProfile(ctx, &domain.Profile{ID: uuid.NewString(), Email: email, Role: domain.RoleUser})
		require.NoError(t, err)
	}
	_, err := testDB.Exec(ctx, `UPDATE profiles SET role = 'admin' WHERE email <> 'b@example.com'`)
	require.NoError(t, err)

	admins, err := repo.ListProfilesByRole(ctx, domain.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "a@example.com", admins[0].Email)
	assert.Equal(t, "c@example.com", admins[1].Email)

	dealers, err := repo.ListProfilesByRole(ctx, domain.RoleDealer)
	require.NoError(t, err)
	assert.Empty(t, dealers)
}
