package sqldb

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-portal/internal/domain"
	"account-portal/internal/repository"
)

func newUser(name, email string) *domain.User {
	return &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: "hash",
	}
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()

	phone := "+55 11 99999-0000"
	u := newUser("Ana", "ana@example.com")
	u.Phone = &phone
	require.NoError(t, store.Users.Create(ctx, u))
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.False(t, u.CreatedAt.IsZero())
	assert.Equal(t, u.CreatedAt.Truncate(time.Millisecond), u.CreatedAt)

	got, err := store.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, "ana@example.com", got.Email)
	require.NotNil(t, got.Phone)
	assert.Equal(t, phone, *got.Phone)
	assert.Nil(t, got.Image)
	assert.Equal(t, domain.RoleUser, got.Role)

	byEmail, err := store.Users.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Users.Create(ctx, newUser("Ana", "ana@example.com")))
	err := store.Users.Create(ctx, newUser("Other", "ana@example.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestUserRepository_GetMissing(t *testing.T) {
	_, store := openTestStore(t)

	_, err := store.Users.GetByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserRepository_ListOrderedByName(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Carla", "Ana", "Bruno"} {
		require.NoError(t, store.Users.Create(ctx, newUser(name, name+"@example.com")))
	}

	users, err := store.Users.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "Ana", users[0].Name)
	assert.Equal(t, "Bruno", users[1].Name)
	assert.Equal(t, "Carla", users[2].Name)
}

func TestUserRepository_PartialUpdate(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()

	u := newUser("Ana", "ana@example.com")
	require.NoError(t, store.Users.Create(ctx, u))

	name := "Ana Maria"
	require.NoError(t, store.Users.Update(ctx, u.ID, repository.UserPatch{Name: &name}))

	got, err := store.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", got.Name)
	assert.Equal(t, "ana@example.com", got.Email)
	assert.Nil(t, got.Phone)
}

func TestUserRepository_UpdateClearsImage(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()

	u := newUser("Ana", "ana@example.com")
	require.NoError(t, store.Users.Create(ctx, u))

	img := "https://example.com/a.png"
	require.NoError(t, store.Users.Update(ctx, u.ID, repository.UserPatch{Image: &img}))
	got, err := store.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Image)

	empty := ""
	require.NoError(t, store.Users.Update(ctx, u.ID, repository.UserPatch{Image: &empty}))
	got, err = store.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Image)
}

func TestUserRepository_UpdateMissing(t *testing.T) {
	_, store := openTestStore(t)

	name := "x"
	err := store.Users.Update(context.Background(), uuid.NewString(), repository.UserPatch{Name: &name})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserRepository_UpdateEmailConflict(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()

	a := newUser("Ana", "ana@example.com")
	b := newUser("Bia", "bia@example.com")
	require.NoError(t, store.Users.Create(ctx, a))
	require.NoError(t, store.Users.Create(ctx, b))

	email := "ana@example.com"
	err := store.Users.Update(ctx, b.ID, repository.UserPatch{Email: &email})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestUserRepository_PasswordAndRole(t *testing.T) {
	_, store := openTestStore(t)
	ctx := context.Background()

	u := newUser("Ana", "ana@example.com")
	require.NoError(t, store.Users.Create(ctx, u))

	require.NoError(t, store.Users.UpdatePasswordHash(ctx, u.ID, "new-hash"))
	require.NoError(t, store.Users.UpdateRole(ctx, u.ID, domain.RoleAdmin))

	got, err := store.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.Equal(t, domain.RoleAdmin, got.Role)
}
