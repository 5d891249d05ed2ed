package auth_test

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/gridtokenx/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountsRepository_CreateAndFind(t *testing.T) {
	_, store := setupAccountsDB(t)
	ctx := context.Background()

	account := newTestAccount(t, "alice", alicePassword, auth.RoleUser, auth.RoleAdmin)
	account.Email = "Alice@Example.COM"
	account.FirstName = "Alice"

	created := seedAccount(t, store, account)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.False(t, created.CreatedAt.IsZero())

	byName, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
	assert.Equal(t, []auth.Role{auth.RoleUser, auth.RoleAdmin}, byName.Roles)
	assert.Equal(t, "Alice", byName.FirstName)
	assert.Equal(t, created.PasswordHash, byName.PasswordHash)
	assert.True(t, byName.Active)
	assert.True(t, byName.Enabled)
	assert.Nil(t, byName.LastLoginAt)

	byEmail, err := store.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byID, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
}

func TestAccountsRepository_NotFound(t *testing.T) {
	_, store := setupAccountsDB(t)
	ctx := context.Background()

	_, err := store.FindByUsername(ctx, "nobody")
	assert.Equal(t, auth.ErrAccountNotFound, err)

	_, err = store.FindByEmail(ctx, "nobody@example.com")
	assert.Equal(t, auth.ErrAccountNotFound, err)

	_, err = store.FindByID(ctx, uuid.New())
	assert.Equal(t, auth.ErrAccountNotFound, err)

	err = store.Save(ctx, newTestAccount(t, "nobody", alicePassword))
	assert.Equal(t, auth.ErrAccountNotFound, err)
}

func TestAccountsRepository_Duplicates(t *testing.T) {
	_, store := setupAccountsDB(t)
	ctx := context.Background()

	seedAccount(t, store, newTestAccount(t, "alice", alicePassword))

	_, err := store.Create(ctx, newTestAccount(t, "alice", alicePassword))
	require.Error(t, err)

	var richErr *goerrors.Error
	require.ErrorAs(t, err, &richErr)
	assert.Equal(t, goerrors.CategoryConflict, richErr.Category)
	assert.Equal(t, http.StatusConflict, richErr.Code)

	other := newTestAccount(t, "alice2", alicePassword)
	other.Email = "ALICE@example.com"
	_, err = store.Create(ctx, other)
	require.ErrorAs(t, err, &richErr)
	assert.Equal(t, goerrors.CategoryConflict, richErr.Category)
}

func TestAccountsRepository_Save(t *testing.T) {
	_, store := setupAccountsDB(t)
	ctx := context.Background()

	account := seedAccount(t, store, newTestAccount(t, "alice", alicePassword))

	account.FailedLoginAttempts = 5
	account.Locked = true
	account.Roles = []auth.Role{auth.RoleModerator}
	account.LastLoginAt = &epoch
	require.NoError(t, store.Save(ctx, account))

	stored, err := store.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.FailedLoginAttempts)
	assert.True(t, stored.Locked)
	assert.False(t, stored.CanLogin())
	assert.Equal(t, []auth.Role{auth.RoleModerator}, stored.Roles)
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, epoch.Equal(*stored.LastLoginAt))
}

func TestAccountsRepository_SaveWritesZeroValues(t *testing.T) {
	_, store := setupAccountsDB(t)
	ctx := context.Background()

	account := newTestAccount(t, "alice", alicePassword)
	account.FailedLoginAttempts = 3
	account.Locked = true
	account = seedAccount(t, store, account)

	account.FailedLoginAttempts = 0
	account.Locked = false
	require.NoError(t, store.Save(ctx, account))

	stored, err := store.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
	assert.False(t, stored.Locked)
	assert.True(t, stored.CanLogin())
}

func TestAccountsRepository_GetByIdentifier(t *testing.T) {
	db, _ := setupAccountsDB(t)
	repo := auth.NewAccountsRepository(db)
	ctx := context.Background()

	created := seedAccount(t, repo, newTestAccount(t, "alice", alicePassword))

	for _, identifier := range []string{created.ID.String(), "ALICE@example.com", "alice"} {
		record, err := repo.GetByIdentifier(ctx, identifier)
		require.NoError(t, err, identifier)
		assert.Equal(t, created.ID, record.ID, identifier)
	}

	_, err := repo.GetByIdentifier(ctx, "nobody@example.com")
	assert.True(t, repository.IsRecordNotFound(err))

	_, err = repo.GetByIdentifier(ctx, "  ")
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestMigrationsRerunCleanly(t *testing.T) {
	client := setupPersistence(t)
	require.NoError(t, client.Migrate(context.Background()))

	_, err := auth.NewAccountsRepository(client.DB()).FindByUsername(context.Background(), "nobody")
	assert.Equal(t, auth.ErrAccountNotFound, err)
}
