package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindlingnews/kindling/internal/domain"
)

func TestUserRepo_CreateAndLookup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	repo := NewUserRepo(setupTestClient(t))
	ctx := context.Background()

	u := &domain.User{
		Username:     "Alice",
		PasswordHash: "hash",
		Salt:         "salt",
		Karma:        1,
		CreatedAt:    1000,
		AuthToken:    "token-a",
		APISecret:    "secret-a",
	}
	id, err := repo.Create(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Username)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.Equal(t, int64(1), got.Karma)

	// Case-insensitive username lookup.
	got, err = repo.GetByUsername(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserRepo_UsernameUniqueness(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	repo := NewUserRepo(setupTestClient(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, &domain.User{Username: "Alice", AuthToken: "t1"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &domain.User{Username: "alice", AuthToken: "t2"})
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)
}

func TestUserRepo_Karma(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	repo := NewUserRepo(setupTestClient(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, &domain.User{Username: "alice", Karma: 1, AuthToken: "t"})
	require.NoError(t, err)

	balance, err := repo.IncrKarma(ctx, id, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), balance)

	balance, err = repo.IncrKarma(ctx, id, -10)
	require.NoError(t, err)
	assert.Equal(t, int64(-4), balance)

	karma, err := repo.GetKarma(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(-4), karma)

	require.NoError(t, repo.SetKarmaIncrementedAt(ctx, id, 5000))
	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.KarmaIncrementedAt)
}

func TestUserRepo_AuthTokenRotation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	repo := NewUserRepo(setupTestClient(t))
	ctx := context.Background()

	id, err := repo.Create(ctx, &domain.User{Username: "alice", AuthToken: "old-token"})
	require.NoError(t, err)

	got, found, err := repo.GetIDByAuthToken(ctx, "old-token")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, got)

	require.NoError(t, repo.UpdateAuthToken(ctx, id, "new-token"))

	_, found, err = repo.GetIDByAuthToken(ctx, "old-token")
	require.NoError(t, err)
	assert.False(t, found)

	got, found, err = repo.GetIDByAuthToken(ctx, "new-token")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, got)

	u, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new-token", u.AuthToken)
}
