package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kudos-web/internal/domain"
	"kudos-web/internal/repository"
)

func setupRepo(t *testing.T) repository.UserRepository {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewUserRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	u := &domain.User{ID: "u-1", Email: "a@b.co", PasswordHash: "hash", DisplayName: "A"}
	require.NoError(t, repo.Create(ctx, u))
	assert.False(t, u.CreatedAt.IsZero())

	byEmail, err := repo.GetByEmail(ctx, "a@b.co")
	require.NoError(t, err)
	assert.Equal(t, "u-1", byEmail.ID)
	assert.Equal(t, "hash", byEmail.PasswordHash)
	assert.Equal(t, "A", byEmail.DisplayName)

	byID, err := repo.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", byID.Email)

	exists, err := repo.ExistsByEmail(ctx, "A@B.CO")
	require.NoError(t, err)
	assert.True(t, exists, "email lookups ignore case")
}

func TestUserRepository_NotFound(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.GetByEmail(ctx, "nobody@b.co")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	exists, err := repo.ExistsByEmail(ctx, "nobody@b.co")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.User{ID: "u-1", Email: "a@b.co", PasswordHash: "h"}))

	err := repo.Create(ctx, &domain.User{ID: "u-2", Email: "A@b.co", PasswordHash: "h"})
	assert.ErrorIs(t, err, repository.ErrEmailTaken)

	_, err = repo.GetByID(ctx, "u-2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserRepository_ConcurrentCreateSameEmail(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	const n = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ok    int
		taken int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.Create(ctx, &domain.User{
				ID:           string(rune('a' + i)),
				Email:        "race@b.co",
				PasswordHash: "h",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, repository.ErrEmailTaken):
				taken++
			default:
				t.Errorf("unexpected create error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, taken)
}

func TestUserRepository_InitIsIdempotent(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewUserRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	require.NoError(t, repo.Init(context.Background()))
}
