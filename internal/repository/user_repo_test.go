package repository

import (
	"context"
	"testing"

	"github.com/damoang/coinchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_UpsertAndSearch(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()

	for _, u := range []domain.User{
		{ID: "1", Name: "Zoe", Email: "zoe@example.com"},
		{ID: "2", Name: "Adam", Email: "adam@corp.io"},
		{ID: "3", Name: "Bea", Email: "bea_100%@example.com"},
	} {
		u := u
		require.NoError(t, repo.Upsert(ctx, &u))
	}
	require.NoError(t, repo.Upsert(ctx, &domain.User{ID: "2", Name: "Adam Smith", Email: "adam@corp.io"}))

	all, err := repo.Search(ctx, "1", "", 50)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Adam Smith", all[0].Name)

	byEmail, err := repo.Search(ctx, "", "EXAMPLE", 50)
	require.NoError(t, err)
	assert.Len(t, byEmail, 2)

	literal, err := repo.Search(ctx, "", "100%", 50)
	require.NoError(t, err)
	require.Len(t, literal, 1)
	assert.Equal(t, "3", literal[0].ID)

	limited, err := repo.Search(ctx, "", "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	found, err := repo.FindByIDs(ctx, []string{"1", "3", "missing"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Equal(t, "Zoe", found["1"].Name)
}
