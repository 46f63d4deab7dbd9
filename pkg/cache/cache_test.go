package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plan struct {
	ID    string `json:"id"`
	Coins int    `json:"coins"`
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	var got plan
	assert.ErrorIs(t, c.Get(ctx, KeyPlans, &got), ErrMiss)

	require.NoError(t, c.Set(ctx, KeyPlans, plan{ID: "starter", Coins: 100}, TTLPlans))
	require.NoError(t, c.Get(ctx, KeyPlans, &got))
	assert.Equal(t, plan{ID: "starter", Coins: 100}, got)

	ok, err := c.Exists(ctx, KeyPlans)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, KeyPlans))
	ok, _ = c.Exists(ctx, KeyPlans)
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &memoryCache{entries: make(map[string]memoryEntry), now: func() time.Time { return now }}

	require.NoError(t, c.Set(ctx, "k", 1, time.Minute))
	var v int
	require.NoError(t, c.Get(ctx, "k", &v))
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrMiss)
}

func TestRedisCache_NilClientMisses(t *testing.T) {
	c := NewService(nil)
	assert.False(t, c.IsAvailable())
	var v int
	assert.ErrorIs(t, c.Get(context.Background(), "k", &v), ErrMiss)
}
