package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/damoang/coinchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletRepository_EnsureWalletIsIdempotent(t *testing.T) {
	repo := NewWalletRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.EnsureWallet(ctx, "u1"))
	require.NoError(t, repo.EnsureWallet(ctx, "u1"))

	w, err := repo.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, w.RemainingCoins)
	assert.False(t, w.FreeGrantApplied)
}

func TestWalletRepository_ClaimFreeGrantOnce(t *testing.T) {
	repo := NewWalletRepository(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.EnsureWallet(ctx, "u1"))

	won, err := repo.ClaimFreeGrant(ctx, "u1", 20)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.ClaimFreeGrant(ctx, "u1", 20)
	require.NoError(t, err)
	assert.False(t, won)

	w, err := repo.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 20, w.RemainingCoins)
	assert.True(t, w.FreeGrantApplied)
}

func TestWalletRepository_ClaimDebitNeverGoesNegative(t *testing.T) {
	repo := NewWalletRepository(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.EnsureWallet(ctx, "u1"))
	_, err := repo.ClaimFreeGrant(ctx, "u1", 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ClaimDebit(ctx, "u1", 1)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, wins)
	w, err := repo.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, w.RemainingCoins)
	assert.Equal(t, 3, w.TotalCoinsUsed)
}

func TestWalletRepository_CreditMissingWallet(t *testing.T) {
	repo := NewWalletRepository(setupTestDB(t))

	err := repo.Credit(context.Background(), "ghost", 10)
	assert.Error(t, err)
}

func TestWalletRepository_Ledger(t *testing.T) {
	repo := NewWalletRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.AppendLedger(ctx, &domain.LedgerEntry{UserID: "u1", Delta: 20, Source: domain.LedgerSourceFreeGrant}))
	require.NoError(t, repo.AppendLedger(ctx, &domain.LedgerEntry{UserID: "u1", Delta: -1, Source: domain.LedgerSourceMessageDebit, ReferenceType: domain.ReferenceMessage, ReferenceID: "7"}))
	require.NoError(t, repo.AppendLedger(ctx, &domain.LedgerEntry{UserID: "u2", Delta: 20, Source: domain.LedgerSourceFreeGrant}))

	entries, err := repo.ListLedger(ctx, "u1", 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.LedgerSourceMessageDebit, entries[0].Source)

	n, err := repo.CountLedger(ctx, "u1", domain.LedgerSourceFreeGrant)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.CountLedger(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.Error(t, repo.AppendLedger(ctx, &entries[0]), "existing rows cannot be re-appended")
}
