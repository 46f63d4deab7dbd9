package repository

import (
	"context"
	"testing"
	"time"

	"github.com/damoang/coinchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentRepository_ClaimCreditOnce(t *testing.T) {
	repo := NewPaymentRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.PaymentTransaction{
		UserID: "u1", PlanID: "coins-199", OrderID: "order_abc", Amount: 19900, Currency: "INR",
		Status: domain.PaymentStatusCreated,
	}))

	won, err := repo.ClaimCredit(ctx, "order_abc", "pay_1", 220, time.Now())
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.ClaimCredit(ctx, "order_abc", "pay_1", 220, time.Now())
	require.NoError(t, err)
	assert.False(t, won)

	p, err := repo.FindByOrderID(ctx, "order_abc")
	require.NoError(t, err)
	assert.True(t, p.CoinsCredited)
	assert.Equal(t, domain.PaymentStatusVerifiedCredited, p.Status)
	assert.Equal(t, "pay_1", p.PaymentID)
	assert.Equal(t, 220, p.CoinsAwarded)
	assert.NotNil(t, p.CreditedAt)
}

func TestPaymentRepository_OrderIDUnique(t *testing.T) {
	repo := NewPaymentRepository(setupTestDB(t))
	ctx := context.Background()

	tx := &domain.PaymentTransaction{UserID: "u1", PlanID: "coins-199", OrderID: "order_dup", Amount: 1, Currency: "INR"}
	require.NoError(t, repo.Create(ctx, tx))
	assert.Error(t, repo.Create(ctx, &domain.PaymentTransaction{UserID: "u2", PlanID: "coins-199", OrderID: "order_dup", Amount: 1, Currency: "INR"}))
}

func TestCoinPlanRepository_UpsertAndList(t *testing.T) {
	repo := NewCoinPlanRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, domain.DefaultCoinPlans()))
	require.NoError(t, repo.Upsert(ctx, domain.DefaultCoinPlans()))

	plans, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, "coins-199", plans[0].PlanID)

	p, err := repo.FindActive(ctx, "coins-399")
	require.NoError(t, err)
	assert.Equal(t, 510, p.TotalCoins())

	_, err = repo.FindActive(ctx, "coins-999")
	assert.Error(t, err)
}
