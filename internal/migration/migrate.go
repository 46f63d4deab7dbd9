package migration

import (
	"context"
	"fmt"

	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/repository"
	"gorm.io/gorm"
)

// Models every table owned by the service, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&domain.User{},
		&domain.Wallet{},
		&domain.LedgerEntry{},
		&domain.CoinPlan{},
		&domain.PaymentTransaction{},
		&domain.Conversation{},
		&domain.Message{},
		&domain.MessageRead{},
	}
}

// Run executes AutoMigrate and seeds the coin plan catalog.
func Run(db *gorm.DB) error {
	// 1. AutoMigrate - 테이블 없으면 생성, 있으면 컬럼만 보강
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}

	// 2. Seed - plan_id 기준 upsert 이므로 매번 실행해도 안전
	if err := SeedCoinPlans(context.Background(), db); err != nil {
		return fmt.Errorf("seed coin plans: %w", err)
	}
	return nil
}

// SeedCoinPlans upserts the default catalog.
func SeedCoinPlans(ctx context.Context, db *gorm.DB) error {
	return repository.NewCoinPlanRepository(db).Upsert(ctx, domain.DefaultCoinPlans())
}
