package repository

import (
	"context"

	"github.com/damoang/coinchat/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CoinPlanRepository coin plan catalog
type CoinPlanRepository interface {
	ListActive(ctx context.Context) ([]domain.CoinPlan, error)
	FindActive(ctx context.Context, planID string) (*domain.CoinPlan, error)
	Upsert(ctx context.Context, plans []domain.CoinPlan) error
}

type coinPlanRepository struct {
	db *gorm.DB
}

// NewCoinPlanRepository creates a new CoinPlanRepository
func NewCoinPlanRepository(db *gorm.DB) CoinPlanRepository {
	return &coinPlanRepository{db: db}
}

func (r *coinPlanRepository) ListActive(ctx context.Context) ([]domain.CoinPlan, error) {
	var plans []domain.CoinPlan
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order ASC, price ASC").
		Find(&plans).Error
	return plans, err
}

func (r *coinPlanRepository) FindActive(ctx context.Context, planID string) (*domain.CoinPlan, error) {
	var p domain.CoinPlan
	if err := r.db.WithContext(ctx).Where("plan_id = ? AND is_active = ?", planID, true).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert inserts or refreshes catalog rows keyed by plan_id.
func (r *coinPlanRepository) Upsert(ctx context.Context, plans []domain.CoinPlan) error {
	if len(plans) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "plan_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price", "currency", "base_coins", "bonus_coins", "is_active", "sort_order"}),
	}).Create(&plans).Error
}
