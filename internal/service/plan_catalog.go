package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/damoang/coinchat/internal/common"
	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/repository"
	"github.com/damoang/coinchat/pkg/cache"
	pkglogger "github.com/damoang/coinchat/pkg/logger"
	"gorm.io/gorm"
)

// PlanCatalog read-mostly coin plan lookup with a cached listing.
type PlanCatalog struct {
	plans repository.CoinPlanRepository
	cache cache.Service
}

// NewPlanCatalog creates a new PlanCatalog
func NewPlanCatalog(plans repository.CoinPlanRepository, c cache.Service) *PlanCatalog {
	if c == nil {
		c = cache.NewService(nil)
	}
	return &PlanCatalog{plans: plans, cache: c}
}

// List active plans, served from cache when warm.
func (p *PlanCatalog) List(ctx context.Context) ([]domain.CoinPlanView, error) {
	var cached []domain.CoinPlanView
	if err := p.cache.Get(ctx, cache.KeyPlans, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		pkglogger.GetLogger().Warn().Err(err).Msg("plan cache read failed")
	}

	plans, err := p.plans.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	views := make([]domain.CoinPlanView, 0, len(plans))
	for _, plan := range plans {
		views = append(views, plan.View())
	}
	if err := p.cache.Set(ctx, cache.KeyPlans, views, cache.TTLPlans); err != nil {
		pkglogger.GetLogger().Warn().Err(err).Msg("plan cache write failed")
	}
	return views, nil
}

// Find resolves an active plan from the database, bypassing the cache.
func (p *PlanCatalog) Find(ctx context.Context, planID string) (*domain.CoinPlan, error) {
	plan, err := p.plans.FindActive(ctx, planID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NewNotFoundError("Coin plan not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find plan: %w", err)
	}
	return plan, nil
}

// Invalidate drops the cached listing after catalog changes.
func (p *PlanCatalog) Invalidate(ctx context.Context) error {
	return p.cache.Delete(ctx, cache.KeyPlans)
}
