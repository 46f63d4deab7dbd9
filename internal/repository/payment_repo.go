package repository

import (
	"context"
	"time"

	"github.com/damoang/coinchat/internal/domain"
	"gorm.io/gorm"
)

// PaymentRepository handles payment transaction persistence
type PaymentRepository interface {
	WithTx(tx *gorm.DB) PaymentRepository
	Create(ctx context.Context, p *domain.PaymentTransaction) error
	FindByOrderID(ctx context.Context, orderID string) (*domain.PaymentTransaction, error)
	// ClaimCredit flips coins_credited false -> true. Only one caller per order ever gets true.
	ClaimCredit(ctx context.Context, orderID, paymentID string, coins int, at time.Time) (bool, error)
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) WithTx(tx *gorm.DB) PaymentRepository {
	return &paymentRepository{db: tx}
}

// Create inserts a new payment transaction
func (r *paymentRepository) Create(ctx context.Context, p *domain.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// FindByOrderID finds a payment transaction by gateway order ID
func (r *paymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.PaymentTransaction, error) {
	var p domain.PaymentTransaction
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) ClaimCredit(ctx context.Context, orderID, paymentID string, coins int, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.PaymentTransaction{}).
		Where("order_id = ? AND coins_credited = ?", orderID, false).
		Updates(map[string]interface{}{
			"coins_credited": true,
			"coins_awarded":  coins,
			"payment_id":     paymentID,
			"status":         domain.PaymentStatusVerifiedCredited,
			"credited_at":    at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
