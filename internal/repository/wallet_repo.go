package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/damoang/coinchat/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletRepository Ledger Store: wallet snapshots plus the append-only ledger.
// Claim* methods are atomic conditional updates and report whether this caller won.
type WalletRepository interface {
	WithTx(tx *gorm.DB) WalletRepository

	EnsureWallet(ctx context.Context, userID string) error
	FindByUserID(ctx context.Context, userID string) (*domain.Wallet, error)
	ClaimFreeGrant(ctx context.Context, userID string, coins int) (bool, error)
	ClaimDebit(ctx context.Context, userID string, coins int) (bool, error)
	Credit(ctx context.Context, userID string, coins int) error

	AppendLedger(ctx context.Context, entry *domain.LedgerEntry) error
	ListLedger(ctx context.Context, userID string, offset, limit int) ([]domain.LedgerEntry, error)
	CountLedger(ctx context.Context, userID string, source domain.LedgerSource) (int64, error)
}

type walletRepository struct {
	db *gorm.DB
}

// NewWalletRepository creates a new WalletRepository
func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) WithTx(tx *gorm.DB) WalletRepository {
	return &walletRepository{db: tx}
}

// EnsureWallet inserts an empty wallet unless one already exists.
func (r *walletRepository) EnsureWallet(ctx context.Context, userID string) error {
	w := domain.Wallet{UserID: userID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&w).Error
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	return nil
}

func (r *walletRepository) FindByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// ClaimFreeGrant flips free_grant_applied false -> true and adds coins in one statement.
func (r *walletRepository) ClaimFreeGrant(ctx context.Context, userID string, coins int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.Wallet{}).
		Where("user_id = ? AND free_grant_applied = ?", userID, false).
		Updates(map[string]interface{}{
			"free_grant_applied": true,
			"remaining_coins":    gorm.Expr("remaining_coins + ?", coins),
		})
	if result.Error != nil {
		return false, fmt.Errorf("claim free grant: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ClaimDebit decrements only while remaining_coins >= coins, so the balance never goes negative.
func (r *walletRepository) ClaimDebit(ctx context.Context, userID string, coins int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.Wallet{}).
		Where("user_id = ? AND remaining_coins >= ?", userID, coins).
		Updates(map[string]interface{}{
			"remaining_coins":  gorm.Expr("remaining_coins - ?", coins),
			"total_coins_used": gorm.Expr("total_coins_used + ?", coins),
		})
	if result.Error != nil {
		return false, fmt.Errorf("claim debit: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *walletRepository) Credit(ctx context.Context, userID string, coins int) error {
	result := r.db.WithContext(ctx).Model(&domain.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"remaining_coins":       gorm.Expr("remaining_coins + ?", coins),
			"total_coins_purchased": gorm.Expr("total_coins_purchased + ?", coins),
		})
	if result.Error != nil {
		return fmt.Errorf("credit wallet: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("credit wallet %s: %w", userID, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *walletRepository) AppendLedger(ctx context.Context, entry *domain.LedgerEntry) error {
	if entry.ID != 0 {
		return errors.New("ledger entries are append-only")
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListLedger newest first
func (r *walletRepository) ListLedger(ctx context.Context, userID string, offset, limit int) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&entries).Error
	return entries, err
}

// CountLedger counts entries for userID, optionally restricted to one source ("" = all).
func (r *walletRepository) CountLedger(ctx context.Context, userID string, source domain.LedgerSource) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&domain.LedgerEntry{}).Where("user_id = ?", userID)
	if source != "" {
		q = q.Where("source = ?", source)
	}
	err := q.Count(&n).Error
	return n, err
}
