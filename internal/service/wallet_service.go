package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/damoang/coinchat/internal/common"
	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/metrics"
	"github.com/damoang/coinchat/internal/repository"
	pkglogger "github.com/damoang/coinchat/pkg/logger"
	"gorm.io/gorm"
)

// messageDebitCoins coins consumed per outbound message
const messageDebitCoins = 1

// AttachFunc runs inside the debit transaction and returns the id of the row the debit pays for.
type AttachFunc func(tx *gorm.DB) (referenceID int64, err error)

// CreditInput plan purchase credit
type CreditInput struct {
	UserID               string
	Coins                int
	PlanID               string
	PaymentTransactionID int64
}

// WalletService Wallet Manager: free grant, per-message debit, purchase credit.
type WalletService struct {
	db        *gorm.DB
	wallets   repository.WalletRepository
	freeGrant int
}

// NewWalletService creates a new WalletService
func NewWalletService(db *gorm.DB, wallets repository.WalletRepository, freeGrant int) *WalletService {
	return &WalletService{db: db, wallets: wallets, freeGrant: freeGrant}
}

// WithTx returns a copy bound to an open transaction.
func (s *WalletService) WithTx(tx *gorm.DB) *WalletService {
	return &WalletService{db: tx, wallets: s.wallets.WithTx(tx), freeGrant: s.freeGrant}
}

// EnsureWalletWithFreeGrant creates the wallet if needed and applies the one-time grant.
// Concurrent callers race on the conditional flag flip; only the winner writes the ledger row.
func (s *WalletService) EnsureWalletWithFreeGrant(ctx context.Context, userID string) (*domain.Wallet, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	var granted bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.wallets.WithTx(tx)
		if err := repo.EnsureWallet(ctx, userID); err != nil {
			return err
		}
		won, err := repo.ClaimFreeGrant(ctx, userID, s.freeGrant)
		if err != nil || !won {
			return err
		}
		granted = true
		if s.freeGrant == 0 {
			return nil
		}
		return repo.AppendLedger(ctx, &domain.LedgerEntry{
			UserID: userID,
			Delta:  s.freeGrant,
			Source: domain.LedgerSourceFreeGrant,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}

	if granted {
		metrics.CoinsMoved.WithLabelValues(string(domain.LedgerSourceFreeGrant)).Add(float64(s.freeGrant))
		pkglogger.WithUserID(userID).Info().Int("coins", s.freeGrant).Msg("free grant applied")
	}
	return s.wallets.FindByUserID(ctx, userID)
}

// GetWallet same as EnsureWalletWithFreeGrant; reading a wallet always materializes it.
func (s *WalletService) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	return s.EnsureWalletWithFreeGrant(ctx, userID)
}

// DebitCoinForMessageSend takes one coin if the balance allows it. attach (optional) persists
// the paid-for row in the same transaction so the ledger entry can reference it; if attach
// fails the debit rolls back. A zero balance yields common.ErrInsufficientCoins.
func (s *WalletService) DebitCoinForMessageSend(ctx context.Context, userID string, attach AttachFunc) (*domain.Wallet, error) {
	if _, err := s.EnsureWalletWithFreeGrant(ctx, userID); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.wallets.WithTx(tx)
		won, err := repo.ClaimDebit(ctx, userID, messageDebitCoins)
		if err != nil {
			return err
		}
		if !won {
			return common.ErrInsufficientCoins
		}

		entry := &domain.LedgerEntry{
			UserID: userID,
			Delta:  -messageDebitCoins,
			Source: domain.LedgerSourceMessageDebit,
		}
		if attach != nil {
			refID, err := attach(tx)
			if err != nil {
				return err
			}
			entry.ReferenceType = domain.ReferenceMessage
			entry.ReferenceID = strconv.FormatInt(refID, 10)
		}
		return repo.AppendLedger(ctx, entry)
	})
	if err != nil {
		if errors.Is(err, common.ErrInsufficientCoins) {
			metrics.SendsRejected.WithLabelValues("insufficient_coins").Inc()
			pkglogger.WithUserID(userID).Info().Msg("debit rejected: insufficient coins")
			return nil, err
		}
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("debit coin: %w", err)
	}

	metrics.CoinsMoved.WithLabelValues(string(domain.LedgerSourceMessageDebit)).Add(messageDebitCoins)
	return s.wallets.FindByUserID(ctx, userID)
}

// CreditCoinsForPlanPurchase adds purchased coins and the PLAN_PURCHASE ledger row atomically.
// Exactly-once is the caller's job (see PaymentService claim).
func (s *WalletService) CreditCoinsForPlanPurchase(ctx context.Context, in CreditInput) (*domain.Wallet, error) {
	if in.Coins <= 0 {
		return nil, common.NewValidationError("Credit amount must be positive")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.wallets.WithTx(tx)
		if err := repo.EnsureWallet(ctx, in.UserID); err != nil {
			return err
		}
		if err := repo.Credit(ctx, in.UserID, in.Coins); err != nil {
			return err
		}
		return repo.AppendLedger(ctx, &domain.LedgerEntry{
			UserID:        in.UserID,
			Delta:         in.Coins,
			Source:        domain.LedgerSourcePlanPurchase,
			ReferenceType: domain.ReferencePayment,
			ReferenceID:   strconv.FormatInt(in.PaymentTransactionID, 10),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("credit coins: %w", err)
	}

	metrics.CoinsMoved.WithLabelValues(string(domain.LedgerSourcePlanPurchase)).Add(float64(in.Coins))
	pkglogger.WithUserID(in.UserID).Info().
		Int("coins", in.Coins).
		Str("plan_id", in.PlanID).
		Int64("payment_transaction_id", in.PaymentTransactionID).
		Msg("plan purchase credited")
	return s.wallets.FindByUserID(ctx, in.UserID)
}

// Snapshot reads the wallet without applying the free grant.
func (s *WalletService) Snapshot(ctx context.Context, userID string) (*domain.Wallet, error) {
	return s.wallets.FindByUserID(ctx, userID)
}

// LedgerPage newest-first ledger entries for a user
type LedgerPage struct {
	Entries []domain.LedgerEntry
	Page    int
	Limit   int
	Total   int64
}

// ListLedger returns the caller's ledger, newest first.
func (s *WalletService) ListLedger(ctx context.Context, userID string, page, limit int) (*LedgerPage, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	page, limit = clampPage(page, limit, 20, 100)

	entries, err := s.wallets.ListLedger(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	total, err := s.wallets.CountLedger(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("count ledger: %w", err)
	}
	return &LedgerPage{Entries: entries, Page: page, Limit: limit, Total: total}, nil
}
