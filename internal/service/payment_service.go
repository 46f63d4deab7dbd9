package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/damoang/coinchat/internal/common"
	"github.com/damoang/coinchat/internal/domain"
	"github.com/damoang/coinchat/internal/events"
	"github.com/damoang/coinchat/internal/metrics"
	"github.com/damoang/coinchat/internal/repository"
	pkglogger "github.com/damoang/coinchat/pkg/logger"
	"github.com/damoang/coinchat/pkg/razorpay"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentGateway order creation side of the payment provider
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req razorpay.OrderRequest) (*razorpay.Order, error)
	KeyID() string
}

// PaymentConfig 결제 설정
type PaymentConfig struct {
	KeySecret     string
	WebhookSecret string
	Currency      string
}

// VerifyInput checkout completion as reported by the client
type VerifyInput struct {
	UserID    string
	PlanID    string
	OrderID   string
	PaymentID string
	Signature string
}

// PaymentService Payment Verifier: order creation and exactly-once crediting.
type PaymentService struct {
	db        *gorm.DB
	payments  repository.PaymentRepository
	catalog   *PlanCatalog
	wallets   *WalletService
	gateway   PaymentGateway
	publisher events.Publisher
	notifier  Notifier
	config    PaymentConfig
	now       Clock
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	db *gorm.DB,
	payments repository.PaymentRepository,
	catalog *PlanCatalog,
	wallets *WalletService,
	gateway PaymentGateway,
	publisher events.Publisher,
	notifier Notifier,
	config PaymentConfig,
) *PaymentService {
	if config.Currency == "" {
		config.Currency = "INR"
	}
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &PaymentService{
		db:        db,
		payments:  payments,
		catalog:   catalog,
		wallets:   wallets,
		gateway:   gateway,
		publisher: publisher,
		notifier:  notifier,
		config:    config,
		now:       SystemClock,
	}
}

// ListPlans active coin plans
func (s *PaymentService) ListPlans(ctx context.Context) ([]domain.CoinPlanView, error) {
	return s.catalog.List(ctx)
}

// CreateOrder opens a gateway order for planID and records it as CREATED.
func (s *PaymentService) CreateOrder(ctx context.Context, userID, planID string) (*domain.OrderResponse, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(planID) == "" {
		return nil, common.NewValidationError("planId is required")
	}
	plan, err := s.catalog.Find(ctx, planID)
	if err != nil {
		return nil, err
	}

	// receipt: Razorpay caps it at 40 chars
	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	order, err := s.gateway.CreateOrder(ctx, razorpay.OrderRequest{
		Amount:   plan.AmountMinor(),
		Currency: s.config.Currency,
		Receipt:  receipt,
		Notes:    map[string]string{"userId": userID, "planId": plan.PlanID},
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	txn := &domain.PaymentTransaction{
		UserID:   userID,
		PlanID:   plan.PlanID,
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Receipt:  receipt,
		Status:   domain.PaymentStatusCreated,
	}
	if err := s.payments.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("record payment transaction: %w", err)
	}

	pkglogger.WithUserID(userID).Info().
		Str("order_id", order.ID).
		Str("plan_id", plan.PlanID).
		Int64("amount", order.Amount).
		Msg("payment order created")

	return &domain.OrderResponse{
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		KeyID:    s.gateway.KeyID(),
		Plan:     plan.View(),
	}, nil
}

// VerifyAndCredit checks the checkout signature and credits the plan's coins exactly once.
// Replays and losing concurrent callers get the current wallet with AlreadyCredited set.
func (s *PaymentService) VerifyAndCredit(ctx context.Context, in VerifyInput) (*domain.VerifyResult, error) {
	// 1. signature
	if !razorpay.VerifyPaymentSignature(s.config.KeySecret, in.OrderID, in.PaymentID, in.Signature) {
		metrics.PaymentVerifications.WithLabelValues("invalid_signature").Inc()
		return nil, common.ErrInvalidSignature
	}

	// 2. transaction lookup
	txn, err := s.payments.FindByOrderID(ctx, in.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && txn.UserID != in.UserID) {
		metrics.PaymentVerifications.WithLabelValues("not_found").Inc()
		return nil, common.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment transaction: %w", err)
	}
	if in.PlanID != "" && in.PlanID != txn.PlanID {
		return nil, common.NewValidationError("Plan does not match order")
	}

	// 3. replay
	if txn.CoinsCredited {
		return s.replay(ctx, txn)
	}

	// 4. claim then credit
	credited, coins, wallet, err := s.claimAndCredit(ctx, txn, in.PaymentID)
	if err != nil {
		return nil, err
	}
	if !credited {
		return s.replay(ctx, txn)
	}
	return &domain.VerifyResult{Wallet: wallet, CoinsCredited: coins}, nil
}

// HandleWebhook processes a signed payment.captured webhook through the same claim.
// Other events are acknowledged and ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if s.config.WebhookSecret == "" || !razorpay.VerifyWebhookSignature(s.config.WebhookSecret, body, signature) {
		return common.ErrInvalidSignature
	}
	ev, err := razorpay.ParseWebhook(body)
	if err != nil {
		return common.NewValidationError("Malformed webhook payload")
	}
	if ev.Event != razorpay.EventPaymentCaptured {
		return nil
	}

	txn, err := s.payments.FindByOrderID(ctx, ev.OrderID())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("find payment transaction: %w", err)
	}
	if txn.CoinsCredited {
		return nil
	}
	_, _, _, err = s.claimAndCredit(ctx, txn, ev.PaymentID())
	return err
}

// claimAndCredit flips coins_credited and credits the wallet in one transaction.
// credited is false when another caller already won the claim.
func (s *PaymentService) claimAndCredit(ctx context.Context, txn *domain.PaymentTransaction, paymentID string) (bool, int, *domain.Wallet, error) {
	plan, err := s.catalog.Find(ctx, txn.PlanID)
	if err != nil {
		return false, 0, nil, err
	}
	coins := plan.TotalCoins()
	now := s.now()

	var (
		won    bool
		wallet *domain.Wallet
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		won, err = s.payments.WithTx(tx).ClaimCredit(ctx, txn.OrderID, paymentID, coins, now)
		if err != nil || !won {
			return err
		}
		wallet, err = s.wallets.WithTx(tx).CreditCoinsForPlanPurchase(ctx, CreditInput{
			UserID:               txn.UserID,
			Coins:                coins,
			PlanID:               txn.PlanID,
			PaymentTransactionID: txn.ID,
		})
		return err
	})
	if err != nil {
		metrics.PaymentVerifications.WithLabelValues("error").Inc()
		return false, 0, nil, fmt.Errorf("claim and credit %s: %w", txn.OrderID, err)
	}
	if !won {
		return false, 0, nil, nil
	}

	metrics.PaymentVerifications.WithLabelValues("credited").Inc()
	_ = s.publisher.Publish(ctx, events.CoinsCredited, events.CoinsCreditedEvent{
		UserID:               txn.UserID,
		PlanID:               txn.PlanID,
		OrderID:              txn.OrderID,
		PaymentTransactionID: txn.ID,
		Coins:                coins,
		CreditedAt:           now,
	})
	s.notifier.NotifyWallet(txn.UserID, wallet)
	return true, coins, wallet, nil
}

func (s *PaymentService) replay(ctx context.Context, txn *domain.PaymentTransaction) (*domain.VerifyResult, error) {
	metrics.PaymentVerifications.WithLabelValues("replay").Inc()
	pkglogger.WithUserID(txn.UserID).Info().Str("order_id", txn.OrderID).Msg("payment already credited")

	wallet, err := s.wallets.Snapshot(ctx, txn.UserID)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	return &domain.VerifyResult{Wallet: wallet, AlreadyCredited: true}, nil
}
