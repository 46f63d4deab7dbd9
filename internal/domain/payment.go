package domain

import "time"

// PaymentStatus Razorpay order lifecycle. CREATED -> VERIFIED_CREDITED is the only transition.
type PaymentStatus string

const (
	PaymentStatusCreated          PaymentStatus = "CREATED"
	PaymentStatusVerifiedCredited PaymentStatus = "VERIFIED_CREDITED"
)

// PaymentTransaction one gateway order attempt
type PaymentTransaction struct {
	ID            int64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID        string        `gorm:"column:user_id;size:36;not null;index" json:"userId"`
	PlanID        string        `gorm:"column:plan_id;size:32;not null" json:"planId"`
	OrderID       string        `gorm:"column:order_id;uniqueIndex;size:64;not null" json:"orderId"`
	PaymentID     string        `gorm:"column:payment_id;size:64;index" json:"paymentId,omitempty"`
	Amount        int64         `gorm:"column:amount;not null" json:"amount"` // minor units
	Currency      string        `gorm:"column:currency;size:3;not null" json:"currency"`
	Receipt       string        `gorm:"column:receipt;size:64" json:"receipt"`
	CoinsCredited bool          `gorm:"column:coins_credited;not null;default:false" json:"coinsCredited"`
	CoinsAwarded  int           `gorm:"column:coins_awarded;not null;default:0" json:"coinsAwarded"`
	Status        PaymentStatus `gorm:"column:status;size:24;not null;default:CREATED" json:"status"`
	CreditedAt    *time.Time    `gorm:"column:credited_at" json:"creditedAt,omitempty"`
	CreatedAt     time.Time     `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time     `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// CreateOrderRequest POST /payments/razorpay/order
type CreateOrderRequest struct {
	PlanID string `json:"planId" binding:"required"`
}

// OrderResponse data handed to the checkout widget
type OrderResponse struct {
	OrderID  string       `json:"orderId"`
	Amount   int64        `json:"amount"`
	Currency string       `json:"currency"`
	KeyID    string       `json:"keyId"`
	Plan     CoinPlanView `json:"plan"`
}

// VerifyPaymentRequest checkout completion payload
type VerifyPaymentRequest struct {
	PlanID    string `json:"planId" binding:"required"`
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
}

// VerifyResult outcome of verifyAndCredit
type VerifyResult struct {
	Wallet          *Wallet `json:"wallet"`
	AlreadyCredited bool    `json:"alreadyCredited"`
	CoinsCredited   int     `json:"coinsCredited"`
}
