package domain

import "time"

// LedgerSource origin of a balance change
type LedgerSource string

const (
	LedgerSourceFreeGrant    LedgerSource = "FREE_GRANT"
	LedgerSourceMessageDebit LedgerSource = "MESSAGE_DEBIT"
	LedgerSourcePlanPurchase LedgerSource = "PLAN_PURCHASE"
)

// Ledger reference kinds
const (
	ReferenceMessage = "message"
	ReferencePayment = "payment_transaction"
)

// Wallet per-user coin balance snapshot.
// RemainingCoins never goes negative; FreeGrantApplied only ever flips false -> true.
type Wallet struct {
	ID                  int64     `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	UserID              string    `gorm:"column:user_id;uniqueIndex;size:36;not null" json:"userId"`
	RemainingCoins      int       `gorm:"column:remaining_coins;not null;default:0" json:"remainingCoins"`
	FreeGrantApplied    bool      `gorm:"column:free_grant_applied;not null;default:false" json:"freeGrantApplied"`
	TotalCoinsPurchased int       `gorm:"column:total_coins_purchased;not null;default:0" json:"totalCoinsPurchased"`
	TotalCoinsUsed      int       `gorm:"column:total_coins_used;not null;default:0" json:"totalCoinsUsed"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Wallet) TableName() string {
	return "coin_wallets"
}

// LedgerEntry immutable audit row. Summing Delta per user reproduces RemainingCoins.
type LedgerEntry struct {
	ID            int64        `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID        string       `gorm:"column:user_id;size:36;not null;index:idx_ledger_user_created,priority:1" json:"userId"`
	Delta         int          `gorm:"column:delta;not null" json:"delta"`
	Source        LedgerSource `gorm:"column:source;size:32;not null;index" json:"source"`
	ReferenceType string       `gorm:"column:reference_type;size:32" json:"referenceType,omitempty"`
	ReferenceID   string       `gorm:"column:reference_id;size:64;index" json:"referenceId,omitempty"`
	CreatedAt     time.Time    `gorm:"column:created_at;autoCreateTime;index:idx_ledger_user_created,priority:2" json:"createdAt"`
}

func (LedgerEntry) TableName() string {
	return "coin_ledger_entries"
}
