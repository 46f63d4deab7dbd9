package domain

// CoinPlan purchasable coin bundle. Price is in whole currency units.
type CoinPlan struct {
	PlanID     string `gorm:"column:plan_id;primaryKey;size:32" json:"planId"`
	Name       string `gorm:"column:name;size:64" json:"name"`
	Price      int    `gorm:"column:price;not null" json:"price"`
	Currency   string `gorm:"column:currency;size:3;not null" json:"currency"`
	BaseCoins  int    `gorm:"column:base_coins;not null" json:"baseCoins"`
	BonusCoins int    `gorm:"column:bonus_coins;not null;default:0" json:"bonusCoins"`
	IsActive   bool   `gorm:"column:is_active;not null;default:true" json:"isActive"`
	SortOrder  int    `gorm:"column:sort_order;not null;default:0" json:"-"`
}

func (CoinPlan) TableName() string {
	return "coin_plans"
}

// TotalCoins base + bonus
func (p CoinPlan) TotalCoins() int {
	return p.BaseCoins + p.BonusCoins
}

// AmountMinor price in the smallest currency unit (paise).
func (p CoinPlan) AmountMinor() int64 {
	return int64(p.Price) * 100
}

// CoinPlanView catalog entry as shown to clients
type CoinPlanView struct {
	CoinPlan
	TotalCoins int `json:"totalCoins"`
}

// View attaches the derived total.
func (p CoinPlan) View() CoinPlanView {
	return CoinPlanView{CoinPlan: p, TotalCoins: p.TotalCoins()}
}

// DefaultCoinPlans seeded catalog
func DefaultCoinPlans() []CoinPlan {
	return []CoinPlan{
		{PlanID: "coins-199", Name: "Starter", Price: 199, Currency: "INR", BaseCoins: 200, BonusCoins: 20, IsActive: true, SortOrder: 1},
		{PlanID: "coins-399", Name: "Growth", Price: 399, Currency: "INR", BaseCoins: 450, BonusCoins: 60, IsActive: true, SortOrder: 2},
		{PlanID: "coins-599", Name: "Pro", Price: 599, Currency: "INR", BaseCoins: 750, BonusCoins: 150, IsActive: true, SortOrder: 3},
	}
}
