package trading

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type CreateTradeRequest struct {
	TradingMode string          `json:"trading_mode" binding:"required"`
	Symbol      string          `json:"symbol" binding:"required"`
	Side        string          `json:"side" binding:"required"`
	OrderType   string          `json:"order_type"`
	Amount      decimal.Decimal `json:"amount"`
	Price       float64         `json:"price"` // limit price, ignored for MARKET
	ROI         float64         `json:"roi"`
	ExpireTime  int             `json:"expire_time"` // minutes
}

// AdminTradeRequest opens a trade on a user's behalf with a preset outcome
type AdminTradeRequest struct {
	CreateTradeRequest
	UserID      string          `json:"user_id" binding:"required"`
	Outcome     string          `json:"outcome" binding:"required"` // Won or Lose
	AdminProfit decimal.Decimal `json:"admin_profit"`
}

// TradeFilter narrows ListTrades. Empty fields match everything.
type TradeFilter struct {
	UserID      string
	TradingMode string
	Status      string
	OpenOnly    bool
	Limit       int
}
