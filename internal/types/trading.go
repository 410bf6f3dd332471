package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trading modes select which wallet balance a trade draws from
const (
	ModeLive = "LIVE"
	ModeDemo = "DEMO"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
)

// Trade statuses. Won and Lose keep the casing the dashboard displays.
const (
	StatusPending   = "PENDING"
	StatusWon       = "Won"
	StatusLose      = "Lose"
	StatusCancelled = "CANCELLED"
)

const (
	OriginUser  = "user"
	OriginAdmin = "admin"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Trade is a simulated timed trade. It settles once, when
// CreatedAt + ExpireTime minutes has elapsed or when cancelled before that.
type Trade struct {
	ID           uint            `gorm:"primaryKey" json:"-"`
	TradeID      string          `gorm:"uniqueIndex" json:"trade_id"`
	UserID       string          `gorm:"index" json:"user_id"`
	TradingMode  string          `json:"trading_mode"` // LIVE or DEMO
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`       // BUY or SELL
	OrderType    string          `json:"order_type"` // MARKET or LIMIT
	Amount       decimal.Decimal `gorm:"type:decimal(24,8)" json:"amount"`
	Price        float64         `json:"price"`
	Units        float64         `json:"units"`
	ROI          float64         `json:"roi"`
	ExpireTime   int             `json:"expire_time"` // minutes
	ExpiresAt    time.Time       `gorm:"index" json:"expires_at"`
	IsProcessed  bool            `gorm:"index" json:"is_processed"`
	Status       string          `gorm:"index" json:"status"`
	ProfitLoss   decimal.Decimal `gorm:"type:decimal(24,8)" json:"profit_loss"`
	Origin       string          `json:"origin"` // user or admin
	AdminOutcome string          `json:"admin_outcome,omitempty"`
	AdminProfit  decimal.Decimal `gorm:"type:decimal(24,8)" json:"admin_profit"`
	SettledAt    *time.Time      `json:"settled_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`
}

// Expiry returns the instant the trade's countdown reaches zero.
func (t *Trade) Expiry() time.Time {
	return t.CreatedAt.Add(time.Duration(t.ExpireTime) * time.Minute)
}

// BeforeCreate keeps ExpiresAt in step with CreatedAt and ExpireTime so the
// scheduler can select expired trades in SQL. ExpiresAt is stored in UTC;
// queries against it must pass UTC times too.
func (t *Trade) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	t.ExpiresAt = t.Expiry().UTC()
	return nil
}

// IsTerminal reports whether the status can no longer change.
func IsTerminal(status string) bool {
	switch status {
	case StatusWon, StatusLose, StatusCancelled:
		return true
	}
	return false
}
