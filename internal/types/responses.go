package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// CountdownResponse is the display view of a trade's remaining time
type CountdownResponse struct {
	TradeID          string          `json:"trade_id"`
	Hours            int             `json:"hours"`
	Minutes          int             `json:"minutes"`
	Seconds          int             `json:"seconds"`
	RemainingSeconds int64           `json:"remaining_seconds"`
	Expired          bool            `json:"expired"`
	Status           string          `json:"status"`
	ProfitLoss       decimal.Decimal `json:"profit_loss"`
	Timestamp        time.Time       `json:"timestamp"`
}

// SettlementResponse represents the outcome recorded for a trade
type SettlementResponse struct {
	TradeID     string          `json:"trade_id"`
	UserID      string          `json:"user_id"`
	Status      string          `json:"status"`
	ProfitLoss  decimal.Decimal `json:"profit_loss"`
	IsProcessed bool            `json:"is_processed"`
	SettledAt   time.Time       `json:"settled_at"`
}
