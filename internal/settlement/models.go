package settlement

import (
	"github.com/shopspring/decimal"
)

// SettleRequest is an admin's manual outcome for a trade
type SettleRequest struct {
	Status     string          `json:"status" binding:"required"` // Won or Lose
	ProfitLoss decimal.Decimal `json:"profit_loss"`
}
