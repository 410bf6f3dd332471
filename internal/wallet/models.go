package wallet

import (
	"time"

	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/shopspring/decimal"
)

// Ledger transaction types
const (
	TypeDeposit     = "DEPOSIT"
	TypeWithdrawal  = "WITHDRAWAL"
	TypeTradeStake  = "TRADE_STAKE"
	TypeTradePayout = "TRADE_PAYOUT"
	TypeTradeRefund = "TRADE_REFUND"
)

const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Wallet holds a user's live and demo balances
type Wallet struct {
	ID          uint            `gorm:"primaryKey" json:"-"`
	UserID      string          `gorm:"uniqueIndex" json:"user_id"`
	LiveBalance decimal.Decimal `gorm:"type:decimal(24,8);not null;default:0" json:"live_balance"`
	DemoBalance decimal.Decimal `gorm:"type:decimal(24,8);not null;default:0" json:"demo_balance"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (w *Wallet) balance(mode string) decimal.Decimal {
	if mode == types.ModeLive {
		return w.LiveBalance
	}
	return w.DemoBalance
}

// Transaction is one ledger row. Deposits and withdrawals start PENDING and
// are reviewed by an admin; trade postings are written APPROVED.
type Transaction struct {
	ID            uint            `gorm:"primaryKey" json:"-"`
	TransactionID string          `gorm:"uniqueIndex" json:"transaction_id"`
	UserID        string          `gorm:"index" json:"user_id"`
	Type          string          `json:"type"`
	Mode          string          `json:"mode"` // LIVE or DEMO
	Amount        decimal.Decimal `gorm:"type:decimal(24,8)" json:"amount"`
	Status        string          `gorm:"index" json:"status"`
	Reference     string          `gorm:"index" json:"reference,omitempty"` // trade ID for trade postings
	ReviewedBy    string          `json:"reviewed_by,omitempty"`
	Note          string          `json:"note,omitempty"`
	ReviewedAt    *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Posting describes a balance movement made on behalf of a trade
type Posting struct {
	UserID    string
	Mode      string
	Type      string
	Amount    decimal.Decimal
	Reference string
	Note      string
}

type FundsRequest struct {
	Mode   string          `json:"mode" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

type ReviewRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}
