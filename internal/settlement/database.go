package settlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/ksred/tradedesk-api/internal/accounts"
	"github.com/ksred/tradedesk-api/internal/notification"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/ksred/tradedesk-api/internal/wallet"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetTrade(tradeID string) (*types.Trade, error) {
	var trade types.Trade
	if err := d.db.Where("trade_id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, fmt.Errorf("failed to fetch trade: %w", err)
	}
	return &trade, nil
}

// GetExpiredTrades returns up to limit unprocessed PENDING trades whose
// expiry is at or before now, with primary key greater than afterID.
func (d *Database) GetExpiredTrades(now time.Time, afterID uint, limit int) ([]types.Trade, error) {
	var trades []types.Trade
	if err := d.db.
		Where("is_processed = ? AND status = ? AND expires_at <= ? AND id > ?",
			false, types.StatusPending, now.UTC(), afterID).
		Order("id ASC").
		Limit(limit).
		Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch expired trades: %w", err)
	}
	return trades, nil
}

// GetOwner loads the owner's role and auto-trade settings
func (d *Database) GetOwner(userID string) (*Owner, error) {
	var user accounts.User
	if err := d.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounts.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch trade owner: %w", err)
	}

	settings, err := accounts.NewDatabase(d.db).GetAutoTradeSettings(userID)
	if err != nil {
		return nil, err
	}

	return &Owner{
		UserID:    user.UserID,
		Role:      user.Role,
		AutoTrade: *settings,
	}, nil
}

// CommitSettlement writes the resolved trade and its side effects in one
// transaction. The trade row is only updated while is_processed is false,
// so a trade settles at most once no matter how many callers race here.
func (d *Database) CommitSettlement(resolved *types.Trade) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&types.Trade{}).
			Where("trade_id = ? AND is_processed = ?", resolved.TradeID, false).
			Updates(map[string]interface{}{
				"status":       resolved.Status,
				"profit_loss":  resolved.ProfitLoss,
				"is_processed": true,
				"settled_at":   resolved.SettledAt,
				"updated_at":   resolved.UpdatedAt,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update trade: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyProcessed
		}

		// The stake left the wallet when the trade opened; a win returns it
		// together with the profit.
		if resolved.Status == types.StatusWon {
			if _, err := wallet.Credit(tx, wallet.Posting{
				UserID:    resolved.UserID,
				Mode:      resolved.TradingMode,
				Type:      wallet.TypeTradePayout,
				Amount:    resolved.Amount.Add(resolved.ProfitLoss),
				Reference: resolved.TradeID,
			}); err != nil {
				return err
			}
		}

		_, err := notification.Create(tx, resolved.UserID, settlementTitle(resolved), settlementMessage(resolved))
		return err
	})
}

func settlementTitle(t *types.Trade) string {
	if t.Status == types.StatusWon {
		return "Trade won"
	}
	return "Trade lost"
}

func settlementMessage(t *types.Trade) string {
	if t.Status == types.StatusWon {
		return fmt.Sprintf("Your %s %s trade (%s) won %s.",
			t.Symbol, t.Side, t.TradingMode, t.ProfitLoss.StringFixed(2))
	}
	return fmt.Sprintf("Your %s %s trade (%s) lost %s.",
		t.Symbol, t.Side, t.TradingMode, t.ProfitLoss.StringFixed(2))
}
