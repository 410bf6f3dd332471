package trading

import (
	"errors"
	"fmt"
	"time"

	"github.com/ksred/tradedesk-api/internal/notification"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/ksred/tradedesk-api/internal/wallet"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const idempotencyTTL = 24 * time.Hour

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

func (d *Database) ListTrades(filter TradeFilter) ([]types.Trade, error) {
	var trades []types.Trade
	query := d.db.Model(&types.Trade{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.TradingMode != "" {
		query = query.Where("trading_mode = ?", filter.TradingMode)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OpenOnly {
		query = query.Where("is_processed = ?", false)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Order("created_at DESC").Order("id DESC").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// CreateTradeWithIdempotency debits the stake, creates the trade and its
// idempotency record in one transaction. An expired record under the same
// key is replaced; a live one makes the insert fail on the unique index.
func (d *Database) CreateTradeWithIdempotency(trade *types.Trade, idempotencyKey string) error {
	createdAt := trade.CreatedAt.UTC()
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().
			Where("idempotency_key = ? AND expires_at <= ?", idempotencyKey, createdAt).
			Delete(&IdempotencyRecord{}).Error; err != nil {
			return err
		}

		if _, err := wallet.Debit(tx, wallet.Posting{
			UserID:    trade.UserID,
			Mode:      trade.TradingMode,
			Type:      wallet.TypeTradeStake,
			Amount:    trade.Amount,
			Reference: trade.TradeID,
		}); err != nil {
			return err
		}

		if err := tx.Create(trade).Error; err != nil {
			return err
		}

		record := IdempotencyRecord{
			IdempotencyKey: idempotencyKey,
			ResourceID:     trade.TradeID,
			ResourceType:   "trade",
			ExpiresAt:      createdAt.Add(idempotencyTTL),
		}
		return tx.Create(&record).Error
	})
}

// GetIdempotencyRecord retrieves an idempotency record by key. A missing
// record is not an error: it returns nil, nil.
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// CancelTrade marks an open, unexpired trade CANCELLED and refunds the
// stake. The update only matches while the trade is unprocessed and its
// expiry is still ahead of now.
func (d *Database) CancelTrade(tradeID string, now time.Time) (*types.Trade, error) {
	var cancelled types.Trade
	err := d.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&types.Trade{}).
			Where("trade_id = ? AND is_processed = ? AND expires_at > ?", tradeID, false, now.UTC()).
			Updates(map[string]interface{}{
				"status":       types.StatusCancelled,
				"profit_loss":  decimal.Zero,
				"is_processed": true,
				"settled_at":   now,
				"updated_at":   now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errNotCancellable
		}

		if err := tx.Where("trade_id = ?", tradeID).First(&cancelled).Error; err != nil {
			return err
		}

		if _, err := wallet.Credit(tx, wallet.Posting{
			UserID:    cancelled.UserID,
			Mode:      cancelled.TradingMode,
			Type:      wallet.TypeTradeRefund,
			Amount:    cancelled.Amount,
			Reference: cancelled.TradeID,
		}); err != nil {
			return err
		}

		_, err := notification.Create(tx, cancelled.UserID, "Trade cancelled",
			fmt.Sprintf("Your %s %s trade (%s) was cancelled and %s refunded.",
				cancelled.Symbol, cancelled.Side, cancelled.TradingMode, cancelled.Amount.StringFixed(2)))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &cancelled, nil
}

// DeleteTrade soft deletes a trade
func (d *Database) DeleteTrade(tradeID string) error {
	result := d.db.Where("trade_id = ?", tradeID).Delete(&types.Trade{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTradeNotFound
	}
	return nil
}
