package migrations

import (
	"github.com/ksred/tradedesk-api/internal/types"
	"gorm.io/gorm"
)

// AddTradeIndexes creates the trades table and the indexes the settlement
// scan and per-user listings depend on
func AddTradeIndexes(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Trade{}); err != nil {
		return err
	}

	indexes := []string{
		// Expiry scan: unprocessed trades ordered by expiry
		`CREATE INDEX IF NOT EXISTS idx_trades_open_expiry
		 ON trades(is_processed, expires_at)`,

		// Listing a user's trades newest first
		`CREATE INDEX IF NOT EXISTS idx_trades_user_created
		 ON trades(user_id, created_at)`,

		`CREATE INDEX IF NOT EXISTS idx_trades_user_mode_status
		 ON trades(user_id, trading_mode, status)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
