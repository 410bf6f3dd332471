package migrations

import (
	"github.com/ksred/tradedesk-api/internal/wallet"
	"gorm.io/gorm"
)

// AddLedgerIndexes creates the wallet tables and indexes for the review
// queue and per-user history
func AddLedgerIndexes(db *gorm.DB) error {
	if err := db.AutoMigrate(&wallet.Wallet{}, &wallet.Transaction{}); err != nil {
		return err
	}

	indexes := []string{
		// Admin review queue
		`CREATE INDEX IF NOT EXISTS idx_transactions_status_created
		 ON transactions(status, created_at)`,

		// Per-user history
		`CREATE INDEX IF NOT EXISTS idx_transactions_user_created
		 ON transactions(user_id, created_at)`,

		// Postings for a trade
		`CREATE INDEX IF NOT EXISTS idx_transactions_reference
		 ON transactions(reference)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
