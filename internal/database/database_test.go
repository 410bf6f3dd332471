package database

import (
	"testing"

	"github.com/ksred/tradedesk-api/internal/accounts"
	"github.com/ksred/tradedesk-api/internal/config"
	"github.com/ksred/tradedesk-api/internal/notification"
	"github.com/ksred/tradedesk-api/internal/trading"
	"github.com/ksred/tradedesk-api/internal/types"
	"github.com/ksred/tradedesk-api/internal/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase_MigratesSchema(t *testing.T) {
	db, err := NewDatabase(config.Database{Driver: "sqlite", DSN: "file:migrate_test?mode=memory&cache=shared"})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	for _, model := range []interface{}{
		&types.Trade{},
		&accounts.User{},
		&accounts.AutoTradeSettings{},
		&trading.IdempotencyRecord{},
		&wallet.Wallet{},
		&wallet.Transaction{},
		&notification.Notification{},
	} {
		assert.True(t, db.Migrator().HasTable(model))
	}

	assert.True(t, db.Migrator().HasIndex(&types.Trade{}, "idx_trades_open_expiry"))
	assert.True(t, db.Migrator().HasIndex(&wallet.Transaction{}, "idx_transactions_status_created"))

	// Running migrations again is a no-op
	assert.NoError(t, Migrate(db))
}

func TestNewDatabase_UnknownDriver(t *testing.T) {
	_, err := NewDatabase(config.Database{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}
