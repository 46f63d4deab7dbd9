package repository

import (
	"testing"

	"github.com/damoang/coinchat/internal/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&domain.User{}, &domain.Wallet{}, &domain.LedgerEntry{}, &domain.CoinPlan{},
		&domain.PaymentTransaction{}, &domain.Conversation{}, &domain.Message{}, &domain.MessageRead{},
	))
	return db
}
