package database

import (
	"fmt"

	"solana-wallet-bot/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase opens the database connection and ensures the schema exists.
// Migration is additive: existing accounts, snapshots and trades survive
// restarts, the trade log in particular is append-only and must never be
// recreated.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.Account{}, &models.DepositSnapshot{}, &models.Trade{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return db, nil
}
