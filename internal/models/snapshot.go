package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DepositSnapshot stores the last-observed on-chain quantity of a tracked
// token asset for a user. Deposit deltas are computed against it, and it is
// advanced every polling cycle so that on-chain decreases are never
// mis-detected as deposits later.
type DepositSnapshot struct {
	gorm.Model
	UserID   int64           `gorm:"uniqueIndex:idx_user_asset;not null"`
	Asset    string          `gorm:"uniqueIndex:idx_user_asset;not null"`
	Quantity decimal.Decimal `gorm:"type:decimal(30,9);not null"`
}
