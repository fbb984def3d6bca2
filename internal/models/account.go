package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account represents a custodial user wallet.
// BalanceSOL is the internal ledger balance, not the on-chain balance; for the
// native coin it doubles as the last-observed deposit snapshot.
type Account struct {
	gorm.Model
	UserID      int64 `gorm:"uniqueIndex;not null"`
	Username    string
	Pubkey      string          `gorm:"uniqueIndex;not null"`
	SealedKey   string          `gorm:"not null"` // encrypted private key, base64
	BalanceSOL  decimal.Decimal `gorm:"type:decimal(30,9);not null"`
	MonthProfit decimal.Decimal `gorm:"type:decimal(30,9);not null"`
}
