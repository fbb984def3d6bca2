package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade kinds.
const (
	TradeBuy      = "BUY"
	TradeSell     = "SELL"
	TradeDeposit  = "DEPOSIT"
	TradeWithdraw = "WITHDRAW"
)

// Trade is an append-only audit record of a completed ledger mutation.
// Rows are never updated or deleted.
type Trade struct {
	gorm.Model
	UserID    int64           `gorm:"index;not null" json:"user_id"`
	Kind      string          `gorm:"not null" json:"kind"`
	Asset     string          `gorm:"not null" json:"asset"`
	Amount    decimal.Decimal `gorm:"type:decimal(30,9);not null" json:"amount"`
	Timestamp int64           `gorm:"not null" json:"timestamp"`
}
