package store

import (
	"errors"
	"fmt"
	"time"

	"solana-wallet-bot/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	// ErrNoWallet is returned when a user has no account.
	ErrNoWallet = errors.New("no wallet for user")
	// ErrCapacityExceeded is returned when the account cap is reached.
	ErrCapacityExceeded = errors.New("user limit reached")
	// ErrNegativeBalance is returned when a mutation would make a ledger
	// balance negative. This is an invariant violation, not a user error.
	ErrNegativeBalance = errors.New("ledger balance must not be negative")
)

// LedgerInterface defines the persistence contract used by the reconciler,
// the executor and the command surface.
type LedgerInterface interface {
	GetAccount(userID int64) (*models.Account, error)
	CreateAccountIfRoom(userID int64, username, pubkey, sealedKey string) (*models.Account, bool, error)
	ListAccounts() ([]models.Account, error)
	SetBalance(userID int64, balance decimal.Decimal) error
	AdjustMonthProfit(userID int64, delta decimal.Decimal) error
	RecordTrade(userID int64, kind, asset string, amount decimal.Decimal) error
	GetSnapshot(userID int64, asset string) (decimal.Decimal, error)
	SetSnapshot(userID int64, asset string, quantity decimal.Decimal) error
	TradesForUser(userID int64, limit int) ([]models.Trade, error)
	Leaderboard(limit int) ([]models.Account, error)
	ResetMonthProfits() error
}

// Ledger owns all reads and writes of accounts, deposit snapshots and the
// trade log. Every mutating method is a single-row transaction, durable when
// the call returns; multi-step correctness (check-then-write spans) is
// composed by the callers under a per-user lock.
type Ledger struct {
	db          *gorm.DB
	maxAccounts int
}

// ensure Ledger implements the interface
var _ LedgerInterface = (*Ledger)(nil)

// NewLedger creates a Ledger backed by db, enforcing maxAccounts as a hard
// cap on the number of accounts.
func NewLedger(db *gorm.DB, maxAccounts int) *Ledger {
	return &Ledger{db: db, maxAccounts: maxAccounts}
}

// GetAccount loads the account for userID, or ErrNoWallet.
func (l *Ledger) GetAccount(userID int64) (*models.Account, error) {
	var acc models.Account
	if err := l.db.Where("user_id = ?", userID).First(&acc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoWallet
		}
		return nil, fmt.Errorf("failed to load account %d: %w", userID, err)
	}
	return &acc, nil
}

// CreateAccountIfRoom inserts a new account unless the user already has one
// or the account cap is reached. The membership check, the count and the
// insert run in one transaction so the cap cannot be raced past. The second
// return value reports whether a new account was created.
func (l *Ledger) CreateAccountIfRoom(userID int64, username, pubkey, sealedKey string) (*models.Account, bool, error) {
	var acc models.Account
	created := false
	err := l.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ?", userID).First(&acc).Error
		if err == nil {
			return nil // existing account wins over the cap
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var count int64
		if err := tx.Model(&models.Account{}).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(l.maxAccounts) {
			return ErrCapacityExceeded
		}

		acc = models.Account{
			UserID:      userID,
			Username:    username,
			Pubkey:      pubkey,
			SealedKey:   sealedKey,
			BalanceSOL:  decimal.Zero,
			MonthProfit: decimal.Zero,
		}
		if err := tx.Create(&acc).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			return nil, false, ErrCapacityExceeded
		}
		return nil, false, fmt.Errorf("failed to create account %d: %w", userID, err)
	}
	return &acc, created, nil
}

// ListAccounts returns all accounts, the reconciler iterates these each cycle.
func (l *Ledger) ListAccounts() ([]models.Account, error) {
	var accs []models.Account
	if err := l.db.Find(&accs).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accs, nil
}

// SetBalance sets the ledger balance for userID. Negative balances are an
// invariant violation and are rejected.
func (l *Ledger) SetBalance(userID int64, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return ErrNegativeBalance
	}
	res := l.db.Model(&models.Account{}).Where("user_id = ?", userID).Update("balance_sol", balance)
	if res.Error != nil {
		return fmt.Errorf("failed to set balance for %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoWallet
	}
	return nil
}

// AdjustMonthProfit adds delta (signed) to the user's period profit.
func (l *Ledger) AdjustMonthProfit(userID int64, delta decimal.Decimal) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		var acc models.Account
		if err := tx.Where("user_id = ?", userID).First(&acc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoWallet
			}
			return fmt.Errorf("failed to load account %d: %w", userID, err)
		}
		return tx.Model(&acc).Update("month_profit", acc.MonthProfit.Add(delta)).Error
	})
}

// RecordTrade appends an immutable trade record.
func (l *Ledger) RecordTrade(userID int64, kind, asset string, amount decimal.Decimal) error {
	trade := models.Trade{
		UserID:    userID,
		Kind:      kind,
		Asset:     asset,
		Amount:    amount,
		Timestamp: time.Now().Unix(),
	}
	if err := l.db.Create(&trade).Error; err != nil {
		return fmt.Errorf("failed to record %s trade for %d: %w", kind, userID, err)
	}
	return nil
}

// GetSnapshot returns the last-observed on-chain quantity for (userID, asset).
// A missing row reads as zero: the first observation of an asset is compared
// against an empty baseline.
func (l *Ledger) GetSnapshot(userID int64, asset string) (decimal.Decimal, error) {
	var snap models.DepositSnapshot
	err := l.db.Where("user_id = ? AND asset = ?", userID, asset).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load snapshot %d/%s: %w", userID, asset, err)
	}
	return snap.Quantity, nil
}

// SetSnapshot advances the snapshot for (userID, asset) to quantity,
// creating the row on first observation.
func (l *Ledger) SetSnapshot(userID int64, asset string, quantity decimal.Decimal) error {
	err := l.db.Transaction(func(tx *gorm.DB) error {
		snap := models.DepositSnapshot{UserID: userID, Asset: asset}
		if err := tx.Where(&models.DepositSnapshot{UserID: userID, Asset: asset}).FirstOrCreate(&snap).Error; err != nil {
			return err
		}
		return tx.Model(&snap).Update("quantity", quantity).Error
	})
	if err != nil {
		return fmt.Errorf("failed to set snapshot %d/%s: %w", userID, asset, err)
	}
	return nil
}

// TradesForUser returns the user's most recent trades, newest first.
func (l *Ledger) TradesForUser(userID int64, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	if err := l.db.Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades for %d: %w", userID, err)
	}
	return trades, nil
}

// Leaderboard returns the top accounts by period profit.
func (l *Ledger) Leaderboard(limit int) ([]models.Account, error) {
	var accs []models.Account
	// month_profit is stored as a decimal string, order numerically.
	if err := l.db.Order("CAST(month_profit AS REAL) DESC").Limit(limit).Find(&accs).Error; err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return accs, nil
}

// ResetMonthProfits zeroes every account's period profit after the monthly
// leaderboard is published.
func (l *Ledger) ResetMonthProfits() error {
	if err := l.db.Model(&models.Account{}).Where("1 = 1").Update("month_profit", decimal.Zero).Error; err != nil {
		return fmt.Errorf("failed to reset month profits: %w", err)
	}
	return nil
}
