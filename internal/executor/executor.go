package executor

import (
	"errors"
	"fmt"

	"solana-wallet-bot/internal/jupiter"
	"solana-wallet-bot/internal/locker"
	"solana-wallet-bot/internal/models"
	"solana-wallet-bot/internal/notify"
	"solana-wallet-bot/internal/solana"
	"solana-wallet-bot/internal/store"
	"solana-wallet-bot/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrInsufficientFunds is returned when an operation asks for more than
	// the user's ledger balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidAddress is returned for a malformed withdrawal destination.
	ErrInvalidAddress = errors.New("invalid destination address")
)

// tokenDecimals is assumed for swap legs; the native coin and the common SPL
// tokens traded here use 9 decimal places.
const tokenDecimals = 9

// Executor orchestrates buys, sells and withdrawals. Settlement is
// optimistic: the ledger commits once a transaction is accepted for
// broadcast, so a transaction that later fails on-chain leaves the ledger
// ahead of the chain until manually reconciled. The commit point is single
// and strict: no ledger mutation happens before submission succeeds, and a
// successful submission applies exactly one debit/credit plus one trade
// record.
type Executor struct {
	logger   *zap.Logger
	ledger   store.LedgerInterface
	chain    solana.RPCInterface
	gateway  jupiter.GatewayInterface
	custody  wallet.CustodyInterface
	locks    *locker.UserLocker
	notifier notify.Notifier
}

// NewExecutor creates a swap executor.
func NewExecutor(
	ledger store.LedgerInterface,
	chain solana.RPCInterface,
	gateway jupiter.GatewayInterface,
	custody wallet.CustodyInterface,
	locks *locker.UserLocker,
	notifier notify.Notifier,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		logger:   logger,
		ledger:   ledger,
		chain:    chain,
		gateway:  gateway,
		custody:  custody,
		locks:    locks,
		notifier: notifier,
	}
}

// Buy swaps spendSOL of the user's ledger balance into the given token.
// Returns the broadcast transaction id.
func (e *Executor) Buy(userID int64, mint string, spendSOL decimal.Decimal) (string, error) {
	if !spendSOL.IsPositive() {
		return "", ErrInvalidAmount
	}
	l := e.logger.With(
		zap.String("op_id", uuid.NewString()),
		zap.Int64("user_id", userID),
		zap.String("mint", mint),
		zap.String("spend_sol", spendSOL.String()),
	)

	// The funds check and the eventual debit must not interleave with other
	// balance mutations for this user.
	e.locks.Lock(userID)
	defer e.locks.Unlock(userID)

	acc, err := e.ledger.GetAccount(userID)
	if err != nil {
		return "", err
	}
	if spendSOL.GreaterThan(acc.BalanceSOL) {
		return "", fmt.Errorf("%w: balance %s SOL", ErrInsufficientFunds, acc.BalanceSOL.String())
	}

	quote, err := e.gateway.GetQuote(solana.NativeMint, mint, toBaseUnits(spendSOL))
	if err != nil {
		return "", err
	}
	txid, err := e.buildSignSubmit(quote, acc, l)
	if err != nil {
		return "", err
	}

	// Submission succeeded: the single commit point for the ledger.
	newBalance := acc.BalanceSOL.Sub(spendSOL)
	if err := e.applyLedger(userID, newBalance, models.TradeBuy, mint, spendSOL, spendSOL.Neg()); err != nil {
		// The broadcast cannot be retracted; surface the bookkeeping failure loudly.
		l.Error("Ledger update failed after successful submission", zap.Error(err))
		return txid, err
	}

	l.Info("Buy submitted", zap.String("txid", txid), zap.String("balance", newBalance.String()))
	_ = e.notifier.NotifyUser(userID,
		fmt.Sprintf("Buy submitted. Tx: %s. Spent: %s SOL", txid, spendSOL.String()))
	return txid, nil
}

// Sell swaps sellAmount of the given token back into the native coin and
// credits the quoted proceeds to the ledger balance.
func (e *Executor) Sell(userID int64, mint string, sellAmount decimal.Decimal) (string, error) {
	if !sellAmount.IsPositive() {
		return "", ErrInvalidAmount
	}
	l := e.logger.With(
		zap.String("op_id", uuid.NewString()),
		zap.Int64("user_id", userID),
		zap.String("mint", mint),
		zap.String("sell_amount", sellAmount.String()),
	)

	e.locks.Lock(userID)
	defer e.locks.Unlock(userID)

	acc, err := e.ledger.GetAccount(userID)
	if err != nil {
		return "", err
	}

	quote, err := e.gateway.GetQuote(mint, solana.NativeMint, toBaseUnits(sellAmount))
	if err != nil {
		return "", err
	}
	proceeds := quote.OutAmountDecimal(tokenDecimals)

	txid, err := e.buildSignSubmit(quote, acc, l)
	if err != nil {
		return "", err
	}

	newBalance := acc.BalanceSOL.Add(proceeds)
	if err := e.applyLedger(userID, newBalance, models.TradeSell, mint, sellAmount, proceeds); err != nil {
		l.Error("Ledger update failed after successful submission", zap.Error(err))
		return txid, err
	}

	l.Info("Sell submitted",
		zap.String("txid", txid),
		zap.String("proceeds_sol", proceeds.String()),
		zap.String("balance", newBalance.String()),
	)
	_ = e.notifier.NotifyUser(userID,
		fmt.Sprintf("Sell submitted. Tx: %s. Got: %s SOL", txid, proceeds.StringFixed(6)))
	return txid, nil
}

// Withdraw transfers amountSOL from the user's wallet to destination as a
// plain native transfer, no quote involved.
func (e *Executor) Withdraw(userID int64, amountSOL decimal.Decimal, destination string) (string, error) {
	if !amountSOL.IsPositive() {
		return "", ErrInvalidAmount
	}
	if !solana.IsValidAddress(destination) {
		return "", ErrInvalidAddress
	}
	l := e.logger.With(
		zap.String("op_id", uuid.NewString()),
		zap.Int64("user_id", userID),
		zap.String("destination", destination),
		zap.String("amount_sol", amountSOL.String()),
	)

	e.locks.Lock(userID)
	defer e.locks.Unlock(userID)

	acc, err := e.ledger.GetAccount(userID)
	if err != nil {
		return "", err
	}
	if amountSOL.GreaterThan(acc.BalanceSOL) {
		return "", fmt.Errorf("%w: balance %s SOL", ErrInsufficientFunds, acc.BalanceSOL.String())
	}

	blockhash, err := e.chain.GetLatestBlockhash()
	if err != nil {
		return "", err
	}
	unsigned, err := solana.BuildTransferTx(acc.Pubkey, destination, toBaseUnits(amountSOL), blockhash)
	if err != nil {
		return "", err
	}
	signed, err := e.custody.Sign(acc.SealedKey, unsigned)
	if err != nil {
		return "", err
	}
	txid, err := e.chain.SendTransaction(signed)
	if err != nil {
		return "", err
	}

	newBalance := acc.BalanceSOL.Sub(amountSOL)
	if err := e.ledger.SetBalance(userID, newBalance); err != nil {
		l.Error("Ledger update failed after successful submission", zap.Error(err))
		return txid, err
	}
	if err := e.ledger.RecordTrade(userID, models.TradeWithdraw, "SOL", amountSOL); err != nil {
		l.Error("Trade record failed after successful submission", zap.Error(err))
		return txid, err
	}

	l.Info("Withdraw submitted", zap.String("txid", txid), zap.String("balance", newBalance.String()))
	_ = e.notifier.NotifyUser(userID,
		fmt.Sprintf("Withdraw submitted. Tx: %s. Sent: %s SOL", txid, amountSOL.String()))
	return txid, nil
}

// Refresh re-reads the on-chain native balance and overwrites the ledger
// balance with it. Operator escape hatch for the documented optimistic
// settlement gap.
func (e *Executor) Refresh(userID int64) (decimal.Decimal, error) {
	acc, err := e.ledger.GetAccount(userID)
	if err != nil {
		return decimal.Zero, err
	}
	current, err := e.chain.GetNativeBalance(acc.Pubkey)
	if err != nil {
		return decimal.Zero, err
	}

	e.locks.Lock(userID)
	defer e.locks.Unlock(userID)

	if err := e.ledger.SetBalance(userID, current); err != nil {
		return decimal.Zero, err
	}
	e.logger.Info("Balance refreshed from chain",
		zap.Int64("user_id", userID), zap.String("balance", current.String()))
	return current, nil
}

// buildSignSubmit runs the build, sign and submit tail of a swap. No ledger
// mutation happens in here.
func (e *Executor) buildSignSubmit(quote *jupiter.Quote, acc *models.Account, l *zap.Logger) (string, error) {
	unsigned, err := e.gateway.BuildSwap(quote, acc.Pubkey)
	if err != nil {
		return "", err
	}
	signed, err := e.custody.Sign(acc.SealedKey, unsigned)
	if err != nil {
		// Decryption failure means corrupted key material; never retried.
		l.Error("Signing failed", zap.Error(err))
		return "", err
	}
	return e.gateway.Submit(signed)
}

// applyLedger applies the one debit/credit, trade record and profit
// adjustment that pair with a successful submission.
func (e *Executor) applyLedger(userID int64, newBalance decimal.Decimal, kind, asset string, amount, profitDelta decimal.Decimal) error {
	if err := e.ledger.SetBalance(userID, newBalance); err != nil {
		return err
	}
	if err := e.ledger.RecordTrade(userID, kind, asset, amount); err != nil {
		return err
	}
	return e.ledger.AdjustMonthProfit(userID, profitDelta)
}

// toBaseUnits converts a decimal token quantity to integer base units.
func toBaseUnits(amount decimal.Decimal) uint64 {
	return uint64(amount.Shift(tokenDecimals).IntPart())
}
