package reconciler

import (
	"context"
	"fmt"
	"time"

	"solana-wallet-bot/internal/config"
	"solana-wallet-bot/internal/locker"
	"solana-wallet-bot/internal/models"
	"solana-wallet-bot/internal/notify"
	"solana-wallet-bot/internal/pricefeed"
	"solana-wallet-bot/internal/solana"
	"solana-wallet-bot/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reconciler periodically diffs each user's observed on-chain balances
// against the ledger and credits deposits exactly once per observed
// increment. Two assets are tracked: the native coin, whose deposit baseline
// is the ledger balance itself, and the configured stablecoin, which has a
// dedicated snapshot row and is credited in native units through the price
// feed.
type Reconciler struct {
	logger     *zap.Logger
	ledger     store.LedgerInterface
	chain      solana.RPCInterface
	prices     pricefeed.FeedInterface
	locks      *locker.UserLocker
	notifier   notify.Notifier
	interval   time.Duration
	minDeposit decimal.Decimal
	stableMint string
}

// NewReconciler creates a deposit reconciler.
func NewReconciler(
	cfg *config.Ledger,
	ledger store.LedgerInterface,
	chain solana.RPCInterface,
	prices pricefeed.FeedInterface,
	locks *locker.UserLocker,
	notifier notify.Notifier,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		logger:     logger,
		ledger:     ledger,
		chain:      chain,
		prices:     prices,
		locks:      locks,
		notifier:   notifier,
		interval:   time.Duration(cfg.PollInterval) * time.Second,
		minDeposit: decimal.NewFromFloat(cfg.MinDepositSOL),
		stableMint: cfg.StablecoinMint,
	}
}

// Run starts the polling loop and blocks until ctx is cancelled. A failing
// cycle is logged and retried at the next tick, never fatal.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Starting deposit poller", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping deposit poller...")
			return
		case <-ticker.C:
			if err := r.cycle(); err != nil {
				r.logger.Error("Deposit cycle failed", zap.Error(err))
			}
		}
	}
}

// cycle runs one reconciliation pass over all accounts. A failure for one
// user or asset never aborts processing of the others.
func (r *Reconciler) cycle() error {
	accounts, err := r.ledger.ListAccounts()
	if err != nil {
		return fmt.Errorf("could not list accounts: %w", err)
	}

	for _, acc := range accounts {
		if err := r.reconcileNative(&acc); err != nil {
			r.logger.Warn("Native reconciliation failed, will retry next cycle",
				zap.Int64("user_id", acc.UserID), zap.Error(err))
		}
		if err := r.reconcileStablecoin(&acc); err != nil {
			r.logger.Warn("Stablecoin reconciliation failed, will retry next cycle",
				zap.Int64("user_id", acc.UserID), zap.Error(err))
		}
	}
	return nil
}

// reconcileNative credits native-coin deposits. The ledger balance is the
// deposit baseline: a credit sets it to the observed on-chain value. The
// balance is never advanced downward here, outbound swap spends are settled
// optimistically by the executor and must not be re-absorbed.
func (r *Reconciler) reconcileNative(acc *models.Account) error {
	current, err := r.chain.GetNativeBalance(acc.Pubkey)
	if err != nil {
		// No observable change this cycle; the baseline is untouched so the
		// deposit is recomputed next time.
		return err
	}

	r.locks.Lock(acc.UserID)
	defer r.locks.Unlock(acc.UserID)

	// Reload inside the exclusive section, the listing copy may be stale.
	fresh, err := r.ledger.GetAccount(acc.UserID)
	if err != nil {
		return err
	}

	delta := current.Sub(fresh.BalanceSOL)
	if delta.LessThan(r.minDeposit) {
		// Nothing credited: decreases are outbound transfers or fees, and
		// sub-threshold increases stay pending until they clear it.
		return nil
	}

	if err := r.ledger.SetBalance(acc.UserID, current); err != nil {
		return err
	}
	if err := r.ledger.RecordTrade(acc.UserID, models.TradeDeposit, "SOL", delta); err != nil {
		return err
	}

	r.logger.Info("Deposit credited",
		zap.Int64("user_id", acc.UserID),
		zap.String("asset", "SOL"),
		zap.String("amount", delta.String()),
		zap.String("balance", current.String()),
	)
	_ = r.notifier.NotifyUser(acc.UserID,
		fmt.Sprintf("Deposit received: +%s SOL. Balance: %s SOL", delta.String(), current.String()))
	return nil
}

// reconcileStablecoin credits stablecoin deposits converted into native
// units. State machine per cycle: read chain, compute delta against the
// snapshot, credit or absorb, advance the snapshot. The snapshot advances on
// every outcome except a failed chain read or a failed price conversion, so
// on-chain decreases are never mis-read as deposits later and a conversion
// retry never loses the deposit.
func (r *Reconciler) reconcileStablecoin(acc *models.Account) error {
	current, err := r.chain.GetTokenBalance(acc.Pubkey, r.stableMint)
	if err != nil {
		return err
	}

	r.locks.Lock(acc.UserID)
	defer r.locks.Unlock(acc.UserID)

	snapshot, err := r.ledger.GetSnapshot(acc.UserID, r.stableMint)
	if err != nil {
		return err
	}

	delta := current.Sub(snapshot)
	if !delta.IsPositive() {
		// Outbound transfer or no change: advance the baseline, credit nothing.
		return r.ledger.SetSnapshot(acc.UserID, r.stableMint, current)
	}

	price, err := r.prices.GetNativePriceUSD()
	if err != nil {
		// Conversion failed. The snapshot must not advance or the deposit
		// would be lost; retry with the same baseline next cycle.
		return err
	}
	converted := delta.Div(price)

	if converted.LessThan(r.minDeposit) {
		// Dust is absorbed, not credited and not retried.
		return r.ledger.SetSnapshot(acc.UserID, r.stableMint, current)
	}

	fresh, err := r.ledger.GetAccount(acc.UserID)
	if err != nil {
		return err
	}
	newBalance := fresh.BalanceSOL.Add(converted)

	// Credit, record, then advance. A crash between the credit and the
	// snapshot advance re-credits next cycle; accepted, see the deposit
	// state machine notes.
	if err := r.ledger.SetBalance(acc.UserID, newBalance); err != nil {
		return err
	}
	if err := r.ledger.RecordTrade(acc.UserID, models.TradeDeposit, r.stableMint, delta); err != nil {
		return err
	}
	if err := r.ledger.SetSnapshot(acc.UserID, r.stableMint, current); err != nil {
		return err
	}

	r.logger.Info("Deposit credited",
		zap.Int64("user_id", acc.UserID),
		zap.String("asset", r.stableMint),
		zap.String("amount", delta.String()),
		zap.String("converted_sol", converted.String()),
	)
	_ = r.notifier.NotifyUser(acc.UserID,
		fmt.Sprintf("Stablecoin deposit detected: +%s (converted to %s SOL). Balance: %s SOL",
			delta.String(), converted.StringFixed(6), newBalance.String()))
	return nil
}
