package leaderboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"solana-wallet-bot/internal/notify"
	"solana-wallet-bot/internal/store"

	"go.uber.org/zap"
)

const topSize = 10

// Job publishes the monthly profit leaderboard and resets period profits.
// It wakes at each month boundary; publishing is best effort, the reset only
// happens after a successful publish so a transient failure keeps the
// standings for the next attempt.
type Job struct {
	ledger   store.LedgerInterface
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewJob creates a leaderboard job.
func NewJob(ledger store.LedgerInterface, notifier notify.Notifier, logger *zap.Logger) *Job {
	return &Job{ledger: ledger, notifier: notifier, logger: logger}
}

// Run blocks until ctx is cancelled, publishing at every month boundary.
func (j *Job) Run(ctx context.Context) {
	j.logger.Info("Starting monthly leaderboard job")
	for {
		wait := untilNextMonth(time.Now().UTC())
		select {
		case <-ctx.Done():
			j.logger.Info("Stopping monthly leaderboard job...")
			return
		case <-time.After(wait):
			if err := j.Publish(); err != nil {
				j.logger.Error("Leaderboard publish failed", zap.Error(err))
			}
		}
	}
}

// Publish sends the current top standings and resets period profits.
func (j *Job) Publish() error {
	accounts, err := j.ledger.Leaderboard(topSize)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("MONTHLY LEADERBOARD\n\n")
	for i, acc := range accounts {
		name := acc.Username
		if name == "" {
			name = fmt.Sprintf("user %d", acc.UserID)
		}
		fmt.Fprintf(&b, "%d. %s: %s SOL\n", i+1, name, acc.MonthProfit.StringFixed(6))
	}

	if err := j.notifier.Broadcast(b.String()); err != nil {
		return fmt.Errorf("failed to publish leaderboard: %w", err)
	}
	return j.ledger.ResetMonthProfits()
}

// untilNextMonth returns the wait until the first moment of the next month,
// with a floor so clock skew never produces a hot loop.
func untilNextMonth(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), 1, 0, 0, 10, 0, time.UTC).AddDate(0, 1, 0)
	wait := next.Sub(now)
	if wait < time.Minute {
		wait = time.Minute
	}
	return wait
}
