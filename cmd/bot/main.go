package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"solana-wallet-bot/internal/api"
	"solana-wallet-bot/internal/config"
	"solana-wallet-bot/internal/database"
	"solana-wallet-bot/internal/executor"
	"solana-wallet-bot/internal/jupiter"
	"solana-wallet-bot/internal/leaderboard"
	"solana-wallet-bot/internal/locker"
	"solana-wallet-bot/internal/logger"
	"solana-wallet-bot/internal/notify"
	"solana-wallet-bot/internal/pricefeed"
	"solana-wallet-bot/internal/reconciler"
	"solana-wallet-bot/internal/solana"
	"solana-wallet-bot/internal/store"
	"solana-wallet-bot/internal/trend"
	"solana-wallet-bot/internal/wallet"

	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database and ledger store
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")
	ledger := store.NewLedger(db, cfg.Ledger.MaxAccounts)

	// Initialize chain, aggregator and price feed clients
	rpc := solana.NewRPCClient(&cfg.Chain, log.Named("solana"))
	gateway := jupiter.NewGateway(&cfg.Jupiter, rpc, log.Named("jupiter"))
	prices := pricefeed.NewFeed(&cfg.PriceFeed, log.Named("pricefeed"))
	custody := wallet.NewCustody(cfg.Custody.Passphrase)

	var notifier notify.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, log.Named("notify"))
	} else {
		notifier = notify.NewLogNotifier(log.Named("notify"))
	}

	// Per-user exclusive sections shared by the reconciler and the executor.
	locks := locker.NewUserLocker()

	recon := reconciler.NewReconciler(&cfg.Ledger, ledger, rpc, prices, locks, notifier, log.Named("reconciler"))
	exec := executor.NewExecutor(ledger, rpc, gateway, custody, locks, notifier, log.Named("executor"))
	trending := trend.NewPoller(&cfg.Trend, notifier, log.Named("trend"))
	monthly := leaderboard.NewJob(ledger, notifier, log.Named("leaderboard"))

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	server := api.NewServer(cfg.Server.Port, exec, ledger, custody, prices, log)
	server.Start()

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){recon.Run, trending.Run, monthly.Run} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
