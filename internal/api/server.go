package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"solana-wallet-bot/internal/executor"
	"solana-wallet-bot/internal/jupiter"
	"solana-wallet-bot/internal/pricefeed"
	"solana-wallet-bot/internal/solana"
	"solana-wallet-bot/internal/store"
	"solana-wallet-bot/internal/wallet"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Server is the HTTP command surface. It invokes the executor and reads the
// ledger; it never mutates the ledger directly.
type Server struct {
	server    *http.Server
	exec      *executor.Executor
	ledger    store.LedgerInterface
	custody   wallet.CustodyInterface
	prices    pricefeed.FeedInterface
	logger    *zap.Logger
	uuid      string
	startTime time.Time
}

// NewServer creates the command surface on the given port.
func NewServer(
	port int,
	exec *executor.Executor,
	ledger store.LedgerInterface,
	custody wallet.CustodyInterface,
	prices pricefeed.FeedInterface,
	logger *zap.Logger,
) *Server {
	s := &Server{
		exec:      exec,
		ledger:    ledger,
		custody:   custody,
		prices:    prices,
		logger:    logger.Named("api-server"),
		uuid:      uuid.NewString(),
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/wallet", s.walletHandler)
	mux.HandleFunc("/balance", s.balanceHandler)
	mux.HandleFunc("/trades", s.tradesHandler)
	mux.HandleFunc("/buy", s.buyHandler)
	mux.HandleFunc("/sell", s.sellHandler)
	mux.HandleFunc("/withdraw", s.withdrawHandler)
	mux.HandleFunc("/refresh", s.refreshHandler)
	mux.HandleFunc("/leaderboard", s.leaderboardHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/health", s.healthHandler)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeError maps the error taxonomy onto HTTP statuses with a short
// human-readable reason.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNoWallet):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrCapacityExceeded):
		status = http.StatusConflict
	case errors.Is(err, executor.ErrInsufficientFunds),
		errors.Is(err, executor.ErrInvalidAmount),
		errors.Is(err, executor.ErrInvalidAddress):
		status = http.StatusBadRequest
	case errors.Is(err, jupiter.ErrNoRoute),
		errors.Is(err, jupiter.ErrBuildFailed),
		errors.Is(err, solana.ErrSubmitFailed):
		status = http.StatusBadGateway
	case errors.Is(err, solana.ErrChainUnavailable),
		errors.Is(err, pricefeed.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		s.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return false
	}
	return true
}
