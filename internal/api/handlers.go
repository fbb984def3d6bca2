package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type walletRequest struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// walletHandler creates a custodial wallet for the user, subject to the
// account cap; repeat calls return the existing wallet.
func (s *Server) walletHandler(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if !s.decode(w, r, &req) {
		return
	}

	address, sealed, err := s.custody.Generate()
	if err != nil {
		s.writeError(w, err)
		return
	}
	acc, created, err := s.ledger.CreateAccountIfRoom(req.UserID, req.Username, address, sealed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if created {
		s.logger.Info("Wallet created", zap.Int64("user_id", req.UserID), zap.String("address", acc.Pubkey))
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"address": acc.Pubkey,
		"created": created,
	})
}

func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	acc, err := s.ledger.GetAccount(userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := map[string]any{
		"address":      acc.Pubkey,
		"balance_sol":  acc.BalanceSOL,
		"month_profit": acc.MonthProfit,
	}
	// USD display degrades silently when the feed is down.
	if price, err := s.prices.GetNativePriceUSD(); err == nil {
		resp["balance_usd"] = acc.BalanceSOL.Mul(price).Round(2)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) tradesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	trades, err := s.ledger.TradesForUser(userID, 20)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

type swapRequest struct {
	UserID int64           `json:"user_id"`
	Mint   string          `json:"mint"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) buyHandler(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if !s.decode(w, r, &req) {
		return
	}
	txid, err := s.exec.Buy(req.UserID, req.Mint, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"txid": txid})
}

func (s *Server) sellHandler(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if !s.decode(w, r, &req) {
		return
	}
	txid, err := s.exec.Sell(req.UserID, req.Mint, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"txid": txid})
}

type withdrawRequest struct {
	UserID      int64           `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

func (s *Server) withdrawHandler(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	txid, err := s.exec.Withdraw(req.UserID, req.Amount, req.Destination)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"txid": txid})
}

type refreshRequest struct {
	UserID int64 `json:"user_id"`
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}
	balance, err := s.exec.Refresh(req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"balance_sol": balance})
}

func (s *Server) leaderboardHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.Leaderboard(10)
	if err != nil {
		s.writeError(w, err)
		return
	}
	type entry struct {
		Rank        int             `json:"rank"`
		Username    string          `json:"username"`
		MonthProfit decimal.Decimal `json:"month_profit"`
	}
	entries := make([]entry, 0, len(accounts))
	for i, acc := range accounts {
		entries = append(entries, entry{Rank: i + 1, Username: acc.Username, MonthProfit: acc.MonthProfit})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"uuid":       s.uuid,
		"start_time": s.startTime.Format(time.RFC3339),
		"uptime":     time.Since(s.startTime).String(),
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid user_id"})
		return 0, false
	}
	return userID, true
}
