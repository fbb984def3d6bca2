package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"solana-wallet-bot/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrChainUnavailable is returned when a chain read fails on transport or
	// parse level. Callers treat it as "no observable change", never as a
	// zero balance.
	ErrChainUnavailable = errors.New("chain unavailable")
	// ErrSubmitFailed is returned when a signed transaction is rejected for
	// broadcast. Acceptance only means the node took the transaction, not
	// that it landed on-chain.
	ErrSubmitFailed = errors.New("transaction submit failed")
)

// RPCInterface defines the chain access contract used by the reconciler and
// the swap executor.
type RPCInterface interface {
	GetNativeBalance(address string) (decimal.Decimal, error)
	GetTokenBalance(address, mint string) (decimal.Decimal, error)
	GetLatestBlockhash() (string, error)
	SendTransaction(signed []byte) (string, error)
}

// RPCClient is a client for the Solana JSON-RPC API.
// It implements the RPCInterface.
type RPCClient struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure RPCClient implements the interface
var _ RPCInterface = (*RPCClient)(nil)

// NewRPCClient creates a new Solana JSON-RPC client.
func NewRPCClient(cfg *config.Chain, logger *zap.Logger) *RPCClient {
	client := resty.New().SetBaseURL(cfg.RPCURL)

	// Initialize the rate limiter
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RPCClient{
		client:  client,
		logger:  logger,
		limiter: limiter,
	}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call executes one JSON-RPC method with rate limiting and retry logic.
func (c *RPCClient) call(method string, params []any, result any) error {
	body := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}

	var rpcResp rpcResponse
	req := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&rpcResp)

	if err := c.doRequest(context.Background(), method, req); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc %s failed: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("rpc %s returned malformed result: %w", method, err)
	}
	return nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RPCClient) doRequest(ctx context.Context, method string, req *resty.Request) error {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing RPC request", zap.String("method", method))
		resp, err = req.Execute("POST", "")

		if err == nil && !resp.IsError() {
			return nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return fmt.Errorf("rpc request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("RPC request failed, retrying...",
			zap.String("method", method),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("rpc request failed after %d attempts: %w", maxRetries, err)
}

// GetNativeBalance fetches the native-coin balance of an address in SOL.
// A zero balance is a valid result; failures always surface as
// ErrChainUnavailable.
func (c *RPCClient) GetNativeBalance(address string) (decimal.Decimal, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call("getBalance", []any{address}, &result); err != nil {
		c.logger.Warn("Failed to get native balance", zap.String("address", address), zap.Error(err))
		return decimal.Zero, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	return decimal.New(int64(result.Value), 0).Shift(-9), nil
}

type tokenAccount struct {
	Account struct {
		Data struct {
			Parsed struct {
				Info struct {
					TokenAmount struct {
						Amount         string  `json:"amount"`
						Decimals       int32   `json:"decimals"`
						UIAmountString string  `json:"uiAmountString"`
						UIAmount       float64 `json:"uiAmount"`
					} `json:"tokenAmount"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

// GetTokenBalance sums the balances of all token accounts owned by address
// for the given mint.
func (c *RPCClient) GetTokenBalance(address, mint string) (decimal.Decimal, error) {
	var result struct {
		Value []tokenAccount `json:"value"`
	}
	params := []any{
		address,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed"},
	}
	if err := c.call("getTokenAccountsByOwner", params, &result); err != nil {
		c.logger.Warn("Failed to get token balance",
			zap.String("address", address), zap.String("mint", mint), zap.Error(err))
		return decimal.Zero, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}

	total := decimal.Zero
	for _, acc := range result.Value {
		amt := acc.Account.Data.Parsed.Info.TokenAmount
		if amt.UIAmountString != "" {
			d, err := decimal.NewFromString(amt.UIAmountString)
			if err != nil {
				return decimal.Zero, fmt.Errorf("%w: malformed token amount %q", ErrChainUnavailable, amt.UIAmountString)
			}
			total = total.Add(d)
			continue
		}
		raw, err := decimal.NewFromString(amt.Amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: malformed token amount %q", ErrChainUnavailable, amt.Amount)
		}
		total = total.Add(raw.Shift(-amt.Decimals))
	}
	return total, nil
}

// GetLatestBlockhash fetches a recent blockhash for transaction building.
func (c *RPCClient) GetLatestBlockhash() (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call("getLatestBlockhash", []any{}, &result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}
	if result.Value.Blockhash == "" {
		return "", fmt.Errorf("%w: empty blockhash", ErrChainUnavailable)
	}
	return result.Value.Blockhash, nil
}

// SendTransaction broadcasts a signed transaction and returns its id. Success
// means the node accepted the transaction for broadcast, nothing more.
func (c *RPCClient) SendTransaction(signed []byte) (string, error) {
	var txid string
	params := []any{
		base64.StdEncoding.EncodeToString(signed),
		map[string]string{"encoding": "base64"},
	}
	if err := c.call("sendTransaction", params, &txid); err != nil {
		c.logger.Error("Failed to send transaction", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	c.logger.Info("Transaction accepted for broadcast", zap.String("txid", txid))
	return txid, nil
}
