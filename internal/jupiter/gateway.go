package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"solana-wallet-bot/internal/config"
	"solana-wallet-bot/internal/solana"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrNoRoute is returned when the aggregator has no route for the pair.
	ErrNoRoute = errors.New("no swap route")
	// ErrBuildFailed is returned when the aggregator cannot build a
	// transaction for an obtained quote.
	ErrBuildFailed = errors.New("swap build failed")
)

// Quote is an aggregator route for a single swap. Routes expire and liquidity
// shifts, so a Quote must be used for exactly one BuildSwap call and never
// cached or reused.
type Quote struct {
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64

	// raw is the aggregator's full quote response, passed back verbatim
	// when building the swap transaction.
	raw json.RawMessage
}

// OutAmountDecimal returns the quoted output quantity scaled by the output
// token's decimals.
func (q *Quote) OutAmountDecimal(tokenDecimals int32) decimal.Decimal {
	return decimal.New(int64(q.OutAmount), 0).Shift(-tokenDecimals)
}

// GatewayInterface defines the swap aggregator contract used by the executor.
type GatewayInterface interface {
	GetQuote(inputMint, outputMint string, amountLamports uint64) (*Quote, error)
	BuildSwap(quote *Quote, ownerAddress string) ([]byte, error)
	Submit(signed []byte) (string, error)
}

// Gateway obtains quotes and unsigned swap transactions from the Jupiter v6
// API and submits signed transactions through the chain RPC client. It holds
// no state between calls.
type Gateway struct {
	client      *resty.Client
	rpc         solana.RPCInterface
	cfg         *config.Jupiter
	logger      *zap.Logger
	limiter     *rate.Limiter
	slippageBps string
}

// ensure Gateway implements the interface
var _ GatewayInterface = (*Gateway)(nil)

// NewGateway creates a new swap gateway. Submission goes through rpc.
func NewGateway(cfg *config.Jupiter, rpc solana.RPCInterface, logger *zap.Logger) *Gateway {
	return &Gateway{
		client:      resty.New(),
		rpc:         rpc,
		cfg:         cfg,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Limit(5), 2),
		slippageBps: strconv.Itoa(cfg.SlippageBps),
	}
}

type quoteResponse struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
}

// GetQuote asks the aggregator for a route swapping amountLamports of
// inputMint into outputMint. ErrNoRoute is returned when no route exists.
func (g *Gateway) GetQuote(inputMint, outputMint string, amountLamports uint64) (*Quote, error) {
	if err := g.limiter.Wait(context.Background()); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	resp, err := g.client.R().
		SetQueryParams(map[string]string{
			"inputMint":   inputMint,
			"outputMint":  outputMint,
			"amount":      strconv.FormatUint(amountLamports, 10),
			"slippageBps": g.slippageBps,
		}).
		Get(g.cfg.QuoteURL)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusNotFound {
		g.logger.Info("No route for pair",
			zap.String("input", inputMint), zap.String("output", outputMint))
		return nil, ErrNoRoute
	}
	if resp.IsError() {
		return nil, fmt.Errorf("quote request failed with status %s: %s", resp.Status(), resp.String())
	}

	var qr quoteResponse
	if err := json.Unmarshal(resp.Body(), &qr); err != nil {
		return nil, fmt.Errorf("malformed quote response: %w", err)
	}
	if qr.OutAmount == "" || qr.OutAmount == "0" {
		return nil, ErrNoRoute
	}
	inAmount, err := strconv.ParseUint(qr.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed quote inAmount %q: %w", qr.InAmount, err)
	}
	outAmount, err := strconv.ParseUint(qr.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed quote outAmount %q: %w", qr.OutAmount, err)
	}

	raw := make(json.RawMessage, len(resp.Body()))
	copy(raw, resp.Body())

	return &Quote{
		InputMint:  qr.InputMint,
		OutputMint: qr.OutputMint,
		InAmount:   inAmount,
		OutAmount:  outAmount,
		raw:        raw,
	}, nil
}

type swapRequest struct {
	QuoteResponse    json.RawMessage `json:"quoteResponse"`
	UserPublicKey    string          `json:"userPublicKey"`
	WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// BuildSwap asks the aggregator to build an unsigned transaction executing
// the quoted route for ownerAddress.
func (g *Gateway) BuildSwap(quote *Quote, ownerAddress string) ([]byte, error) {
	if err := g.limiter.Wait(context.Background()); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var sr swapResponse
	resp, err := g.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(swapRequest{
			QuoteResponse:    quote.raw,
			UserPublicKey:    ownerAddress,
			WrapAndUnwrapSol: true,
		}).
		SetResult(&sr).
		Post(g.cfg.SwapURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	if resp.IsError() {
		g.logger.Warn("Swap build rejected",
			zap.String("status", resp.Status()), zap.String("body", resp.String()))
		return nil, fmt.Errorf("%w: status %s", ErrBuildFailed, resp.Status())
	}
	if sr.SwapTransaction == "" {
		return nil, fmt.Errorf("%w: empty transaction", ErrBuildFailed)
	}

	txBytes, err := base64.StdEncoding.DecodeString(sr.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed transaction encoding", ErrBuildFailed)
	}
	return txBytes, nil
}

// Submit broadcasts a signed transaction through the chain RPC. The returned
// id only proves broadcast acceptance, not on-chain finality.
func (g *Gateway) Submit(signed []byte) (string, error) {
	return g.rpc.SendTransaction(signed)
}
