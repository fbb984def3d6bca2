package pricefeed

import (
	"errors"
	"fmt"

	"solana-wallet-bot/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when no usable price can be fetched. Callers
// degrade (skip conversion this cycle), they never treat it as a zero price.
var ErrUnavailable = errors.New("price feed unavailable")

// FeedInterface defines the price feed contract used by the reconciler and
// the command surface.
type FeedInterface interface {
	GetNativePriceUSD() (decimal.Decimal, error)
}

// Feed fetches the native coin's USD price from CoinGecko.
type Feed struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// ensure Feed implements the interface
var _ FeedInterface = (*Feed)(nil)

// NewFeed creates a new price feed client.
func NewFeed(cfg *config.PriceFeed, logger *zap.Logger) *Feed {
	return &Feed{
		client: resty.New(),
		url:    cfg.URL,
		logger: logger,
	}
}

// GetNativePriceUSD returns the current SOL/USD price.
func (f *Feed) GetNativePriceUSD() (decimal.Decimal, error) {
	var result map[string]map[string]decimal.Decimal
	resp, err := f.client.R().
		SetQueryParams(map[string]string{
			"ids":           "solana",
			"vs_currencies": "usd",
		}).
		SetResult(&result).
		Get(f.url)
	if err != nil {
		f.logger.Warn("Price feed request failed", zap.Error(err))
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("%w: status %s", ErrUnavailable, resp.Status())
	}

	price, ok := result["solana"]["usd"]
	if !ok || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: no usable price in response", ErrUnavailable)
	}
	return price, nil
}
