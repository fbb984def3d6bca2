package trend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"solana-wallet-bot/internal/config"
	"solana-wallet-bot/internal/notify"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Poller watches the aggregator's trending feed and broadcasts alerts for
// Solana tokens that pass a basic liquidity screen. It is a read-only
// consumer of market data and never touches the ledger. Alert throttling
// state (per-mint last-seen) is owned by the poller and lives for the
// process runtime.
type Poller struct {
	client   *resty.Client
	cfg      *config.Trend
	notifier notify.Notifier
	logger   *zap.Logger

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// NewPoller creates a trending-feed poller.
func NewPoller(cfg *config.Trend, notifier notify.Notifier, logger *zap.Logger) *Poller {
	return &Poller{
		client:    resty.New(),
		cfg:       cfg,
		notifier:  notifier,
		logger:    logger,
		lastAlert: make(map[string]time.Time),
	}
}

// Run starts the polling loop and blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	interval := time.Duration(p.cfg.Interval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("Starting trending poller", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping trending poller...")
			return
		case <-ticker.C:
			if err := p.poll(); err != nil {
				p.logger.Warn("Trending poll failed", zap.Error(err))
			}
		}
	}
}

// Token is one trending feed entry.
type Token struct {
	Mint         string
	Symbol       string
	LiquidityUSD float64
	VolumeH24    float64
}

type pairEntry struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
}

type pairsResponse struct {
	Pairs []pairEntry `json:"pairs"`
}

func (p *Poller) poll() error {
	tokens, err := p.fetchTrending()
	if err != nil {
		return err
	}

	for _, t := range tokens {
		if t.Mint == "" || !p.shouldAlert(t.Mint) {
			continue
		}
		score, risks := p.rugScore(t.Mint)
		if score < p.cfg.MinScore {
			p.logger.Debug("Trending token below score threshold",
				zap.String("mint", t.Mint), zap.Int("score", score), zap.Strings("risks", risks))
			continue
		}
		msg := fmt.Sprintf("TRENDING: %s (%s)\nLiq: $%.0f Vol24h: $%.0f\nScore: %d/100",
			t.Symbol, t.Mint, t.LiquidityUSD, t.VolumeH24, score)
		if err := p.notifier.Broadcast(msg); err != nil {
			continue // throttle mark skipped, retried next poll
		}
		p.markAlerted(t.Mint)
	}
	return nil
}

// fetchTrending returns up to 30 trending Solana tokens.
func (p *Poller) fetchTrending() ([]Token, error) {
	var pr pairsResponse
	resp, err := p.client.R().SetResult(&pr).Get(p.cfg.URL + "/trending")
	if err != nil {
		return nil, fmt.Errorf("trending request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("trending request failed with status %s", resp.Status())
	}

	out := make([]Token, 0, len(pr.Pairs))
	for _, pair := range pr.Pairs {
		if pair.ChainID != "solana" {
			continue
		}
		out = append(out, Token{
			Mint:         pair.BaseToken.Address,
			Symbol:       pair.BaseToken.Symbol,
			LiquidityUSD: pair.Liquidity.USD,
			VolumeH24:    pair.Volume.H24,
		})
		if len(out) == 30 {
			break
		}
	}
	return out, nil
}

// rugScore runs a coarse liquidity screen for a mint. 0 is worst, 100 best;
// unknown tokens score the neutral 50.
func (p *Poller) rugScore(mint string) (int, []string) {
	var pr pairsResponse
	resp, err := p.client.R().SetResult(&pr).Get(p.cfg.URL + "/tokens/" + mint)
	if err != nil || resp.IsError() {
		return 50, []string{"unknown"}
	}

	maxLiq := 0.0
	for _, pair := range pr.Pairs {
		if pair.Liquidity.USD > maxLiq {
			maxLiq = pair.Liquidity.USD
		}
	}

	score := 50
	var risks []string
	if maxLiq < 1000 {
		score -= 30
		risks = append(risks, "LOW_LIQ")
	}
	return score, risks
}

func (p *Poller) shouldAlert(mint string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastAlert[mint]
	return !ok || time.Since(last) >= time.Duration(p.cfg.ThrottleSec)*time.Second
}

func (p *Poller) markAlerted(mint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAlert[mint] = time.Now()
}
