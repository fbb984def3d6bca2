package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Chain     Chain     `mapstructure:"chain"`
	Jupiter   Jupiter   `mapstructure:"jupiter"`
	PriceFeed PriceFeed `mapstructure:"pricefeed"`
	Trend     Trend     `mapstructure:"trend"`
	Custody   Custody   `mapstructure:"custody"`
	Ledger    Ledger    `mapstructure:"ledger"`
	Notify    Notify    `mapstructure:"notify"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Chain holds the configuration for the Solana JSON-RPC endpoint.
type Chain struct {
	RPCURL         string  `mapstructure:"rpc_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Jupiter holds the configuration for the swap aggregator API.
type Jupiter struct {
	QuoteURL    string `mapstructure:"quote_url"`
	SwapURL     string `mapstructure:"swap_url"`
	SlippageBps int    `mapstructure:"slippage_bps"`
}

// PriceFeed holds the configuration for the external price feed.
type PriceFeed struct {
	URL string `mapstructure:"url"`
}

// Trend holds the configuration for the trending-token alert feed.
type Trend struct {
	URL         string `mapstructure:"url"`
	Interval    int    `mapstructure:"interval"`     // seconds between polls
	ThrottleSec int    `mapstructure:"throttle_sec"` // per-mint alert cooldown
	MinScore    int    `mapstructure:"min_score"`    // minimum score to alert
}

// Custody holds the configuration for private-key sealing.
type Custody struct {
	Passphrase string `mapstructure:"passphrase"`
}

// Ledger holds the configuration for the balance ledger and deposit poller.
type Ledger struct {
	MaxAccounts    int     `mapstructure:"max_accounts"`
	MinDepositSOL  float64 `mapstructure:"min_deposit_sol"`
	PollInterval   int     `mapstructure:"poll_interval"` // seconds
	StablecoinMint string  `mapstructure:"stablecoin_mint"`
}

// Notify holds the configuration for user notifications. An empty webhook URL
// means notifications are only logged.
type Notify struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// Server holds the configuration for the HTTP command surface.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("chain.rate_limit", 10) // requests per second
	viper.SetDefault("chain.rate_limit_burst", 5)
	viper.SetDefault("jupiter.quote_url", "https://quote-api.jup.ag/v6/quote")
	viper.SetDefault("jupiter.swap_url", "https://quote-api.jup.ag/v6/swap")
	viper.SetDefault("jupiter.slippage_bps", 100)
	viper.SetDefault("pricefeed.url", "https://api.coingecko.com/api/v3/simple/price")
	viper.SetDefault("trend.url", "https://api.dexscreener.com/latest/dex")
	viper.SetDefault("trend.interval", 45)
	viper.SetDefault("trend.throttle_sec", 100)
	viper.SetDefault("trend.min_score", 30)
	viper.SetDefault("ledger.max_accounts", 30)
	viper.SetDefault("ledger.min_deposit_sol", 0.005)
	viper.SetDefault("ledger.poll_interval", 12)
	viper.SetDefault("ledger.stablecoin_mint", "Es9vMFrzaCERmJf8G3s6uKp7c3y3uM5nCzq3f6nWbqG")
	viper.SetDefault("database.dsn", "wallet-bot.db")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
