// Package config loads process configuration from config.env and the
// environment. Required keys fail fast at startup; tunables fall back to
// documented defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default tunable values.
const (
	DefaultStartingCapital         = 1000.0
	DefaultMaxPositionFraction     = 0.3
	DefaultMaxOpenPositions        = 5
	DefaultStopLossFraction        = 0.8
	DefaultTakeProfitMultiple      = 5.0
	DefaultMaxHold                 = 24 * time.Hour
	DefaultValidationCacheCapacity = 1000
	DefaultMinLiquidityUSD         = 50000.0
	DefaultMirrorETHPriceUSD       = 3000.0
	DefaultWalletsFile             = "data/alpha_wallets.json"
	DefaultTradingMode             = TradingModePaper
)

// Trading modes. Paper prices trades against the live market but never
// submits them; live routes real swaps through the aggregator.
const (
	TradingModePaper = "paper"
	TradingModeLive  = "live"
)

// Config holds everything the pipeline needs at startup.
type Config struct {
	// Required credentials and endpoints.
	NodeWSURL          string
	NodeRPCURL         string
	ExchangeAPIKey     string
	ExchangeSecretKey  string
	ExchangePassphrase string
	WalletAddress      string
	EtherscanAPIKey    string

	// Tunables.
	StartingCapital         float64
	MaxPositionFraction     float64
	MaxOpenPositions        int
	StopLossFraction        float64
	TakeProfitMultiple      float64
	MaxHold                 time.Duration
	ValidationCacheCapacity int
	MinLiquidityUSD         float64
	MirrorETHPriceUSD       float64
	WalletsFile             string
	TradingMode             string

	// Leniency policy. Both default to fail-open, matching the historical
	// behavior; flip to false for a fail-closed stance.
	AssumeSafeOnHoneypotError   bool
	AssumeRenouncedWithoutOwner bool

	// Optional infrastructure. Empty values disable the feature.
	PostgresDSN   string
	ClickHouseDSN string
	MetricsAddr   string
	BlacklistFile string
}

// requiredKeys maps env names to Config field setters.
var requiredKeys = []string{
	"NODE_WS_URL",
	"NODE_RPC_URL",
	"OKX_API_KEY",
	"OKX_SECRET_KEY",
	"OKX_PASSPHRASE",
	"WALLET_ADDRESS",
	"ETHERSCAN_API_KEY",
}

// Load reads config.env (when present) and the environment, validates
// required keys and applies defaults. A missing required key is a fatal
// configuration error; the returned error names every absent key at once.
func Load(path string) (*Config, error) {
	if path != "" {
		// A missing file is fine; the environment may carry everything.
		_ = godotenv.Load(path)
	}

	var missing []string
	for _, key := range requiredKeys {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	cfg := &Config{
		NodeWSURL:          os.Getenv("NODE_WS_URL"),
		NodeRPCURL:         os.Getenv("NODE_RPC_URL"),
		ExchangeAPIKey:     os.Getenv("OKX_API_KEY"),
		ExchangeSecretKey:  os.Getenv("OKX_SECRET_KEY"),
		ExchangePassphrase: os.Getenv("OKX_PASSPHRASE"),
		WalletAddress:      os.Getenv("WALLET_ADDRESS"),
		EtherscanAPIKey:    os.Getenv("ETHERSCAN_API_KEY"),

		StartingCapital:         envFloat("STARTING_CAPITAL", DefaultStartingCapital),
		MaxPositionFraction:     envFloat("MAX_POSITION_FRACTION", DefaultMaxPositionFraction),
		MaxOpenPositions:        envInt("MAX_OPEN_POSITIONS", DefaultMaxOpenPositions),
		StopLossFraction:        envFloat("STOP_LOSS_FRACTION", DefaultStopLossFraction),
		TakeProfitMultiple:      envFloat("TAKE_PROFIT_MULTIPLE", DefaultTakeProfitMultiple),
		MaxHold:                 time.Duration(envInt("MAX_HOLD_SECONDS", int(DefaultMaxHold/time.Second))) * time.Second,
		ValidationCacheCapacity: envInt("VALIDATION_CACHE_CAPACITY", DefaultValidationCacheCapacity),
		MinLiquidityUSD:         envFloat("MIN_LIQUIDITY_USD", DefaultMinLiquidityUSD),
		MirrorETHPriceUSD:       envFloat("MIRROR_ETH_PRICE_USD", DefaultMirrorETHPriceUSD),
		WalletsFile:             envString("WALLETS_FILE", DefaultWalletsFile),
		TradingMode:             envString("TRADING_MODE", DefaultTradingMode),

		AssumeSafeOnHoneypotError:   envBool("ASSUME_SAFE_ON_HONEYPOT_ERROR", true),
		AssumeRenouncedWithoutOwner: envBool("ASSUME_RENOUNCED_WITHOUT_OWNER", true),

		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		ClickHouseDSN: os.Getenv("CLICKHOUSE_DSN"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		BlacklistFile: os.Getenv("BLACKLIST_FILE"),
	}

	if cfg.MaxPositionFraction <= 0 || cfg.MaxPositionFraction > 1 {
		return nil, fmt.Errorf("MAX_POSITION_FRACTION must be in (0, 1], got %v", cfg.MaxPositionFraction)
	}
	if cfg.MaxOpenPositions <= 0 {
		return nil, fmt.Errorf("MAX_OPEN_POSITIONS must be positive, got %d", cfg.MaxOpenPositions)
	}
	if cfg.TradingMode != TradingModePaper && cfg.TradingMode != TradingModeLive {
		return nil, fmt.Errorf("TRADING_MODE must be %q or %q, got %q", TradingModePaper, TradingModeLive, cfg.TradingMode)
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
