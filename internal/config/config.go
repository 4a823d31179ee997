package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Strategy modes
const (
	StrategyModeClassic   = "classic"
	StrategyModeComposite = "composite"
)

// Config holds all configuration for the agent
type Config struct {
	// Mode
	DryRun bool
	Debug  bool

	// Market / feed
	MarketSymbol string
	FeedSymbol   string // e.g. BTCUSDT
	FeedStream   string // binance | custom
	FeedWSURL    string // required when FeedStream == "custom"
	CandleWindow string // e.g. 15m
	PingInterval int    // websocket ping interval seconds
	CrossFeedURL string // REST ticker endpoint used for divergence checks
	KlinesURL    string // REST klines endpoint used to seed the round-open price

	// Chainlink secondary reference price (on-chain aggregator)
	ChainlinkRPCURL      string
	ChainlinkFeedAddress string

	// Round schedule
	RoundSeconds          int
	ActivationLeadSeconds int

	// Strategy
	StrategyMode         string // classic | composite
	ShadowModeEnabled    bool
	LiveTradingEnabled   bool
	MinConfidenceToTrade float64
	MinScoreToTrade      float64
	MaxEntryPrice        float64
	KellyFraction        float64
	MaxTradeSizeUSD      float64
	MinTradeSizeUSD      float64

	// Risk
	MaxTradesPerRound    int
	TradeCooldownSeconds int

	// Odds tracker
	OddsWSEnabled          bool
	OddsWSURL              string
	OddsRefreshSeconds     int
	OddsMoveThresholdPct   float64
	OddsMoveMinAbsDelta    float64
	OddsMoveLogCooldownSec float64

	// Paper trading
	PaperNotionalUSD             decimal.Decimal
	PaperEntrySlippageBps        float64
	PaperDynamicSlippageEnabled  bool
	PaperSlippageEdgeFactorBps   float64
	PaperSlippageConfFactorBps   float64
	PaperSlippageExpiryFactorBps float64
	PaperMaxSlippageBps          float64
	PaperGasFeeUSDPerSide        float64
	PaperAdverseSelectionBps     float64
	PaperMinNotionalUSD          float64
	PaperMinNetEdgeBps           float64
	PaperEdgeStrengthToBps       float64

	// Logging / persistence
	PaperLogEnabled bool
	PaperLogPath    string
	DatabasePath    string // sqlite path or postgres:// URL; empty disables

	// Admin API
	APIPort int

	// Telegram (optional notifier)
	TelegramToken  string
	TelegramChatID int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		MarketSymbol: getEnv("MARKET_SYMBOL", "BTC"),
		FeedSymbol:   strings.ToUpper(getEnv("FEED_SYMBOL", "BTCUSDT")),
		FeedStream:   strings.ToLower(getEnv("FEED_STREAM", "binance")),
		FeedWSURL:    os.Getenv("FEED_WS_URL"),
		CandleWindow: strings.ToLower(getEnv("CANDLE_WINDOW", "15m")),
		PingInterval: getEnvInt("WS_PING_INTERVAL_SECONDS", 15),
		CrossFeedURL: getEnv("CROSS_FEED_URL", "https://api.binance.com/api/v3/ticker/price"),
		KlinesURL:    getEnv("KLINES_URL", "https://api.binance.com/api/v3/klines"),

		ChainlinkRPCURL:      getEnv("CHAINLINK_RPC_URL", "https://polygon-rpc.com"),
		ChainlinkFeedAddress: getEnv("CHAINLINK_FEED_ADDRESS", "0xc907E116054Ad103354f2D350FD2514433D57F6f"),

		RoundSeconds:          getEnvInt("ROUND_SECONDS", 900),
		ActivationLeadSeconds: getEnvInt("ACTIVATION_LEAD_SECONDS", 180),

		StrategyMode:         strings.ToLower(getEnv("STRATEGY_MODE", StrategyModeClassic)),
		ShadowModeEnabled:    getEnvBool("SHADOW_MODE_ENABLED", true),
		LiveTradingEnabled:   getEnvBool("LIVE_TRADING_ENABLED", false),
		MinConfidenceToTrade: getEnvFloat("MIN_CONFIDENCE_TO_TRADE", 0.35),
		MinScoreToTrade:      getEnvFloat("MIN_SCORE_TO_TRADE", 0.2),
		MaxEntryPrice:        getEnvFloat("MAX_ENTRY_PRICE", 0.85),
		KellyFraction:        getEnvFloat("KELLY_FRACTION", 0.3),
		MaxTradeSizeUSD:      getEnvFloat("MAX_TRADE_SIZE_USD", 100),
		MinTradeSizeUSD:      getEnvFloat("MIN_TRADE_SIZE_USD", 1),

		MaxTradesPerRound:    getEnvInt("MAX_TRADES_PER_ROUND", 2),
		TradeCooldownSeconds: getEnvInt("TRADE_COOLDOWN_SECONDS", 8),

		OddsWSEnabled:          getEnvBool("ODDS_WS_ENABLED", true),
		OddsWSURL:              getEnv("ODDS_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		OddsRefreshSeconds:     getEnvInt("ODDS_REFRESH_SECONDS", 12),
		OddsMoveThresholdPct:   getEnvFloat("ODDS_MOVE_THRESHOLD_PCT", 3.0),
		OddsMoveMinAbsDelta:    getEnvFloat("ODDS_MOVE_MIN_ABS_DELTA", 0.03),
		OddsMoveLogCooldownSec: getEnvFloat("ODDS_MOVE_LOG_COOLDOWN_SECONDS", 5.0),

		PaperNotionalUSD:             getEnvDecimal("PAPER_NOTIONAL_USD", decimal.NewFromInt(100)),
		PaperEntrySlippageBps:        getEnvFloat("PAPER_ENTRY_SLIPPAGE_BPS", 50),
		PaperDynamicSlippageEnabled:  getEnvBool("PAPER_DYNAMIC_SLIPPAGE_ENABLED", false),
		PaperSlippageEdgeFactorBps:   getEnvFloat("PAPER_SLIPPAGE_EDGE_FACTOR_BPS", 25),
		PaperSlippageConfFactorBps:   getEnvFloat("PAPER_SLIPPAGE_CONFIDENCE_FACTOR_BPS", 20),
		PaperSlippageExpiryFactorBps: getEnvFloat("PAPER_SLIPPAGE_EXPIRY_FACTOR_BPS", 30),
		PaperMaxSlippageBps:          getEnvFloat("PAPER_MAX_SLIPPAGE_BPS", 200),
		PaperGasFeeUSDPerSide:        getEnvFloat("PAPER_GAS_FEE_USD_PER_SIDE", 0.05),
		PaperAdverseSelectionBps:     getEnvFloat("PAPER_ADVERSE_SELECTION_BPS", 30),
		PaperMinNotionalUSD:          getEnvFloat("PAPER_MIN_NOTIONAL_USD", 1),
		PaperMinNetEdgeBps:           getEnvFloat("PAPER_MIN_NET_EDGE_BPS", 0),
		PaperEdgeStrengthToBps:       getEnvFloat("PAPER_EDGE_STRENGTH_TO_BPS", 100),

		PaperLogEnabled: getEnvBool("PAPER_LOG_ENABLED", true),
		PaperLogPath:    getEnv("PAPER_LOG_PATH", "logs/paper_trades.jsonl"),
		DatabasePath:    os.Getenv("DATABASE_PATH"),

		APIPort: getEnvInt("API_PORT", 8080),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	// Test mode shrinks the round so a full lifecycle fits in a short soak
	if getEnvBool("AGENT_TEST_MODE", false) {
		cfg.RoundSeconds = getEnvInt("TEST_MODE_ROUND_SECONDS", 120)
		cfg.ActivationLeadSeconds = getEnvInt("TEST_MODE_ACTIVATION_LEAD_SECONDS", 100)
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.FeedStream == "custom" && c.FeedWSURL == "" {
		return fmt.Errorf("FEED_WS_URL is required when FEED_STREAM is 'custom'")
	}
	if c.StrategyMode != StrategyModeClassic && c.StrategyMode != StrategyModeComposite {
		return fmt.Errorf("unknown STRATEGY_MODE: %s", c.StrategyMode)
	}
	if c.RoundSeconds <= 0 {
		return fmt.Errorf("ROUND_SECONDS must be > 0")
	}
	if c.ActivationLeadSeconds <= 0 || c.ActivationLeadSeconds > c.RoundSeconds {
		return fmt.Errorf("ACTIVATION_LEAD_SECONDS must be in (0, ROUND_SECONDS]")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		v := strings.ToLower(strings.TrimSpace(value))
		return v == "true" || v == "1" || v == "yes" || v == "on"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
