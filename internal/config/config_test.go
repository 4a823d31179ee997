package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.DryRun)
	assert.Equal(t, "BTCUSDT", cfg.FeedSymbol)
	assert.Equal(t, "binance", cfg.FeedStream)
	assert.Equal(t, "15m", cfg.CandleWindow)
	assert.Equal(t, 900, cfg.RoundSeconds)
	assert.Equal(t, 180, cfg.ActivationLeadSeconds)
	assert.Equal(t, StrategyModeClassic, cfg.StrategyMode)
	assert.Equal(t, 2, cfg.MaxTradesPerRound)
	assert.True(t, cfg.PaperNotionalUSD.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 8080, cfg.APIPort)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FEED_SYMBOL", "ethusdt")
	t.Setenv("STRATEGY_MODE", "COMPOSITE")
	t.Setenv("ROUND_SECONDS", "300")
	t.Setenv("ACTIVATION_LEAD_SECONDS", "60")
	t.Setenv("MIN_CONFIDENCE_TO_TRADE", "0.5")
	t.Setenv("PAPER_NOTIONAL_USD", "250.50")
	t.Setenv("TELEGRAM_CHAT_ID", "-1001234567890")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.FeedSymbol)
	assert.Equal(t, StrategyModeComposite, cfg.StrategyMode)
	assert.Equal(t, 300, cfg.RoundSeconds)
	assert.Equal(t, 0.5, cfg.MinConfidenceToTrade)
	assert.True(t, cfg.PaperNotionalUSD.Equal(decimal.RequireFromString("250.50")))
	assert.Equal(t, int64(-1001234567890), cfg.TelegramChatID)
}

func TestLoad_TestModeShrinksRound(t *testing.T) {
	t.Setenv("AGENT_TEST_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 120, cfg.RoundSeconds)
	assert.Equal(t, 100, cfg.ActivationLeadSeconds)
}

func TestLoad_CustomStreamRequiresURL(t *testing.T) {
	t.Setenv("FEED_STREAM", "custom")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("FEED_WS_URL", "wss://feed.example.com/trades")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.FeedStream)
}

func TestLoad_RejectsUnknownStrategyMode(t *testing.T) {
	t.Setenv("STRATEGY_MODE", "martingale")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidChatID(t *testing.T) {
	t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FLAG", "yes")
	assert.True(t, getEnvBool("FLAG", false))

	t.Setenv("FLAG", "0")
	assert.False(t, getEnvBool("FLAG", true))

	t.Setenv("FLAG", "")
	assert.True(t, getEnvBool("FLAG", true))
}
