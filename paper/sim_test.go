package paper

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/0xferal/roundbot/types"
)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func zeroCostConfig() SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.GasFeeUSDPerSide = 0
	return cfg
}

// --- EvaluateTrade ---

func TestEvaluateTrade_YesWin(t *testing.T) {
	// entry 0.4, payout 1.0 → gross return (1-0.4)/0.4 = 150%
	r := EvaluateTrade(types.ActionBuyYes, 0.4, "yes", 100, zeroCostConfig())

	assert.Equal(t, ResultWin, r.Outcome)
	assert.Equal(t, "yes", r.MarketOutcome)
	assert.InDelta(t, 150.0, r.GrossReturnPct, 1e-9)
	assert.InDelta(t, 150.0, r.ReturnPct, 1e-9)
	assert.InDelta(t, 150.0, r.PnlUSD, 1e-9)
	assert.InDelta(t, 150.0, r.GrossPnlUSD, 1e-9)
}

func TestEvaluateTrade_YesLoss(t *testing.T) {
	r := EvaluateTrade(types.ActionBuyYes, 0.4, "no", 100, zeroCostConfig())

	assert.Equal(t, ResultLoss, r.Outcome)
	assert.InDelta(t, -100.0, r.GrossReturnPct, 1e-9)
	assert.InDelta(t, -40.0, r.GrossPnlUSD, 1e-9)
}

func TestEvaluateTrade_NoSideWin(t *testing.T) {
	r := EvaluateTrade(types.ActionBuyNo, 0.5, "no", 50, zeroCostConfig())

	assert.Equal(t, ResultWin, r.Outcome)
	assert.InDelta(t, 100.0, r.GrossReturnPct, 1e-9)
	assert.InDelta(t, 50.0, r.PnlUSD, 1e-9)
}

func TestEvaluateTrade_PushReturnsStake(t *testing.T) {
	// Push settles at the entry price, so the position is flat before fees.
	r := EvaluateTrade(types.ActionBuyYes, 0.6, "push", 100, zeroCostConfig())

	assert.Equal(t, ResultFlat, r.Outcome)
	assert.Equal(t, types.OutcomePush, r.MarketOutcome)
	assert.Equal(t, 0.0, r.GrossReturnPct)
	assert.Equal(t, 0.0, r.PnlUSD)
}

func TestEvaluateTrade_PushWithGasIsLoss(t *testing.T) {
	r := EvaluateTrade(types.ActionBuyYes, 0.6, "push", 100, DefaultSimulationConfig())

	assert.Equal(t, ResultLoss, r.Outcome)
	assert.InDelta(t, 0.1, r.GasFeesUSD, 1e-9)
	assert.InDelta(t, -0.1, r.PnlUSD, 1e-9)
}

func TestEvaluateTrade_GasCharged(t *testing.T) {
	r := EvaluateTrade(types.ActionBuyYes, 0.4, "yes", 100, DefaultSimulationConfig())

	assert.InDelta(t, 0.1, r.GasFeesUSD, 1e-9)
	assert.InDelta(t, 150.0, r.GrossReturnPct, 1e-9)
	assert.InDelta(t, 149.9, r.ReturnPct, 1e-9)
	assert.InDelta(t, 149.9, r.PnlUSD, 1e-9)
	assert.Equal(t, 0.0, r.AdverseSelectionBpsApplied)
}

func TestEvaluateTrade_InvalidInputs(t *testing.T) {
	cfg := DefaultSimulationConfig()

	for name, r := range map[string]TradeResult{
		"entry at one":    EvaluateTrade(types.ActionBuyYes, 1.0, "yes", 100, cfg),
		"entry at zero":   EvaluateTrade(types.ActionBuyYes, 0.0, "yes", 100, cfg),
		"below notional":  EvaluateTrade(types.ActionBuyYes, 0.5, "yes", 0.5, cfg),
		"unknown outcome": EvaluateTrade(types.ActionBuyYes, 0.5, "unknown", 100, cfg),
		"bad action":      EvaluateTrade("SELL_YES", 0.5, "yes", 100, cfg),
	} {
		assert.Equal(t, ResultInvalid, r.Outcome, name)
		assert.Equal(t, 0.0, r.PnlUSD, name)
		assert.Equal(t, 0.0, r.ReturnPct, name)
	}
}

func TestEvaluateTrade_OutcomeNormalized(t *testing.T) {
	r := EvaluateTrade(types.ActionBuyNo, 0.5, "  NO ", 100, zeroCostConfig())
	assert.Equal(t, ResultWin, r.Outcome)
	assert.Equal(t, types.OutcomeNo, r.MarketOutcome)
}

// --- EffectiveEntrySlippageBps ---

func TestEffectiveSlippage_StaticClamped(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.EntrySlippageBps = 300
	got := EffectiveEntrySlippageBps(cfg, nil, nil, nil, nil)
	assert.Equal(t, cfg.MaxSlippageBps, got)
}

func TestEffectiveSlippage_DynamicComponents(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.DynamicSlippageEnabled = true

	// 50 base + 1.0×25 edge + 0.8×20 confidence + 1.0×30 expiry = 121
	got := EffectiveEntrySlippageBps(cfg, floatPtr(1.0), floatPtr(0.9), intPtr(0), intPtr(900))
	assert.InDelta(t, 121.0, got, 1e-9)
}

func TestEffectiveSlippage_DynamicClampedAtCap(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.DynamicSlippageEnabled = true
	cfg.SlippageEdgeFactorBps = 500

	// 50 base + 1.0×500 edge + 0.8×20 confidence + 1.0×30 expiry = 596
	got := EffectiveEntrySlippageBps(cfg, floatPtr(1.0), floatPtr(0.9), intPtr(0), intPtr(900))
	assert.Equal(t, cfg.MaxSlippageBps, got)
}

func TestEffectiveSlippage_DynamicMonotonicInConfidence(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.DynamicSlippageEnabled = true

	low := EffectiveEntrySlippageBps(cfg, floatPtr(0.2), floatPtr(0.6), intPtr(450), intPtr(900))
	high := EffectiveEntrySlippageBps(cfg, floatPtr(0.2), floatPtr(0.9), intPtr(450), intPtr(900))
	assert.Greater(t, high, low)
}

func TestEffectiveSlippage_CoinFlipConfidenceAddsNothing(t *testing.T) {
	cfg := DefaultSimulationConfig()
	cfg.DynamicSlippageEnabled = true

	base := EffectiveEntrySlippageBps(cfg, nil, nil, nil, nil)
	coinFlip := EffectiveEntrySlippageBps(cfg, nil, floatPtr(0.5), nil, nil)
	assert.Equal(t, base, coinFlip)
}

// --- ExpectedEdgeBps ---

func TestExpectedEdgeBps_Basic(t *testing.T) {
	// 0.2 edge × 100 bps/unit × 0.8 confidence weight = 16
	assert.InDelta(t, 16.0, ExpectedEdgeBps(floatPtr(0.2), floatPtr(0.9), 100), 1e-9)
}

func TestExpectedEdgeBps_CoinFlipConfidenceIsZero(t *testing.T) {
	assert.Equal(t, 0.0, ExpectedEdgeBps(floatPtr(0.2), floatPtr(0.5), 100))
	assert.Equal(t, 0.0, ExpectedEdgeBps(floatPtr(0.2), floatPtr(0.3), 100))
}

func TestExpectedEdgeBps_NoEdgeIsZero(t *testing.T) {
	assert.Equal(t, 0.0, ExpectedEdgeBps(nil, floatPtr(0.9), 100))
	assert.Equal(t, 0.0, ExpectedEdgeBps(floatPtr(0), floatPtr(0.9), 100))
}

// --- TotalCostBps ---

func TestTotalCostBps_Composition(t *testing.T) {
	cfg := DefaultSimulationConfig()
	// 50 slippage + 30 adverse + 10 gas (0.10 USD on 100 USD)
	assert.InDelta(t, 90.0, TotalCostBps(100, cfg, 50), 1e-9)
}

func TestTotalCostBps_NonPositiveNotional(t *testing.T) {
	cfg := DefaultSimulationConfig()
	assert.True(t, math.IsInf(TotalCostBps(0, cfg, 50), 1))
	assert.True(t, math.IsInf(TotalCostBps(-5, cfg, 50), 1))
}

// --- ApplyEntryExecution ---

func TestApplyEntryExecution_WorsensFill(t *testing.T) {
	// 100 bps on 0.5 → 0.505 either side
	assert.InDelta(t, 0.505, ApplyEntryExecution(types.ActionBuyYes, 0.5, 100), 1e-9)
	assert.InDelta(t, 0.505, ApplyEntryExecution(types.ActionBuyNo, 0.5, 100), 1e-9)
}

func TestApplyEntryExecution_ClampedToProbabilityRange(t *testing.T) {
	assert.Equal(t, 1.0, ApplyEntryExecution(types.ActionBuyYes, 0.999, 500))
}

func TestApplyEntryExecution_NonPositiveReferencePassthrough(t *testing.T) {
	assert.Equal(t, 0.0, ApplyEntryExecution(types.ActionBuyYes, 0, 100))
	assert.Equal(t, -1.0, ApplyEntryExecution(types.ActionBuyNo, -1, 100))
}
