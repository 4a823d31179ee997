package paper

import (
	"math"
	"strings"

	"github.com/0xferal/roundbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PAPER TRADING SIMULATION - Execution modeling and deterministic settlement
// ═══════════════════════════════════════════════════════════════════════════════
//
// Everything in this package is pure: settlement must be replayable from the
// trade record alone.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Trade outcomes after settlement
const (
	ResultWin     = "win"
	ResultLoss    = "loss"
	ResultFlat    = "flat"
	ResultInvalid = "invalid"
)

// SimulationConfig holds the fixed economic parameters of the simulator
type SimulationConfig struct {
	EntrySlippageBps        float64
	DynamicSlippageEnabled  bool
	SlippageEdgeFactorBps   float64
	SlippageConfFactorBps   float64
	SlippageExpiryFactorBps float64
	MaxSlippageBps          float64
	GasFeeUSDPerSide        float64
	AdverseSelectionBps     float64
	MinNotionalUSD          float64
}

// DefaultSimulationConfig returns the production cost model
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		EntrySlippageBps:        50,
		SlippageEdgeFactorBps:   25,
		SlippageConfFactorBps:   20,
		SlippageExpiryFactorBps: 30,
		MaxSlippageBps:          200,
		GasFeeUSDPerSide:        0.05,
		AdverseSelectionBps:     30,
		MinNotionalUSD:          1,
	}
}

// TradeResult is the immutable settlement outcome of one paper trade
type TradeResult struct {
	Outcome                    string
	MarketOutcome              string
	ReturnPct                  float64
	GrossReturnPct             float64
	TotalCostPct               float64
	GasFeesUSD                 float64
	AdverseSelectionBpsApplied float64
	GrossPnlUSD                float64
	PnlUSD                     float64
}

// EffectiveEntrySlippageBps computes the slippage applied to an entry fill.
// With dynamic slippage enabled the static base grows with edge strength,
// confidence above coin-flip and closeness to expiry; the result never
// exceeds MaxSlippageBps.
func EffectiveEntrySlippageBps(cfg SimulationConfig, edgeStrength, confidence *float64, secondsToClose, roundSeconds *int) float64 {
	effective := cfg.EntrySlippageBps

	if !cfg.DynamicSlippageEnabled {
		return clampBps(effective, cfg.MaxSlippageBps)
	}

	edge := 0.0
	if edgeStrength != nil && *edgeStrength > 0 {
		edge = *edgeStrength
	}
	effective += edge * cfg.SlippageEdgeFactorBps

	conf := 0.0
	if confidence != nil {
		conf = *confidence
	}
	confTerm := (conf - 0.5) * 2.0
	if confTerm < 0 {
		confTerm = 0
	}
	effective += confTerm * cfg.SlippageConfFactorBps

	if secondsToClose != nil && roundSeconds != nil && *roundSeconds > 0 {
		bounded := *secondsToClose
		if bounded < 0 {
			bounded = 0
		}
		if bounded > *roundSeconds {
			bounded = *roundSeconds
		}
		closeness := 1.0 - (float64(bounded) / float64(*roundSeconds))
		effective += closeness * cfg.SlippageExpiryFactorBps
	}

	return clampBps(effective, cfg.MaxSlippageBps)
}

// ExpectedEdgeBps estimates the gross edge available to a candidate, in basis
// points of notional. Confidence at or below coin-flip contributes nothing.
func ExpectedEdgeBps(edgeStrength, confidence *float64, edgeStrengthToBps float64) float64 {
	edge := 0.0
	if edgeStrength != nil && *edgeStrength > 0 {
		edge = *edgeStrength
	}
	if edge <= 0 {
		return 0
	}

	conf := 0.0
	if confidence != nil {
		conf = *confidence
	}
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}
	confidenceWeight := (conf - 0.5) * 2.0
	if confidenceWeight < 0 {
		confidenceWeight = 0
	}

	if edgeStrengthToBps < 0 {
		edgeStrengthToBps = 0
	}
	return edge * edgeStrengthToBps * confidenceWeight
}

// TotalCostBps estimates the all-in transaction cost of one trade in basis
// points of notional.
func TotalCostBps(notionalUSD float64, cfg SimulationConfig, effectiveEntrySlippageBps float64) float64 {
	if notionalUSD <= 0 {
		return math.Inf(1)
	}

	gasFeesUSD := cfg.GasFeeUSDPerSide * 2.0
	gasCostBps := (gasFeesUSD / notionalUSD) * 10_000.0

	slippage := effectiveEntrySlippageBps
	if slippage < 0 {
		slippage = 0
	}
	adverse := cfg.AdverseSelectionBps
	if adverse < 0 {
		adverse = 0
	}
	if gasCostBps < 0 {
		gasCostBps = 0
	}
	return slippage + adverse + gasCostBps
}

// ApplyEntryExecution worsens the fill price in the unfavorable direction for
// the given side, clamped to the valid probability-price range.
func ApplyEntryExecution(action string, referencePrice, slippageBps float64) float64 {
	if referencePrice <= 0 {
		return referencePrice
	}

	slippageRatio := slippageBps / 10_000.0

	switch action {
	case types.ActionBuyYes:
		return math.Min(1.0, referencePrice*(1.0+slippageRatio))
	case types.ActionBuyNo:
		return math.Max(0.0, referencePrice*(1.0+slippageRatio))
	}
	return referencePrice
}

// EvaluateTrade settles one paper trade against the realized market outcome.
// Malformed economics (entry price outside (0,1), notional below the floor,
// unrecognized outcome or action) yield an invalid result with zero P&L.
func EvaluateTrade(action string, entryPrice float64, marketOutcome string, notionalUSD float64, cfg SimulationConfig) TradeResult {
	invalid := func(outcome string) TradeResult {
		return TradeResult{Outcome: ResultInvalid, MarketOutcome: outcome}
	}

	if entryPrice <= 0 || entryPrice >= 1 {
		return invalid(marketOutcome)
	}
	if notionalUSD < cfg.MinNotionalUSD {
		return invalid(marketOutcome)
	}

	normalized := strings.ToLower(strings.TrimSpace(marketOutcome))
	if normalized != types.OutcomeYes && normalized != types.OutcomeNo && normalized != types.OutcomePush {
		return invalid(marketOutcome)
	}

	var payoutPerShare float64
	switch {
	case normalized == types.OutcomePush:
		payoutPerShare = entryPrice
	case action == types.ActionBuyYes:
		if normalized == types.OutcomeYes {
			payoutPerShare = 1.0
		}
	case action == types.ActionBuyNo:
		if normalized == types.OutcomeNo {
			payoutPerShare = 1.0
		}
	default:
		return invalid(marketOutcome)
	}

	grossReturn := (payoutPerShare - entryPrice) / entryPrice

	gasFeesUSD := cfg.GasFeeUSDPerSide * 2.0
	gasCostPct := gasFeesUSD / math.Max(notionalUSD, 1e-9)

	// Adverse selection is modeled in the admission gate, not charged again at
	// settlement; the field is preserved for the log contract.
	adverseSelectionPct := 0.0

	totalCostPct := gasCostPct + adverseSelectionPct
	netReturn := grossReturn - totalCostPct

	outcome := ResultFlat
	if netReturn > 0 {
		outcome = ResultWin
	} else if netReturn < 0 {
		outcome = ResultLoss
	}

	return TradeResult{
		Outcome:                    outcome,
		MarketOutcome:              normalized,
		ReturnPct:                  netReturn * 100,
		GrossReturnPct:             grossReturn * 100,
		TotalCostPct:               totalCostPct * 100,
		GasFeesUSD:                 gasFeesUSD,
		AdverseSelectionBpsApplied: 0,
		GrossPnlUSD:                grossReturn * notionalUSD,
		PnlUSD:                     netReturn * notionalUSD,
	}
}

func clampBps(v, maxBps float64) float64 {
	if v < 0 {
		return 0
	}
	if v > maxBps {
		return maxBps
	}
	return v
}
