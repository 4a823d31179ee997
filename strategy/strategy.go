package strategy

// ═══════════════════════════════════════════════════════════════════════════════
// STRATEGY INTERFACE - Closed set of scoring policies over the feature state
// ═══════════════════════════════════════════════════════════════════════════════
//
// All strategies implement:
//   Evaluate(FeatureState) *Decision
//
// The router calls Evaluate for each tick; a nil Decision means "no trade".
//
// ═══════════════════════════════════════════════════════════════════════════════

// FeatureState carries the rolling statistics and merged market context a
// strategy sees for one tick. Optional inputs are nil when the producing feed
// has not warmed up or is unavailable.
type FeatureState struct {
	LastPrice float64

	// Rolling price statistics
	ReturnShort *float64 // 8-tick return
	ZScore      *float64 // trailing-30 z-score

	// Market context merged in by the orchestrator
	SecondsToClose     *int
	RoundSeconds       *int
	YesPrice           *float64
	NoPrice            *float64
	OrderbookImbalance *float64
	TradeMomentum      *float64
	FeedDivergenceBps  *float64
}

// SignalScore is one named signal's contribution to the composite
type SignalScore struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Available  bool    `json:"available"`
}

// Decision is a strategy's directional call for the current tick
type Decision struct {
	Strategy   string
	Action     string // BUY_YES | BUY_NO
	Confidence float64
	Reason     string

	// Composite-only fields
	Score   *float64
	Price   *float64 // odds-implied entry price for the chosen side
	SizeUSD *float64
	Signals map[string]SignalScore
}

// Strategy is implemented by every scoring policy
type Strategy interface {
	Name() string
	Evaluate(state FeatureState) *Decision
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
