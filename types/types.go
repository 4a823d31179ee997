package types

import "time"

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Trade actions
const (
	ActionBuyYes = "BUY_YES"
	ActionBuyNo  = "BUY_NO"
)

// Market outcomes at round resolution
const (
	OutcomeYes     = "yes"
	OutcomeNo      = "no"
	OutcomePush    = "push"
	OutcomeUnknown = "unknown"
)

// Tick is a single trade print from the price feed
type Tick struct {
	Ts     float64 // epoch seconds
	Symbol string
	Price  float64
	Size   float64
}

// RoundWindow describes one fixed-length up/down round.
// Derived purely from wall-clock time, never persisted.
type RoundWindow struct {
	RoundID      int64
	StartTs      float64
	CloseTs      float64
	ActivationTs float64
}

// SecondsToClose returns the bounded time remaining before round close.
func (w RoundWindow) SecondsToClose(now float64) int {
	remaining := w.CloseTs - now
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

// Candle is an OHLCV bucket built from ticks
type Candle struct {
	Symbol  string
	Window  string
	StartTs float64
	EndTs   float64
	Open    float64
	High    float64
	Low     float64
	Close   float64
	Volume  float64
}

// OddsSnapshot is the latest market yes/no pricing from the odds tracker
type OddsSnapshot struct {
	Slug         string
	TokenIDs     []string
	YesPrice     *float64
	NoPrice      *float64
	LastUpdateTs *float64
}

// EdgeStrength returns |yes - no| when both sides are quoted.
func (s OddsSnapshot) EdgeStrength() *float64 {
	if s.YesPrice == nil || s.NoPrice == nil {
		return nil
	}
	edge := *s.YesPrice - *s.NoPrice
	if edge < 0 {
		edge = -edge
	}
	return &edge
}

// IsoUTC formats an epoch-seconds timestamp for log records.
func IsoUTC(ts float64) string {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format(time.RFC3339Nano)
}

// Float64Ptr is a convenience for optional record fields.
func Float64Ptr(v float64) *float64 { return &v }
