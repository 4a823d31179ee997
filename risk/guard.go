package risk

import (
	"fmt"
	"sync"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK GUARD - Admission control shared across concurrent callers
// ═══════════════════════════════════════════════════════════════════════════════

// Limits configures the guard
type Limits struct {
	MaxTradesPerRound    int
	TradeCooldownSeconds float64
}

// CheckResult is the outcome of one admission evaluation; never persisted
type CheckResult struct {
	Allowed bool
	Reason  string
}

// Guard enforces the per-round trade cap and inter-trade cooldown.
// Evaluate and RecordExecution can race with a second round starting, so all
// state sits behind one mutex.
type Guard struct {
	mu sync.Mutex

	limits          Limits
	tradesByRound   map[int64]int
	lastExecutionTs *float64
}

// NewGuard creates a risk guard
func NewGuard(limits Limits) *Guard {
	return &Guard{
		limits:        limits,
		tradesByRound: make(map[int64]int),
	}
}

// Evaluate checks whether a trade may be admitted right now.
func (g *Guard) Evaluate(roundID int64, nowTs float64) CheckResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.lastExecutionTs != nil {
		elapsed := nowTs - *g.lastExecutionTs
		if elapsed < g.limits.TradeCooldownSeconds {
			remaining := g.limits.TradeCooldownSeconds - elapsed
			return CheckResult{Allowed: false, Reason: fmt.Sprintf("trade_cooldown:%.2fs", remaining)}
		}
	}

	if g.tradesByRound[roundID] >= g.limits.MaxTradesPerRound {
		return CheckResult{Allowed: false, Reason: "max_trades_per_round"}
	}

	return CheckResult{Allowed: true, Reason: "ok"}
}

// RecordExecution must be called only after every other gate has passed and
// the trade is actually opened; anything else skews the counters.
func (g *Guard) RecordExecution(roundID int64, nowTs float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tradesByRound[roundID]++
	g.lastExecutionTs = &nowTs
}
