package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestGuard() *Guard {
	return NewGuard(Limits{MaxTradesPerRound: 2, TradeCooldownSeconds: 8})
}

func TestGuard_FirstTradeAllowed(t *testing.T) {
	g := newTestGuard()
	res := g.Evaluate(1, 1000)
	assert.True(t, res.Allowed)
	assert.Equal(t, "ok", res.Reason)
}

func TestGuard_CooldownBlocksWithRemaining(t *testing.T) {
	g := newTestGuard()
	g.RecordExecution(1, 1000)

	res := g.Evaluate(1, 1004)
	assert.False(t, res.Allowed)
	assert.Equal(t, "trade_cooldown:4.00s", res.Reason)
}

func TestGuard_CooldownExpires(t *testing.T) {
	g := newTestGuard()
	g.RecordExecution(1, 1000)

	res := g.Evaluate(1, 1008)
	assert.True(t, res.Allowed)
}

func TestGuard_MaxTradesPerRound(t *testing.T) {
	g := newTestGuard()
	g.RecordExecution(1, 1000)
	g.RecordExecution(1, 1010)

	res := g.Evaluate(1, 1100)
	assert.False(t, res.Allowed)
	assert.Equal(t, "max_trades_per_round", res.Reason)
}

func TestGuard_NewRoundResetsCap(t *testing.T) {
	g := newTestGuard()
	g.RecordExecution(1, 1000)
	g.RecordExecution(1, 1010)

	res := g.Evaluate(2, 1100)
	assert.True(t, res.Allowed)
}

func TestGuard_CooldownSpansRounds(t *testing.T) {
	g := newTestGuard()
	g.RecordExecution(1, 1000)

	res := g.Evaluate(2, 1003)
	assert.False(t, res.Allowed)
	assert.Equal(t, "trade_cooldown:5.00s", res.Reason)
}
