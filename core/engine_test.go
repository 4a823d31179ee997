package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xferal/roundbot/exec"
	"github.com/0xferal/roundbot/feeds"
	"github.com/0xferal/roundbot/paper"
	"github.com/0xferal/roundbot/risk"
	"github.com/0xferal/roundbot/state"
	"github.com/0xferal/roundbot/strategy"
	"github.com/0xferal/roundbot/types"
)

type captureSink struct {
	entries []map[string]any
}

func (s *captureSink) Append(entry map[string]any) {
	s.entries = append(s.entries, entry)
}

func (s *captureSink) byType(entryType string) []map[string]any {
	var matched []map[string]any
	for _, entry := range s.entries {
		if entry["type"] == entryType {
			matched = append(matched, entry)
		}
	}
	return matched
}

type stubRoundOpen struct {
	price *float64
}

func (s *stubRoundOpen) FetchRoundOpenPrice(symbol string, roundStartTs float64, roundSeconds int) *float64 {
	return s.price
}

type stubSecondary struct {
	price *float64
}

func (s *stubSecondary) PriceAtTime(ctx context.Context, targetTs float64) *float64 {
	return s.price
}

func newTestEngine(sink *captureSink) *Engine {
	cfg := Config{
		MarketSymbol:           "btcusdt-updown",
		FeedSymbol:             "BTCUSDT",
		RoundSeconds:           900,
		StrategyMode:           "composite",
		CompositeMinConfidence: 0.35,
		PaperNotionalUSD:       100,
		EdgeStrengthToBps:      100,
		Simulation:             paper.DefaultSimulationConfig(),
	}
	cfg.Simulation.GasFeeUSDPerSide = 0

	return NewEngine(
		cfg,
		NewScheduler(900, 180),
		strategy.NewRouter("composite", true, true, strategy.DefaultUpdownConfig()),
		risk.NewGuard(risk.Limits{MaxTradesPerRound: 1, TradeCooldownSeconds: 300}),
		exec.NewActionExecutor(true),
		state.New(),
		feeds.NewCandleBuilder("BTCUSDT", "15m", 900),
		nil, nil, sink, nil, nil,
	)
}

func openTestTrade(id string, roundID int64, action string, entryPrice float64) map[string]any {
	return map[string]any{
		"type":         "paper_trade_opened",
		"id":           id,
		"round_id":     roundID,
		"action":       action,
		"entry_price":  entryPrice,
		"entry_ts":     100.0,
		"notional_usd": 100.0,
	}
}

// --- settlement ---

func TestSettleRound_WinningTrade(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(sink)
	e.openTrades = append(e.openTrades, openTestTrade("t1", 1, types.ActionBuyYes, 0.55))

	open := 100.0
	e.settleRound(1, 105.0, 1800.0, &open)

	closed := sink.byType("paper_trade_closed")
	require.Len(t, closed, 1)
	c := closed[0]

	assert.Equal(t, "win", c["outcome"])
	assert.Equal(t, types.OutcomeYes, c["market_outcome"])
	assert.Equal(t, 1.0, c["exit_price"])
	assert.Equal(t, 100.0, c["round_open_ref_price"])
	assert.Equal(t, 105.0, c["round_close_ref_price"])
	assert.InDelta(t, 81.8182, c["pnl_usd"].(float64), 1e-4)
	assert.Empty(t, e.openTrades)
}

func TestSettleRound_LosingTrade(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(sink)
	e.openTrades = append(e.openTrades, openTestTrade("t1", 1, types.ActionBuyYes, 0.55))

	open := 100.0
	e.settleRound(1, 95.0, 1800.0, &open)

	closed := sink.byType("paper_trade_closed")
	require.Len(t, closed, 1)
	c := closed[0]

	assert.Equal(t, "loss", c["outcome"])
	assert.Equal(t, types.OutcomeNo, c["market_outcome"])
	assert.Equal(t, 0.0, c["exit_price"])
	assert.InDelta(t, -100.0, c["pnl_usd"].(float64), 1e-4)
}

func TestSettleRound_PushSettlesAtEntry(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(sink)
	e.openTrades = append(e.openTrades, openTestTrade("t1", 1, types.ActionBuyNo, 0.6))

	open := 100.0
	e.settleRound(1, 100.0, 1800.0, &open)

	closed := sink.byType("paper_trade_closed")
	require.Len(t, closed, 1)
	c := closed[0]

	assert.Equal(t, "flat", c["outcome"])
	assert.Equal(t, types.OutcomePush, c["market_outcome"])
	assert.Equal(t, 0.6, c["exit_price"])
	assert.Equal(t, 0.0, c["pnl_usd"])
}

func TestSettleRound_MissingReferenceIsInvalid(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(sink)
	e.openTrades = append(e.openTrades, openTestTrade("t1", 1, types.ActionBuyYes, 0.55))

	e.settleRound(1, 105.0, 1800.0, nil)

	closed := sink.byType("paper_trade_closed")
	require.Len(t, closed, 1)
	c := closed[0]

	assert.Equal(t, "invalid", c["outcome"])
	assert.Equal(t, types.OutcomeUnknown, c["market_outcome"])
	assert.Equal(t, 0.55, c["exit_price"])
	assert.Equal(t, 0.0, c["pnl_usd"])
	assert.Nil(t, c["round_open_ref_price"])
	assert.Equal(t, 1, c["day_invalid"])
}

func TestSettleRound_SecondPassIsNoOp(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(sink)
	e.openTrades = append(e.openTrades, openTestTrade("t1", 1, types.ActionBuyYes, 0.55))

	open := 100.0
	e.settleRound(1, 105.0, 1800.0, &open)
	e.settleRound(1, 105.0, 1800.0, &open)

	assert.Len(t, sink.byType("paper_trade_closed"), 1)
}

func TestSettleRound_LeavesOtherRoundsOpen(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(sink)
	e.openTrades = append(e.openTrades,
		openTestTrade("t1", 1, types.ActionBuyYes, 0.55),
		openTestTrade("t2", 2, types.ActionBuyNo, 0.45),
	)

	open := 100.0
	e.settleRound(1, 105.0, 1800.0, &open)

	require.Len(t, e.openTrades, 1)
	assert.Equal(t, "t2", e.openTrades[0]["id"])
}

func TestSettleRound_DayAggregatesAccumulate(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(sink)
	e.openTrades = append(e.openTrades,
		openTestTrade("t1", 1, types.ActionBuyYes, 0.5),
		openTestTrade("t2", 1, types.ActionBuyNo, 0.5),
	)

	open := 100.0
	e.settleRound(1, 105.0, 1800.0, &open)

	closed := sink.byType("paper_trade_closed")
	require.Len(t, closed, 2)
	last := closed[1]

	assert.Equal(t, "1970-01-01", last["day_utc"])
	assert.Equal(t, 2, last["day_closed_trades"])
	assert.Equal(t, 1, last["day_wins"])
	assert.Equal(t, 1, last["day_losses"])
	// +100 on the winner, -100 on the loser
	assert.Equal(t, 0.0, last["day_realized_pnl_usd"])
}

func TestSettleRound_PriceToBeatFallback(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(sink)
	e.openTrades = append(e.openTrades, openTestTrade("t1", 1, types.ActionBuyYes, 0.55))

	open := 100.0
	e.settleRound(1, 102.0, 1800.0, &open)

	closed := sink.byType("paper_trade_closed")
	require.Len(t, closed, 1)
	c := closed[0]

	assert.Equal(t, 100.0, c["price_to_beat"])
	assert.Equal(t, "round_open_fallback", c["price_to_beat_source"])
	assert.Equal(t, 2.0, c["ref_move_abs_vs_price_to_beat"])
	assert.Equal(t, 2.0, c["ref_move_pct_vs_price_to_beat"])
}

// --- helpers ---

func TestOutcomeFromPrices(t *testing.T) {
	assert.Equal(t, types.OutcomeYes, outcomeFromPrices(100, 101))
	assert.Equal(t, types.OutcomeNo, outcomeFromPrices(100, 99))
	assert.Equal(t, types.OutcomePush, outcomeFromPrices(100, 100))
}

func TestExpectedOutcome(t *testing.T) {
	beat := 100.0
	assert.Equal(t, types.OutcomeYes, expectedOutcome(101, &beat))
	assert.Equal(t, types.OutcomeNo, expectedOutcome(99, &beat))
	assert.Equal(t, types.OutcomePush, expectedOutcome(100, &beat))
	assert.Equal(t, types.OutcomeUnknown, expectedOutcome(100, nil))
}

// --- price move tracking ---

func TestTrackLargeMove_AnchorAndReset(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(sink)

	e.trackLargeMove(1, types.Tick{Ts: 1000, Price: 100.0}, 1000)
	assert.Empty(t, sink.byType("price_move_3pct"))

	e.trackLargeMove(1, types.Tick{Ts: 1001, Price: 102.0}, 1001)
	assert.Empty(t, sink.byType("price_move_3pct"))

	e.trackLargeMove(1, types.Tick{Ts: 1002, Price: 103.5}, 1002)
	moves := sink.byType("price_move_3pct")
	require.Len(t, moves, 1)
	assert.Equal(t, 100.0, moves[0]["from_price"])
	assert.Equal(t, 103.5, moves[0]["to_price"])
	assert.InDelta(t, 3.5, moves[0]["pct_change"].(float64), 1e-9)

	// anchor reset to 103.5; a further small move stays quiet
	e.trackLargeMove(1, types.Tick{Ts: 1003, Price: 106.0}, 1003)
	assert.Len(t, sink.byType("price_move_3pct"), 1)
}

// --- round open reference resolution ---

func TestResolveRoundOpenPrice_ProviderChain(t *testing.T) {
	e := newTestEngine(&captureSink{})
	window := types.RoundWindow{RoundID: 1, StartTs: 900, CloseTs: 1800}

	price, source := e.resolveRoundOpenPrice(context.Background(), window)
	assert.Nil(t, price)
	assert.Equal(t, "", source)

	secondaryPrice := 101.5
	e.secondary = &stubSecondary{price: &secondaryPrice}
	price, source = e.resolveRoundOpenPrice(context.Background(), window)
	require.NotNil(t, price)
	assert.Equal(t, 101.5, *price)
	assert.Equal(t, "chainlink_aggregator", source)

	klinePrice := 100.25
	e.klines = &stubRoundOpen{price: &klinePrice}
	price, source = e.resolveRoundOpenPrice(context.Background(), window)
	require.NotNil(t, price)
	assert.Equal(t, 100.25, *price)
	assert.Equal(t, "klines", source)
}

// --- round close handling ---

func TestProcessTick_ClosesAndSettlesRound(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(sink)
	e.now = func() float64 { return 1801.0 } // past the close boundary

	openPrice := 100.0
	round := &roundState{
		window:          types.RoundWindow{RoundID: 1, StartTs: 900, CloseTs: 1800, ActivationTs: 1620},
		openPrice:       &openPrice,
		openPriceSource: "klines",
	}
	e.openTrades = append(e.openTrades, openTestTrade("t1", 1, types.ActionBuyYes, 0.55))

	closed := e.processTick(context.Background(), round, types.Tick{Ts: 1801, Price: 104.0})

	assert.True(t, closed)
	require.NotNil(t, e.lastRoundExecuted)
	assert.Equal(t, int64(1), *e.lastRoundExecuted)
	assert.Len(t, sink.byType("paper_trade_closed"), 1)
	assert.Empty(t, e.openTrades)
}

func TestProcessTick_SeedsOpenPriceFromFirstTick(t *testing.T) {
	e := newTestEngine(&captureSink{})
	e.now = func() float64 { return 1700.0 }

	round := &roundState{
		window: types.RoundWindow{RoundID: 1, StartTs: 900, CloseTs: 1800, ActivationTs: 1620},
	}
	e.processTick(context.Background(), round, types.Tick{Ts: 1700, Price: 100.5})

	require.NotNil(t, round.openPrice)
	assert.Equal(t, 100.5, *round.openPrice)
	assert.Equal(t, "live_tick_fallback", round.openPriceSource)
}

func TestProcessTick_DropsTicksFromBeforeRoundStart(t *testing.T) {
	e := newTestEngine(&captureSink{})
	e.now = func() float64 { return 2520.0 }

	round := &roundState{
		window: types.RoundWindow{RoundID: 2, StartTs: 1800, CloseTs: 2700, ActivationTs: 2520},
	}

	// Backlog tick produced 700s before the round opened
	closed := e.processTick(context.Background(), round, types.Tick{Ts: 1100, Price: 50000.0})

	assert.False(t, closed)
	assert.Nil(t, round.openPrice)
	assert.Empty(t, round.openPriceSource)

	// The first in-round tick still seeds the reference
	e.processTick(context.Background(), round, types.Tick{Ts: 2521, Price: 50200.0})

	require.NotNil(t, round.openPrice)
	assert.Equal(t, 50200.0, *round.openPrice)
	assert.Equal(t, "live_tick_fallback", round.openPriceSource)
}
