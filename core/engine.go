package core

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/0xferal/roundbot/exec"
	"github.com/0xferal/roundbot/feeds"
	"github.com/0xferal/roundbot/paper"
	"github.com/0xferal/roundbot/risk"
	"github.com/0xferal/roundbot/state"
	"github.com/0xferal/roundbot/strategy"
	"github.com/0xferal/roundbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ROUND ENGINE - Drives the full lifecycle of every trading round
// ═══════════════════════════════════════════════════════════════════════════════
//
// Waiting → Active → Closed → Waiting. One round is executed at most once;
// inside a round every tick runs the decision pipeline in a fixed order:
//
//   feature build → strategy → odds gate → opportunity log → kill switch →
//   risk guard → execute → net-edge gate → entry-price guard → open trade
//
// Settlement happens on the first tick at or past round close.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	maxOddsHistory        = 240
	oddsMomentumLookback  = 60.0 // seconds
	largeMoveThresholdPct = 3.0
	roundReentryPause     = 200 * time.Millisecond
)

// RoundOpenProvider resolves the authoritative round-open reference price
type RoundOpenProvider interface {
	FetchRoundOpenPrice(symbol string, roundStartTs float64, roundSeconds int) *float64
}

// SecondaryPriceProvider is an optional fallback reference-price source
type SecondaryPriceProvider interface {
	PriceAtTime(ctx context.Context, targetTs float64) *float64
}

// RecordSink receives every paper ledger record
type RecordSink interface {
	Append(entry map[string]any)
}

// Config holds the engine's slice of the runtime configuration
type Config struct {
	MarketSymbol string
	FeedSymbol   string
	RoundSeconds int

	StrategyMode           string
	CompositeMinConfidence float64 // odds-filter floor in composite mode

	PaperNotionalUSD   float64
	PaperMinNetEdgeBps float64
	EdgeStrengthToBps  float64
	Simulation         paper.SimulationConfig
}

type oddsSample struct {
	ts  float64
	yes float64
	no  float64
}

type dayTotals struct {
	closedTrades   int
	wins           int
	losses         int
	invalid        int
	realizedPnlUSD float64
}

// roundState is the per-round mutable context threaded through tick handling
type roundState struct {
	window          types.RoundWindow
	openPrice       *float64
	openPriceSource string
}

// Engine owns the round loop and the open paper-trade ledger
type Engine struct {
	cfg       Config
	scheduler *Scheduler
	router    *strategy.Router
	guard     *risk.Guard
	executor  exec.Executor
	state     *state.AgentState
	candles   *feeds.CandleBuilder

	klines    RoundOpenProvider
	secondary SecondaryPriceProvider // optional
	sink      RecordSink             // optional
	store     TradeStore             // optional

	// Called after settlement at every round close
	onRoundClose func(marketSlug string, window types.RoundWindow)

	now func() float64

	lastRoundExecuted *int64
	openTrades        []map[string]any
	dailyTotals       map[string]*dayTotals
	oddsHistory       []oddsSample
	priceChangeAnchor *float64

	lastOpportunity       *MaterialEvent
	lastOddsFilterBlocked *MaterialEvent
	lastNetEdgeBlocked    *MaterialEvent
	lastRiskBlocked       *DiscreteEvent
}

// NewEngine wires the engine. secondary, sink and store may be nil;
// onRoundClose may be nil when no review pipeline is attached.
func NewEngine(
	cfg Config,
	scheduler *Scheduler,
	router *strategy.Router,
	guard *risk.Guard,
	executor exec.Executor,
	st *state.AgentState,
	candles *feeds.CandleBuilder,
	klines RoundOpenProvider,
	secondary SecondaryPriceProvider,
	sink RecordSink,
	store TradeStore,
	onRoundClose func(marketSlug string, window types.RoundWindow),
) *Engine {
	return &Engine{
		cfg:          cfg,
		scheduler:    scheduler,
		router:       router,
		guard:        guard,
		executor:     executor,
		state:        st,
		candles:      candles,
		klines:       klines,
		secondary:    secondary,
		sink:         sink,
		store:        store,
		onRoundClose: onRoundClose,
		now:          func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
		dailyTotals:  make(map[string]*dayTotals),
	}
}

// Run processes rounds until the context is cancelled
func (e *Engine) Run(ctx context.Context, ticks <-chan types.Tick) error {
	e.state.AddEvent("info", "agent_started", map[string]any{
		"symbol":      e.cfg.MarketSymbol,
		"feed_symbol": e.cfg.FeedSymbol,
	})

	for {
		window, err := e.scheduler.WaitUntilActivation(ctx)
		if err != nil {
			return err
		}

		if e.lastRoundExecuted != nil && *e.lastRoundExecuted == window.RoundID {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(roundReentryPause):
			}
			continue
		}

		round := &roundState{window: window}
		round.openPrice, round.openPriceSource = e.resolveRoundOpenPrice(ctx, window)

		e.state.SetRound(window.RoundID, window.CloseTs)
		e.state.AddEvent("info", "round_activated", map[string]any{"round_id": window.RoundID})
		log.Info().
			Int64("round_id", window.RoundID).
			Int64("close_ts", int64(window.CloseTs)).
			Str("open_price_source", round.openPriceSource).
			Msg("🕐 Round activated")

		if err := e.runRound(ctx, round, ticks); err != nil {
			return err
		}
	}
}

// resolveRoundOpenPrice walks the provider chain: authoritative candle
// history first, on-chain aggregator second. A nil result defers to the
// first live tick of the round.
func (e *Engine) resolveRoundOpenPrice(ctx context.Context, window types.RoundWindow) (*float64, string) {
	if e.klines != nil {
		if price := e.klines.FetchRoundOpenPrice(e.cfg.FeedSymbol, window.StartTs, e.cfg.RoundSeconds); price != nil {
			return price, "klines"
		}
	}
	if e.secondary != nil {
		if price := e.secondary.PriceAtTime(ctx, window.StartTs); price != nil {
			return price, "chainlink_aggregator"
		}
	}
	return nil, ""
}

func (e *Engine) runRound(ctx context.Context, round *roundState, ticks <-chan types.Tick) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick := <-ticks:
			if closed := e.processTick(ctx, round, tick); closed {
				return nil
			}
		}
	}
}

// processTick runs the full per-tick pipeline; returns true once the round
// has closed and settled.
func (e *Engine) processTick(ctx context.Context, round *roundState, tick types.Tick) bool {
	nowTs := e.now()
	window := round.window

	// Ticks buffered before the round opened never drive decisions or
	// seed the price to beat.
	if tick.Ts < window.StartTs {
		return false
	}

	e.state.SetTick(tick.Price, tick.Ts)

	if round.openPrice == nil {
		price := tick.Price
		round.openPrice = &price
		if round.openPriceSource == "" {
			round.openPriceSource = "live_tick_fallback"
		}
	}

	e.trackLargeMove(window.RoundID, tick, nowTs)
	e.trackCandle(tick)

	if nowTs >= window.CloseTs {
		log.Info().Int64("round_id", window.RoundID).Msg("🏁 Round closed; waiting for next window")
		e.settleRound(window.RoundID, tick.Price, tick.Ts, round.openPrice)
		e.state.AddEvent("info", "round_closed", map[string]any{"round_id": window.RoundID})

		if e.onRoundClose != nil {
			slug := e.state.OddsSnapshot().Slug
			if slug == "" {
				slug = e.cfg.MarketSymbol
			}
			e.onRoundClose(slug, window)
		}

		roundID := window.RoundID
		e.lastRoundExecuted = &roundID
		return true
	}

	odds := e.state.OddsSnapshot()
	marketCtx := e.buildMarketContext(window, odds, tick, nowTs)

	decision := e.router.OnTick(tick, marketCtx)
	if decision == nil {
		return false
	}

	record := e.decisionRecord(decision)
	confidence := decision.Confidence
	rawConfidence := confidence

	if odds.YesPrice != nil && odds.NoPrice != nil {
		confidence = e.applyOddsAlignment(decision, record, odds, rawConfidence)

		oddsFilterMin := 0.55
		if e.cfg.StrategyMode == "composite" {
			oddsFilterMin = e.cfg.CompositeMinConfidence
		}
		if confidence < oddsFilterMin {
			e.logOddsFilterBlocked(decision.Action, window.RoundID, confidence, odds, tick.Price)
			return false
		}
	}

	edgeStrength := odds.EdgeStrength()
	e.logOpportunity(decision, record, window.RoundID, tick.Price, edgeStrength, nowTs)

	record["round_id"] = window.RoundID
	record["market_symbol"] = e.cfg.MarketSymbol
	record["seconds_to_close"] = window.SecondsToClose(nowTs)

	if e.state.IsKillSwitchEnabled() {
		e.logRiskBlocked(decision.Action, window.RoundID, "kill_switch_enabled")
		return false
	}

	riskCheck := e.guard.Evaluate(window.RoundID, nowTs)
	if !riskCheck.Allowed {
		e.logRiskBlocked(decision.Action, window.RoundID, riskCheck.Reason)
		return false
	}

	decisionEntry := map[string]any{"action": decision.Action}
	for k, v := range record {
		decisionEntry[k] = v
	}
	e.state.SetDecision(decisionEntry)
	e.state.AddEvent("info", "decision", decisionEntry)

	if err := e.executor.Execute(ctx, decision.Action, record); err != nil {
		log.Error().Err(err).Str("action", decision.Action).Msg("Executor failed")
	}
	e.guard.RecordExecution(window.RoundID, nowTs)

	confPtr := &confidence
	secondsToClose := window.SecondsToClose(nowTs)
	slippageBps := paper.EffectiveEntrySlippageBps(
		e.cfg.Simulation, edgeStrength, confPtr, &secondsToClose, &e.cfg.RoundSeconds)
	expectedEdgeBps := paper.ExpectedEdgeBps(edgeStrength, confPtr, e.cfg.EdgeStrengthToBps)
	totalCostBps := paper.TotalCostBps(e.cfg.PaperNotionalUSD, e.cfg.Simulation, slippageBps)
	netEdgeBps := expectedEdgeBps - totalCostBps

	if e.cfg.PaperMinNetEdgeBps > 0 && netEdgeBps < e.cfg.PaperMinNetEdgeBps {
		e.logNetEdgeBlocked(decision.Action, window.RoundID, tick.Price,
			edgeStrength, confidence, expectedEdgeBps, totalCostBps, netEdgeBps, slippageBps)
		return false
	}

	var entryReference *float64
	if decision.Action == types.ActionBuyYes {
		entryReference = odds.YesPrice
	} else {
		entryReference = odds.NoPrice
	}
	if entryReference == nil {
		e.logRiskBlocked(decision.Action, window.RoundID, "missing_market_entry_price")
		return false
	}

	executedEntry := paper.ApplyEntryExecution(decision.Action, *entryReference, slippageBps)

	trade := e.buildOpenTradeRecord(openTradeInputs{
		window:          window,
		tick:            tick,
		nowTs:           nowTs,
		decision:        decision,
		record:          record,
		confidence:      confidence,
		odds:            odds,
		edgeStrength:    edgeStrength,
		entryReference:  *entryReference,
		executedEntry:   executedEntry,
		slippageBps:     slippageBps,
		expectedEdgeBps: expectedEdgeBps,
		totalCostBps:    totalCostBps,
		netEdgeBps:      netEdgeBps,
		riskReason:      riskCheck.Reason,
		openPrice:       round.openPrice,
		openPriceSource: round.openPriceSource,
	})

	e.openTrades = append(e.openTrades, trade)
	e.logPaperEntry(trade)
	e.state.AddEvent("info", "paper_trade_opened", trade)
	e.persistOpenTrade(trade)
	log.Info().
		Str("action", decision.Action).
		Float64("entry_price", executedEntry).
		Int64("round_id", window.RoundID).
		Msg("📝 Paper trade opened")

	return false
}

// trackLargeMove emits a record when the price moved ≥3% from the anchor;
// the anchor then resets to the new price.
func (e *Engine) trackLargeMove(roundID int64, tick types.Tick, nowTs float64) {
	if e.priceChangeAnchor == nil {
		price := tick.Price
		e.priceChangeAnchor = &price
		return
	}
	anchor := *e.priceChangeAnchor
	if anchor <= 0 {
		return
	}

	pctChange := ((tick.Price - anchor) / anchor) * 100.0
	if math.Abs(pctChange) < largeMoveThresholdPct {
		return
	}

	entry := map[string]any{
		"type":       "price_move_3pct",
		"ts":         nowTs,
		"round_id":   roundID,
		"from_price": anchor,
		"to_price":   tick.Price,
		"pct_change": roundTo(pctChange, 4),
	}
	e.logPaperEntry(entry)
	e.state.AddEvent("warning", "price_move_3pct", entry)

	price := tick.Price
	e.priceChangeAnchor = &price
}

func (e *Engine) trackCandle(tick types.Tick) {
	closed := e.candles.AddTick(tick)
	if closed == nil {
		return
	}
	log.Info().
		Str("window", closed.Window).
		Float64("open", closed.Open).
		Float64("high", closed.High).
		Float64("low", closed.Low).
		Float64("close", closed.Close).
		Float64("volume", closed.Volume).
		Msg("🕯️ Candle closed")
	e.state.AddEvent("info", "candle_closed", map[string]any{
		"symbol":   closed.Symbol,
		"window":   closed.Window,
		"start_ts": closed.StartTs,
		"end_ts":   closed.EndTs,
		"open":     closed.Open,
		"high":     closed.High,
		"low":      closed.Low,
		"close":    closed.Close,
		"volume":   closed.Volume,
	})
}

// buildMarketContext derives the odds-driven features for one tick
func (e *Engine) buildMarketContext(window types.RoundWindow, odds types.OddsSnapshot, tick types.Tick, nowTs float64) strategy.MarketContext {
	secondsToClose := window.SecondsToClose(nowTs)
	ctx := strategy.MarketContext{
		SecondsToClose: &secondsToClose,
		RoundSeconds:   &e.cfg.RoundSeconds,
		YesPrice:       odds.YesPrice,
		NoPrice:        odds.NoPrice,
	}

	if odds.YesPrice != nil && odds.NoPrice != nil {
		yes, no := *odds.YesPrice, *odds.NoPrice
		if denom := yes + no; denom > 0 {
			imbalance := clampFloat((yes-no)/denom, -1.0, 1.0)
			ctx.OrderbookImbalance = &imbalance
		}

		e.oddsHistory = append(e.oddsHistory, oddsSample{ts: nowTs, yes: yes, no: no})
		if len(e.oddsHistory) > maxOddsHistory {
			e.oddsHistory = e.oddsHistory[len(e.oddsHistory)-maxOddsHistory:]
		}

		if baseline := e.oddsBaseline(nowTs); baseline != nil {
			rawMomentum := (yes - baseline.yes) - (no - baseline.no)
			momentum := clampFloat(rawMomentum*5.0, -1.0, 1.0)
			ctx.TradeMomentum = &momentum
		}
	}

	if cross := e.state.CrossFeedPrice(); cross != nil && *cross > 0 {
		divergence := math.Abs((tick.Price-*cross)/(*cross)) * 10_000.0
		ctx.FeedDivergenceBps = &divergence
	}

	return ctx
}

// oddsBaseline returns the oldest sample inside the momentum lookback, or
// the oldest sample at all when everything is older.
func (e *Engine) oddsBaseline(nowTs float64) *oddsSample {
	if len(e.oddsHistory) == 0 {
		return nil
	}
	lookbackStart := nowTs - oddsMomentumLookback
	for i := range e.oddsHistory {
		if e.oddsHistory[i].ts >= lookbackStart {
			return &e.oddsHistory[i]
		}
	}
	return &e.oddsHistory[0]
}

// applyOddsAlignment boosts or cuts confidence based on whether the book
// agrees with the action, and annotates the record with model/market
// probability fields.
func (e *Engine) applyOddsAlignment(decision *strategy.Decision, record map[string]any, odds types.OddsSnapshot, rawConfidence float64) float64 {
	yes, no := *odds.YesPrice, *odds.NoPrice
	confidence := rawConfidence

	supportsAction := (decision.Action == types.ActionBuyYes && yes > no) ||
		(decision.Action == types.ActionBuyNo && no > yes)
	if supportsAction {
		confidence = math.Min(1.0, confidence+0.05)
		record["odds_alignment"] = "supportive"
	} else {
		confidence = math.Max(0.0, confidence-0.08)
		record["odds_alignment"] = "against"
	}

	record["confidence"] = roundTo(confidence, 4)
	record["yes_price"] = yes
	record["no_price"] = no
	record["market_slug"] = odds.Slug

	modelProbYesRaw := modelProbYes(decision.Action, rawConfidence)
	modelProbYesAdj := modelProbYes(decision.Action, confidence)

	record["model_prob_yes_raw"] = roundPtr(modelProbYesRaw, 6)
	record["model_prob_yes_adjusted"] = roundPtr(modelProbYesAdj, 6)
	if modelProbYesAdj != nil {
		record["model_prob_no_adjusted"] = roundTo(1.0-*modelProbYesAdj, 6)
		record["edge_vs_market_implied_prob"] = roundTo(*modelProbYesAdj-yes, 6)
	} else {
		record["model_prob_no_adjusted"] = nil
		record["edge_vs_market_implied_prob"] = nil
	}
	record["market_implied_prob_yes"] = roundTo(yes, 6)

	return confidence
}

func (e *Engine) logOddsFilterBlocked(action string, roundID int64, confidence float64, odds types.OddsSnapshot, price float64) {
	event := map[string]any{
		"action":     action,
		"round_id":   roundID,
		"confidence": roundTo(confidence, 4),
		"yes_price":  *odds.YesPrice,
		"no_price":   *odds.NoPrice,
		"price":      price,
	}
	material := MaterialEvent{
		RoundID: roundID,
		Action:  action,
		Metrics: map[string]float64{
			"price":     price,
			"yes_price": *odds.YesPrice,
			"no_price":  *odds.NoPrice,
		},
	}
	if ShouldLogMaterial(material, e.lastOddsFilterBlocked, defaultMaterialThresholdPct) {
		e.state.AddEvent("warning", "odds_filter_blocked", event)
		e.lastOddsFilterBlocked = &material
	}
}

func (e *Engine) logOpportunity(decision *strategy.Decision, record map[string]any, roundID int64, price float64, edgeStrength *float64, nowTs float64) {
	entry := map[string]any{
		"type":           "opportunity_detected",
		"ts":             nowTs,
		"round_id":       roundID,
		"action":         decision.Action,
		"strategy":       decision.Strategy,
		"confidence":     record["confidence"],
		"price":          price,
		"odds_alignment": alignmentOf(record),
		"yes_price":      record["yes_price"],
		"no_price":       record["no_price"],
		"edge_strength":  edgeStrength,
	}

	metrics := map[string]float64{"price": price}
	if yes, ok := record["yes_price"].(float64); ok {
		metrics["yes_price"] = yes
	}
	if no, ok := record["no_price"].(float64); ok {
		metrics["no_price"] = no
	}
	material := MaterialEvent{RoundID: roundID, Action: decision.Action, Metrics: metrics}
	if ShouldLogMaterial(material, e.lastOpportunity, defaultMaterialThresholdPct) {
		e.logPaperEntry(entry)
		e.state.AddEvent("info", "opportunity_detected", entry)
		e.lastOpportunity = &material
	}
}

func (e *Engine) logRiskBlocked(action string, roundID int64, reason string) {
	discrete := DiscreteEvent{RoundID: roundID, Action: action, Reason: reason}
	if ShouldLogDiscrete(discrete, e.lastRiskBlocked) {
		e.state.AddEvent("warning", "risk_blocked", map[string]any{
			"action":   action,
			"round_id": roundID,
			"reason":   reason,
		})
		e.lastRiskBlocked = &discrete
	}
}

func (e *Engine) logNetEdgeBlocked(action string, roundID int64, price float64, edgeStrength *float64, confidence, expectedEdgeBps, totalCostBps, netEdgeBps, slippageBps float64) {
	event := map[string]any{
		"action":                       action,
		"round_id":                     roundID,
		"reason":                       "net_edge_below_threshold",
		"min_net_edge_bps":             roundTo(e.cfg.PaperMinNetEdgeBps, 4),
		"expected_edge_bps":            roundTo(expectedEdgeBps, 4),
		"estimated_total_cost_bps":     roundTo(totalCostBps, 4),
		"estimated_net_edge_bps":       roundTo(netEdgeBps, 4),
		"effective_entry_slippage_bps": roundTo(slippageBps, 4),
		"price":                        price,
		"edge_strength":                edgeStrength,
		"confidence":                   roundTo(confidence, 4),
	}
	material := MaterialEvent{
		RoundID: roundID,
		Action:  action,
		Metrics: map[string]float64{
			"price":                    price,
			"expected_edge_bps":        expectedEdgeBps,
			"estimated_total_cost_bps": totalCostBps,
			"estimated_net_edge_bps":   netEdgeBps,
		},
	}
	if ShouldLogMaterial(material, e.lastNetEdgeBlocked, defaultMaterialThresholdPct) {
		e.state.AddEvent("warning", "net_edge_blocked", event)
		e.lastNetEdgeBlocked = &material
	}
}

// decisionRecord converts a strategy decision into the mutable record map
// the pipeline annotates and persists.
func (e *Engine) decisionRecord(decision *strategy.Decision) map[string]any {
	record := map[string]any{
		"strategy":   decision.Strategy,
		"confidence": decision.Confidence,
		"reason":     decision.Reason,
	}
	if decision.Score != nil {
		record["score"] = *decision.Score
	}
	if decision.Price != nil {
		record["price"] = *decision.Price
	}
	if decision.SizeUSD != nil {
		record["size_usd"] = *decision.SizeUSD
	}
	if decision.Signals != nil {
		record["signals"] = decision.Signals
	}
	return record
}

func (e *Engine) logPaperEntry(entry map[string]any) {
	e.state.AddPaperTradeEntry(entry)
	if e.sink != nil {
		e.sink.Append(entry)
	}
}

// modelProbYes maps a directional action plus confidence to an implied
// yes-probability.
func modelProbYes(action string, confidence float64) *float64 {
	bounded := clampFloat(confidence, 0.0, 1.0)
	switch action {
	case types.ActionBuyYes:
		return &bounded
	case types.ActionBuyNo:
		p := 1.0 - bounded
		return &p
	}
	return nil
}

func alignmentOf(record map[string]any) string {
	if alignment, ok := record["odds_alignment"].(string); ok {
		return alignment
	}
	return "unknown"
}

func clampFloat(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func roundTo(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}

func roundPtr(value *float64, places int) any {
	if value == nil {
		return nil
	}
	return roundTo(*value, places)
}
