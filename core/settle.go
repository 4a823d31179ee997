package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/0xferal/roundbot/paper"
	"github.com/0xferal/roundbot/storage"
	"github.com/0xferal/roundbot/strategy"
	"github.com/0xferal/roundbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SETTLEMENT - Deterministic round close over the open paper ledger
// ═══════════════════════════════════════════════════════════════════════════════

// TradeStore mirrors ledger records into the queryable database
type TradeStore interface {
	SaveOpenTrade(trade *storage.PaperTrade) error
	SettleTrade(id string, exitPrice, returnPct, grossPnlUSD, pnlUSD decimal.Decimal, outcome string, settledAt time.Time) error
	UpsertDailySummary(summary *storage.DailySummary) error
}

type openTradeInputs struct {
	window          types.RoundWindow
	tick            types.Tick
	nowTs           float64
	decision        *strategy.Decision
	record          map[string]any
	confidence      float64
	odds            types.OddsSnapshot
	edgeStrength    *float64
	entryReference  float64
	executedEntry   float64
	slippageBps     float64
	expectedEdgeBps float64
	totalCostBps    float64
	netEdgeBps      float64
	riskReason      string
	openPrice       *float64
	openPriceSource string
}

// buildOpenTradeRecord assembles the full opening ledger record
func (e *Engine) buildOpenTradeRecord(in openTradeInputs) map[string]any {
	secondsToClose := in.window.SecondsToClose(in.nowTs)
	minutesToClose := (in.window.CloseTs - in.nowTs) / 60.0
	if minutesToClose < 0 {
		minutesToClose = 0
	}

	trade := map[string]any{
		"type":                   "paper_trade_opened",
		"id":                     uuid.NewString(),
		"ts":                     in.nowTs,
		"entry_ts":               in.tick.Ts,
		"entry_ts_iso_utc":       types.IsoUTC(in.tick.Ts),
		"round_id":               in.window.RoundID,
		"round_close_ts":         in.window.CloseTs,
		"round_close_ts_iso_utc": types.IsoUTC(in.window.CloseTs),
		"open_seconds_to_close":  secondsToClose,
		"open_minutes_to_close":  roundTo(minutesToClose, 4),
		"action":                 in.decision.Action,
		"strategy":               in.decision.Strategy,
		"confidence":             in.record["confidence"],
		"confidence_pct":         roundTo(in.confidence*100.0, 4),
		"decision_score":         in.record["score"],
		"decision_reason":        in.record["reason"],
		"decision_signals":       in.record["signals"],
		"ref_price_at_decision":  in.tick.Price,
		"ref_price_at_entry":     in.tick.Price,
		"price_to_beat":          derefAny(in.openPrice),
		"price_to_beat_source":   in.openPriceSource,
		"expected_outcome_if_closed_now": expectedOutcome(in.tick.Price, in.openPrice),
		"signal_price":                   in.entryReference,
		"entry_price":                    in.executedEntry,
		"edge_strength":                  derefAny(in.edgeStrength),
		"notional_usd":                   e.cfg.PaperNotionalUSD,
		"stake_usd":                      e.cfg.PaperNotionalUSD,
		"entry_slippage_bps":             e.cfg.Simulation.EntrySlippageBps,
		"effective_entry_slippage_bps":   roundTo(in.slippageBps, 4),
		"expected_edge_bps":              roundTo(in.expectedEdgeBps, 4),
		"estimated_total_cost_bps":       roundTo(in.totalCostBps, 4),
		"estimated_net_edge_bps":         roundTo(in.netEdgeBps, 4),
		"gas_fee_usd_per_side":           e.cfg.Simulation.GasFeeUSDPerSide,
		"adverse_selection_bps":          e.cfg.Simulation.AdverseSelectionBps,
		"odds_alignment":                 alignmentOf(in.record),
		"market_slug":                    in.record["market_slug"],
		"yes_price":                      in.record["yes_price"],
		"no_price":                       in.record["no_price"],
		"market_implied_prob_yes":        in.record["market_implied_prob_yes"],
		"model_prob_yes_raw":             in.record["model_prob_yes_raw"],
		"model_prob_yes_adjusted":        in.record["model_prob_yes_adjusted"],
		"model_prob_no_adjusted":         in.record["model_prob_no_adjusted"],
		"edge_vs_market_implied_prob":    in.record["edge_vs_market_implied_prob"],
		"risk_assessment": map[string]any{
			"kill_switch": false,
			"risk_check":  "ok",
			"risk_reason": in.riskReason,
		},
	}

	yes, yesOK := in.record["yes_price"].(float64)
	no, noOK := in.record["no_price"].(float64)
	if yesOK && noOK {
		trade["price_sum"] = roundTo(yes+no, 6)
		gap := yes - no
		if gap < 0 {
			gap = -gap
		}
		trade["price_gap"] = roundTo(gap, 6)
	} else {
		trade["price_sum"] = nil
		trade["price_gap"] = nil
	}

	return trade
}

// settleRound closes every open trade of the round. Without a round-open
// reference price every trade settles invalid with zero P&L; settling the
// same round twice is a no-op because the first pass drains its trades.
func (e *Engine) settleRound(roundID int64, closePrice, closeTs float64, roundOpenPrice *float64) {
	dayUTC := time.Unix(int64(closeTs), 0).UTC().Format("2006-01-02")
	var remaining []map[string]any

	if roundOpenPrice == nil {
		for _, trade := range e.openTrades {
			if tradeRoundID(trade) != roundID {
				remaining = append(remaining, trade)
				continue
			}
			closing := e.buildClosingRecord(trade, roundID, closePrice, closeTs, nil, paper.TradeResult{
				Outcome:       paper.ResultInvalid,
				MarketOutcome: types.OutcomeUnknown,
			}, asFloat(trade["entry_price"]))
			e.applyDayTotals(closing, dayUTC, 0.0, paper.ResultInvalid)
			e.logPaperEntry(closing)
			e.state.AddEvent("warning", "paper_trade_closed_without_round_open", closing)
			e.persistClosedTrade(closing, closeTs)
		}
		e.openTrades = remaining
		return
	}

	marketOutcome := outcomeFromPrices(*roundOpenPrice, closePrice)

	for _, trade := range e.openTrades {
		if tradeRoundID(trade) != roundID {
			remaining = append(remaining, trade)
			continue
		}

		action, _ := trade["action"].(string)
		entryPrice := asFloat(trade["entry_price"])
		notional := asFloat(trade["notional_usd"])
		if notional == 0 {
			notional = e.cfg.PaperNotionalUSD
		}

		result := paper.EvaluateTrade(action, entryPrice, marketOutcome, notional, e.cfg.Simulation)

		settlementPrice := 0.0
		if (action == types.ActionBuyYes && marketOutcome == types.OutcomeYes) ||
			(action == types.ActionBuyNo && marketOutcome == types.OutcomeNo) {
			settlementPrice = 1.0
		}
		if marketOutcome == types.OutcomePush {
			settlementPrice = entryPrice
		}

		closing := e.buildClosingRecord(trade, roundID, closePrice, closeTs, roundOpenPrice, result, settlementPrice)
		e.applyDayTotals(closing, dayUTC, result.PnlUSD, result.Outcome)
		e.logPaperEntry(closing)
		e.state.AddEvent("info", "paper_trade_closed", closing)
		e.persistClosedTrade(closing, closeTs)
		log.Info().
			Str("outcome", result.Outcome).
			Float64("pnl_usd", roundTo(result.PnlUSD, 4)).
			Int64("round_id", roundID).
			Msg("💰 Paper trade closed")
	}

	e.openTrades = remaining
}

// buildClosingRecord assembles the settlement record for one trade. A nil
// roundOpenPrice marks the invalid-settlement path.
func (e *Engine) buildClosingRecord(trade map[string]any, roundID int64, closePrice, closeTs float64, roundOpenPrice *float64, result paper.TradeResult, settlementPrice float64) map[string]any {
	entryTs := asFloat(trade["entry_ts"])

	closing := map[string]any{
		"type":                   "paper_trade_closed",
		"id":                     trade["id"],
		"round_id":               roundID,
		"action":                 trade["action"],
		"strategy":               trade["strategy"],
		"market_slug":            trade["market_slug"],
		"entry_price":            trade["entry_price"],
		"exit_price":             settlementPrice,
		"entry_ts":               trade["entry_ts"],
		"entry_ts_iso_utc":       trade["entry_ts_iso_utc"],
		"exit_ts":                closeTs,
		"exit_ts_iso_utc":        types.IsoUTC(closeTs),
		"round_close_ts":         trade["round_close_ts"],
		"round_close_ts_iso_utc": trade["round_close_ts_iso_utc"],
		"open_seconds_to_close":  trade["open_seconds_to_close"],
		"open_minutes_to_close":  trade["open_minutes_to_close"],
		"trade_duration_seconds": roundTo(closeTs-entryTs, 3),
		"trade_duration_minutes": roundTo((closeTs-entryTs)/60.0, 4),
		"confidence":             trade["confidence"],
		"confidence_pct":         trade["confidence_pct"],
		"decision_score":         trade["decision_score"],
		"decision_reason":        trade["decision_reason"],
		"decision_signals":       trade["decision_signals"],
		"edge_strength":          trade["edge_strength"],
		"odds_alignment":         trade["odds_alignment"],
		"yes_price":              trade["yes_price"],
		"no_price":               trade["no_price"],
		"price_sum":              trade["price_sum"],
		"price_gap":              trade["price_gap"],
		"ref_price_at_decision":  trade["ref_price_at_decision"],
		"ref_price_at_entry":     trade["ref_price_at_entry"],
		"ref_price_at_close":     closePrice,
		"expected_outcome_if_closed_now": trade["expected_outcome_if_closed_now"],
		"market_implied_prob_yes":        trade["market_implied_prob_yes"],
		"model_prob_yes_raw":             trade["model_prob_yes_raw"],
		"model_prob_yes_adjusted":        trade["model_prob_yes_adjusted"],
		"model_prob_no_adjusted":         trade["model_prob_no_adjusted"],
		"edge_vs_market_implied_prob":    trade["edge_vs_market_implied_prob"],
		"round_close_ref_price":          closePrice,
		"stake_usd":                      asFloat(trade["notional_usd"]),
		"risk_assessment":                trade["risk_assessment"],
	}

	if roundOpenPrice == nil {
		// Invalid settlement: no reference price ever resolved
		closing["price_to_beat"] = trade["price_to_beat"]
		closing["price_to_beat_source"] = trade["price_to_beat_source"]
		closing["exit_price"] = trade["entry_price"]
		closing["ref_move_abs_vs_price_to_beat"] = nil
		closing["ref_move_pct_vs_price_to_beat"] = nil
		closing["market_outcome"] = types.OutcomeUnknown
		closing["round_open_ref_price"] = nil
		closing["outcome"] = paper.ResultInvalid
		closing["return_pct"] = 0.0
		closing["gross_return_pct"] = 0.0
		closing["total_cost_pct"] = 0.0
		closing["gas_fees_usd"] = 0.0
		closing["adverse_selection_bps_applied"] = 0.0
		closing["gross_pnl_usd"] = 0.0
		closing["pnl_usd"] = 0.0
		return closing
	}

	priceToBeat, haveBeat := trade["price_to_beat"].(float64)
	priceToBeatSource := trade["price_to_beat_source"]
	if !haveBeat {
		priceToBeat = *roundOpenPrice
		if priceToBeatSource == nil || priceToBeatSource == "" {
			priceToBeatSource = "round_open_fallback"
		}
	}

	closing["price_to_beat"] = priceToBeat
	closing["price_to_beat_source"] = priceToBeatSource
	closing["ref_move_abs_vs_price_to_beat"] = roundTo(closePrice-priceToBeat, 6)
	if priceToBeat != 0 {
		closing["ref_move_pct_vs_price_to_beat"] = roundTo(((closePrice-priceToBeat)/priceToBeat)*100.0, 6)
	} else {
		closing["ref_move_pct_vs_price_to_beat"] = nil
	}
	closing["market_outcome"] = result.MarketOutcome
	closing["round_open_ref_price"] = *roundOpenPrice
	closing["outcome"] = result.Outcome
	closing["return_pct"] = roundTo(result.ReturnPct, 4)
	closing["gross_return_pct"] = roundTo(result.GrossReturnPct, 4)
	closing["total_cost_pct"] = roundTo(result.TotalCostPct, 4)
	closing["gas_fees_usd"] = roundTo(result.GasFeesUSD, 4)
	closing["adverse_selection_bps_applied"] = result.AdverseSelectionBpsApplied
	closing["gross_pnl_usd"] = roundTo(result.GrossPnlUSD, 4)
	closing["pnl_usd"] = roundTo(result.PnlUSD, 4)
	return closing
}

// applyDayTotals folds one settlement into the UTC-day aggregates and stamps
// the running totals onto the closing record.
func (e *Engine) applyDayTotals(closing map[string]any, dayUTC string, pnlUSD float64, outcome string) {
	daily, ok := e.dailyTotals[dayUTC]
	if !ok {
		daily = &dayTotals{}
		e.dailyTotals[dayUTC] = daily
	}
	daily.closedTrades++
	switch outcome {
	case paper.ResultWin:
		daily.wins++
	case paper.ResultLoss:
		daily.losses++
	case paper.ResultInvalid:
		daily.invalid++
	}
	daily.realizedPnlUSD += pnlUSD

	closing["day_utc"] = dayUTC
	closing["day_closed_trades"] = daily.closedTrades
	closing["day_wins"] = daily.wins
	closing["day_losses"] = daily.losses
	closing["day_invalid"] = daily.invalid
	closing["day_realized_pnl_usd"] = roundTo(daily.realizedPnlUSD, 4)

	if e.store != nil {
		err := e.store.UpsertDailySummary(&storage.DailySummary{
			DayUTC:         dayUTC,
			ClosedTrades:   daily.closedTrades,
			Wins:           daily.wins,
			Losses:         daily.losses,
			Invalid:        daily.invalid,
			RealizedPnlUSD: decimal.NewFromFloat(daily.realizedPnlUSD),
		})
		if err != nil {
			log.Error().Err(err).Str("day", dayUTC).Msg("Daily summary upsert failed")
		}
	}
}

func (e *Engine) persistOpenTrade(trade map[string]any) {
	if e.store == nil {
		return
	}
	id, _ := trade["id"].(string)
	action, _ := trade["action"].(string)
	strategyName, _ := trade["strategy"].(string)
	slug, _ := trade["market_slug"].(string)

	row := &storage.PaperTrade{
		ID:          id,
		RoundID:     tradeRoundID(trade),
		Action:      action,
		Strategy:    strategyName,
		MarketSlug:  slug,
		EntryPrice:  decimal.NewFromFloat(asFloat(trade["entry_price"])),
		NotionalUSD: decimal.NewFromFloat(asFloat(trade["notional_usd"])),
		Confidence:  decimal.NewFromFloat(asFloat(trade["confidence"])),
		Score:       decimal.NewFromFloat(asFloat(trade["decision_score"])),
		EnteredAt:   time.Unix(int64(asFloat(trade["entry_ts"])), 0).UTC(),
	}
	if err := e.store.SaveOpenTrade(row); err != nil {
		log.Error().Err(err).Str("id", id).Msg("Trade insert failed")
	}
}

func (e *Engine) persistClosedTrade(closing map[string]any, closeTs float64) {
	if e.store == nil {
		return
	}
	id, _ := closing["id"].(string)
	outcome, _ := closing["outcome"].(string)
	settledAt := time.Unix(int64(closeTs), 0).UTC()

	err := e.store.SettleTrade(id,
		decimal.NewFromFloat(asFloat(closing["exit_price"])),
		decimal.NewFromFloat(asFloat(closing["return_pct"])),
		decimal.NewFromFloat(asFloat(closing["gross_pnl_usd"])),
		decimal.NewFromFloat(asFloat(closing["pnl_usd"])),
		outcome, settledAt)
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Trade settle update failed")
	}
}

// outcomeFromPrices judges the realized round direction
func outcomeFromPrices(roundOpen, roundClose float64) string {
	if roundClose > roundOpen {
		return types.OutcomeYes
	}
	if roundClose < roundOpen {
		return types.OutcomeNo
	}
	return types.OutcomePush
}

// expectedOutcome projects the outcome if the round closed at the current
// price against the price-to-beat.
func expectedOutcome(currentPrice float64, priceToBeat *float64) string {
	if priceToBeat == nil {
		return types.OutcomeUnknown
	}
	if currentPrice > *priceToBeat {
		return types.OutcomeYes
	}
	if currentPrice < *priceToBeat {
		return types.OutcomeNo
	}
	return types.OutcomePush
}

func tradeRoundID(trade map[string]any) int64 {
	switch v := trade["round_id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func asFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func derefAny(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}
