package strategy

import (
	"math"

	"github.com/0xferal/roundbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// UPDOWN COMPOSITE STRATEGY - Multi-signal scoring with Kelly sizing
// ═══════════════════════════════════════════════════════════════════════════════
//
// Six independent signals are blended into one directional call:
//   time_decay           - price movement weighted by closeness to round close
//   orderbook_imbalance  - yes/no book pressure
//   trade_momentum       - recent odds flow
//   price_movement       - raw short-horizon return
//   price_inefficiency   - market price vs a z-score fair-value estimate
//   feed_comparison      - cross-feed divergence sanity check
//
// Missing inputs never abort an evaluation; a signal degrades to near-zero
// influence with available=false.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Signal names used in decision breakdowns
const (
	SignalTimeDecay          = "time_decay"
	SignalOrderbookImbalance = "orderbook_imbalance"
	SignalTradeMomentum      = "trade_momentum"
	SignalPriceMovement      = "price_movement"
	SignalPriceInefficiency  = "price_inefficiency"
	SignalFeedComparison     = "feed_comparison"
)

// SignalWeights defines how much each signal contributes; weights sum to 1.0
type SignalWeights struct {
	TimeDecay          float64
	OrderbookImbalance float64
	TradeMomentum      float64
	PriceMovement      float64
	PriceInefficiency  float64
	FeedComparison     float64
}

// DefaultSignalWeights returns the production blend
func DefaultSignalWeights() SignalWeights {
	return SignalWeights{
		TimeDecay:          0.20,
		OrderbookImbalance: 0.20,
		TradeMomentum:      0.15,
		PriceMovement:      0.20,
		PriceInefficiency:  0.20,
		FeedComparison:     0.05,
	}
}

// UpdownConfig holds gating, sizing and anti-herding parameters
type UpdownConfig struct {
	MinConfidenceToTrade float64
	MinScoreToTrade      float64
	MaxEntryPrice        float64
	KellyFraction        float64
	MaxTradeSizeUSD      float64
	MinTradeSizeUSD      float64
	Weights              SignalWeights

	// Anti-herding dampener: when the trailing action history skews this far
	// toward BUY_NO, a BUY_NO candidate needs extra score to clear the gate.
	HerdingWindow         int
	HerdingBuyNoShare     float64
	HerdingScoreIncrement float64
}

// DefaultUpdownConfig returns production gating parameters
func DefaultUpdownConfig() UpdownConfig {
	return UpdownConfig{
		MinConfidenceToTrade:  0.35,
		MinScoreToTrade:       0.2,
		MaxEntryPrice:         0.85,
		KellyFraction:         0.3,
		MaxTradeSizeUSD:       100,
		MinTradeSizeUSD:       1,
		Weights:               DefaultSignalWeights(),
		HerdingWindow:         40,
		HerdingBuyNoShare:     0.75,
		HerdingScoreIncrement: 0.05,
	}
}

// Updown is the composite multi-signal strategy
type Updown struct {
	cfg           UpdownConfig
	recentActions []string
}

// NewUpdown creates the composite strategy
func NewUpdown(cfg UpdownConfig) *Updown {
	if cfg.HerdingWindow <= 0 {
		cfg.HerdingWindow = 40
	}
	return &Updown{cfg: cfg}
}

func (s *Updown) Name() string { return "updown" }

// Evaluate implements Strategy; it is the live entry point.
func (s *Updown) Evaluate(state FeatureState) *Decision {
	return s.EvaluateShadow(state)
}

// EvaluateShadow runs the full pipeline and returns the complete candidate
// payload for passive logging, independent of whether it is acted upon.
func (s *Updown) EvaluateShadow(state FeatureState) *Decision {
	signals := map[string]SignalScore{
		SignalTimeDecay:          s.signalTimeDecay(state),
		SignalOrderbookImbalance: s.signalOrderbookImbalance(state),
		SignalTradeMomentum:      s.signalTradeMomentum(state),
		SignalPriceMovement:      s.signalPriceMovement(state),
		SignalPriceInefficiency:  s.signalPriceInefficiency(state),
		SignalFeedComparison:     s.signalFeedComparison(state),
	}

	score, confidence := s.composite(signals)

	action := types.ActionBuyNo
	if score > 0 {
		action = types.ActionBuyYes
	}

	requiredScore := s.cfg.MinScoreToTrade
	if action == types.ActionBuyNo && s.buyNoShare() > s.cfg.HerdingBuyNoShare {
		requiredScore += s.cfg.HerdingScoreIncrement
	}

	if confidence < s.cfg.MinConfidenceToTrade {
		return nil
	}
	if math.Abs(score) < requiredScore {
		return nil
	}

	var entryPrice *float64
	if action == types.ActionBuyYes {
		entryPrice = state.YesPrice
	} else {
		entryPrice = state.NoPrice
	}
	if entryPrice != nil && *entryPrice > s.cfg.MaxEntryPrice {
		return nil
	}

	sizingPrice := 0.5
	if entryPrice != nil {
		sizingPrice = *entryPrice
	}
	sizeUSD := s.PositionSize(confidence, sizingPrice)
	if sizeUSD < s.cfg.MinTradeSizeUSD {
		return nil
	}

	s.recordAction(action)

	score = roundTo(score, 4)
	confidence = roundTo(confidence, 4)
	sizeUSD = roundTo(sizeUSD, 2)
	return &Decision{
		Strategy:   s.Name(),
		Action:     action,
		Confidence: confidence,
		Score:      &score,
		Price:      entryPrice,
		SizeUSD:    &sizeUSD,
		Reason:     "composite_signal",
		Signals:    signals,
	}
}

// PositionSize computes a Kelly-fraction dollar size for the given confidence
// and odds-implied entry price.
func (s *Updown) PositionSize(confidence, entryPrice float64) float64 {
	if entryPrice <= 0 || entryPrice >= 1 {
		return 0
	}

	p := clamp(confidence, 0.01, 0.99)
	q := 1.0 - p
	b := (1.0 - entryPrice) / entryPrice
	if b <= 0 {
		return 0
	}

	kelly := ((p * b) - q) / b
	if kelly < 0 {
		kelly = 0
	}
	kelly *= s.cfg.KellyFraction

	size := kelly * s.cfg.MaxTradeSizeUSD
	if size > s.cfg.MaxTradeSizeUSD {
		size = s.cfg.MaxTradeSizeUSD
	}
	return size
}

func (s *Updown) recordAction(action string) {
	s.recentActions = append(s.recentActions, action)
	if len(s.recentActions) > s.cfg.HerdingWindow {
		s.recentActions = s.recentActions[len(s.recentActions)-s.cfg.HerdingWindow:]
	}
}

func (s *Updown) buyNoShare() float64 {
	if len(s.recentActions) == 0 {
		return 0
	}
	buyNo := 0
	for _, action := range s.recentActions {
		if action == types.ActionBuyNo {
			buyNo++
		}
	}
	return float64(buyNo) / float64(len(s.recentActions))
}

// composite blends the signal scores and confidences using the configured
// weights, then boosts confidence by directional agreement.
func (s *Updown) composite(signals map[string]SignalScore) (float64, float64) {
	weights := map[string]float64{
		SignalTimeDecay:          s.cfg.Weights.TimeDecay,
		SignalOrderbookImbalance: s.cfg.Weights.OrderbookImbalance,
		SignalTradeMomentum:      s.cfg.Weights.TradeMomentum,
		SignalPriceMovement:      s.cfg.Weights.PriceMovement,
		SignalPriceInefficiency:  s.cfg.Weights.PriceInefficiency,
		SignalFeedComparison:     s.cfg.Weights.FeedComparison,
	}

	var weightTotal, scoreTotal, confTotal float64
	directional := 0
	agreeing := 0

	for key, signal := range signals {
		w := weights[key]
		scoreTotal += signal.Score * w
		confTotal += signal.Confidence * w
		weightTotal += w

		if signal.Score > 0.1 {
			directional++
			agreeing++
		} else if signal.Score < -0.1 {
			directional++
			agreeing--
		}
	}

	if weightTotal <= 0 {
		return 0, 0
	}

	score := scoreTotal / weightTotal
	confidence := confTotal / weightTotal

	if directional > 0 {
		agreementRatio := math.Abs(float64(agreeing)) / float64(directional)
		confidence = clamp(confidence+(0.15*agreementRatio), 0, 1)
	}

	return clamp(score, -1, 1), clamp(confidence, 0, 1)
}

func (s *Updown) signalTimeDecay(state FeatureState) SignalScore {
	if state.SecondsToClose == nil || state.RoundSeconds == nil {
		return SignalScore{Confidence: 0.1, Reason: "missing_time_context"}
	}
	if state.ReturnShort == nil {
		return SignalScore{Confidence: 0.1, Reason: "missing_price_movement"}
	}

	roundSeconds := *state.RoundSeconds
	if roundSeconds < 1 {
		roundSeconds = 1
	}
	closeness := 1.0 - clamp(float64(*state.SecondsToClose)/float64(roundSeconds), 0, 1)
	if closeness < 0.6 {
		return SignalScore{Confidence: 0.15, Reason: "outside_decay_window", Available: true}
	}

	return SignalScore{
		Score:      clamp(*state.ReturnShort*80.0, -1, 1),
		Confidence: clamp(0.3+(0.5*closeness), 0, 1),
		Reason:     "time_decay_active",
		Available:  true,
	}
}

func (s *Updown) signalOrderbookImbalance(state FeatureState) SignalScore {
	if state.OrderbookImbalance == nil {
		return SignalScore{Confidence: 0.1, Reason: "orderbook_unavailable"}
	}
	score := clamp(*state.OrderbookImbalance, -1, 1)
	return SignalScore{
		Score:      score,
		Confidence: clamp(0.3+math.Abs(score)*0.5, 0, 1),
		Reason:     "orderbook_imbalance",
		Available:  true,
	}
}

func (s *Updown) signalTradeMomentum(state FeatureState) SignalScore {
	if state.TradeMomentum == nil {
		return SignalScore{Confidence: 0.1, Reason: "trade_flow_unavailable"}
	}
	score := clamp(*state.TradeMomentum, -1, 1)
	return SignalScore{
		Score:      score,
		Confidence: clamp(0.25+math.Abs(score)*0.6, 0, 1),
		Reason:     "trade_momentum",
		Available:  true,
	}
}

func (s *Updown) signalPriceMovement(state FeatureState) SignalScore {
	if state.ReturnShort == nil {
		return SignalScore{Confidence: 0.1, Reason: "missing_return_short"}
	}
	shortReturn := *state.ReturnShort
	if math.Abs(shortReturn) < 0.0001 {
		return SignalScore{Confidence: 0.15, Reason: "movement_noise", Available: true}
	}
	return SignalScore{
		Score:      clamp(shortReturn*50.0, -1, 1),
		Confidence: clamp(0.3+math.Abs(shortReturn)*250.0, 0, 0.95),
		Reason:     "price_movement",
		Available:  true,
	}
}

func (s *Updown) signalPriceInefficiency(state FeatureState) SignalScore {
	if state.ZScore == nil || state.YesPrice == nil {
		return SignalScore{Confidence: 0.1, Reason: "missing_inefficiency_inputs"}
	}

	fairYes := clamp(0.5-(*state.ZScore*0.08), 0.05, 0.95)
	mispricing := fairYes - *state.YesPrice
	if math.Abs(mispricing) < 0.05 {
		return SignalScore{Confidence: 0.15, Reason: "mispricing_small", Available: true}
	}

	return SignalScore{
		Score:      clamp(mispricing*5.0, -1, 1),
		Confidence: clamp(0.25+math.Abs(mispricing)*2.0, 0, 0.95),
		Reason:     "price_inefficiency",
		Available:  true,
	}
}

func (s *Updown) signalFeedComparison(state FeatureState) SignalScore {
	if state.FeedDivergenceBps == nil {
		return SignalScore{Confidence: 0.2, Reason: "single_feed_mode"}
	}
	if *state.FeedDivergenceBps > 5.0 {
		return SignalScore{Confidence: 0.05, Reason: "feeds_diverged", Available: true}
	}
	if state.ReturnShort == nil {
		return SignalScore{Confidence: 0.2, Reason: "missing_direction", Available: true}
	}

	score := 0.0
	if *state.ReturnShort > 0 {
		score = 0.15
	} else if *state.ReturnShort < 0 {
		score = -0.15
	}
	return SignalScore{Score: score, Confidence: 0.75, Reason: "feeds_agree", Available: true}
}

func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
