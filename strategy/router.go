package strategy

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/0xferal/roundbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DECISION ROUTER - Feature building and strategy selection per tick
// ═══════════════════════════════════════════════════════════════════════════════

const (
	priceWindowSize    = 240
	returnShortSamples = 8
	zscoreSamples      = 30
)

// MarketContext carries the externally supplied values merged into the
// feature state for one tick.
type MarketContext struct {
	SecondsToClose     *int
	RoundSeconds       *int
	YesPrice           *float64
	NoPrice            *float64
	OrderbookImbalance *float64
	TradeMomentum      *float64
	FeedDivergenceBps  *float64
}

// Router maintains the rolling price window and dispatches ticks to the
// configured strategies.
type Router struct {
	prices []float64

	mode        string // classic | composite
	shadowMode  bool
	liveEnabled bool

	updown     *Updown
	strategies []Strategy
}

// NewRouter creates a decision router.
// mode selects classic (momentum + mean reversion) or composite routing;
// shadowMode runs the composite strategy for logging regardless of mode.
func NewRouter(mode string, shadowMode, liveEnabled bool, updownCfg UpdownConfig) *Router {
	return &Router{
		mode:        mode,
		shadowMode:  shadowMode,
		liveEnabled: liveEnabled,
		updown:      NewUpdown(updownCfg),
		strategies: []Strategy{
			NewMomentum(),
			NewMeanReversion(),
		},
	}
}

// OnTick updates the rolling window, builds the feature state and returns the
// selected decision, or nil when no strategy fires.
func (r *Router) OnTick(tick types.Tick, ctx MarketContext) *Decision {
	r.prices = append(r.prices, tick.Price)
	if len(r.prices) > priceWindowSize {
		r.prices = r.prices[len(r.prices)-priceWindowSize:]
	}
	state := r.buildState(tick, ctx)

	if r.shadowMode || r.mode == "composite" {
		shadow := r.updown.EvaluateShadow(state)
		if shadow != nil {
			log.Info().
				Str("strategy", shadow.Strategy).
				Str("action", shadow.Action).
				Float64("confidence", shadow.Confidence).
				Msg("Shadow candidate")
			if r.mode == "composite" && r.liveEnabled {
				return shadow
			}
		}
	}

	if r.mode == "composite" {
		return nil
	}

	for _, strat := range r.strategies {
		decision := strat.Evaluate(state)
		if decision == nil {
			continue
		}
		log.Info().
			Str("strategy", strat.Name()).
			Str("action", decision.Action).
			Float64("confidence", decision.Confidence).
			Str("reason", decision.Reason).
			Float64("price", tick.Price).
			Msg("Strategy selected")
		return decision
	}

	return nil
}

// buildState derives rolling statistics and merges the market context.
func (r *Router) buildState(tick types.Tick, ctx MarketContext) FeatureState {
	state := FeatureState{
		LastPrice:          tick.Price,
		SecondsToClose:     ctx.SecondsToClose,
		RoundSeconds:       ctx.RoundSeconds,
		YesPrice:           ctx.YesPrice,
		NoPrice:            ctx.NoPrice,
		OrderbookImbalance: ctx.OrderbookImbalance,
		TradeMomentum:      ctx.TradeMomentum,
		FeedDivergenceBps:  ctx.FeedDivergenceBps,
	}

	if len(r.prices) >= returnShortSamples {
		pNow := r.prices[len(r.prices)-1]
		pThen := r.prices[len(r.prices)-returnShortSamples]
		if pThen != 0 {
			ret := (pNow / pThen) - 1.0
			state.ReturnShort = &ret
		}
	}

	if len(r.prices) >= zscoreSamples {
		window := r.prices[len(r.prices)-zscoreSamples:]
		mean := meanOf(window)
		sigma := pstdev(window, mean)
		if sigma > 0 {
			z := (tick.Price - mean) / sigma
			state.ZScore = &z
		}
	}

	return state
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// pstdev is the population standard deviation over the window.
func pstdev(values []float64, mean float64) float64 {
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
