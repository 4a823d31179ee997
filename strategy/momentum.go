package strategy

import "github.com/0xferal/roundbot/types"

const (
	momentumThreshold  = 0.0012
	momentumConfidence = 0.62
)

// Momentum buys the direction of the short-horizon return once it clears a
// fixed threshold.
type Momentum struct{}

func NewMomentum() *Momentum { return &Momentum{} }

func (s *Momentum) Name() string { return "momentum" }

func (s *Momentum) Evaluate(state FeatureState) *Decision {
	if state.ReturnShort == nil {
		return nil
	}
	short := *state.ReturnShort
	if short > momentumThreshold {
		return &Decision{
			Strategy:   s.Name(),
			Action:     types.ActionBuyYes,
			Confidence: momentumConfidence,
			Reason:     "short momentum up",
		}
	}
	if short < -momentumThreshold {
		return &Decision{
			Strategy:   s.Name(),
			Action:     types.ActionBuyNo,
			Confidence: momentumConfidence,
			Reason:     "short momentum down",
		}
	}
	return nil
}
