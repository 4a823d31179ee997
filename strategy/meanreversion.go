package strategy

import "github.com/0xferal/roundbot/types"

const (
	meanReversionThreshold  = 1.75
	meanReversionConfidence = 0.57
)

// MeanReversion fades a stretched z-score: a price far above its trailing mean
// argues for the down side and vice versa.
type MeanReversion struct{}

func NewMeanReversion() *MeanReversion { return &MeanReversion{} }

func (s *MeanReversion) Name() string { return "mean_reversion" }

func (s *MeanReversion) Evaluate(state FeatureState) *Decision {
	if state.ZScore == nil {
		return nil
	}
	z := *state.ZScore
	if z > meanReversionThreshold {
		return &Decision{
			Strategy:   s.Name(),
			Action:     types.ActionBuyNo,
			Confidence: meanReversionConfidence,
			Reason:     "price stretched high",
		}
	}
	if z < -meanReversionThreshold {
		return &Decision{
			Strategy:   s.Name(),
			Action:     types.ActionBuyYes,
			Confidence: meanReversionConfidence,
			Reason:     "price stretched low",
		}
	}
	return nil
}
