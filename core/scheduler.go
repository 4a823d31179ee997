package core

import (
	"context"
	"time"

	"github.com/0xferal/roundbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ROUND SCHEDULER - Clock-driven round boundaries and activation window
// ═══════════════════════════════════════════════════════════════════════════════

const (
	minActivationPoll = 200 * time.Millisecond
	maxActivationPoll = 2 * time.Second
)

// Scheduler computes round windows from wall-clock time. It carries no state
// beyond configuration; every window is recomputed from `now`.
type Scheduler struct {
	roundSeconds          int
	activationLeadSeconds int
	now                   func() float64
}

// NewScheduler creates a round scheduler
func NewScheduler(roundSeconds, activationLeadSeconds int) *Scheduler {
	return &Scheduler{
		roundSeconds:          roundSeconds,
		activationLeadSeconds: activationLeadSeconds,
		now:                   func() float64 { return float64(time.Now().UnixNano()) / 1e9 },
	}
}

// CurrentRound returns the round window containing nowTs.
func (s *Scheduler) CurrentRound(nowTs float64) types.RoundWindow {
	roundID := int64(nowTs) / int64(s.roundSeconds)
	startTs := float64(roundID * int64(s.roundSeconds))
	closeTs := startTs + float64(s.roundSeconds)
	return types.RoundWindow{
		RoundID:      roundID,
		StartTs:      startTs,
		CloseTs:      closeTs,
		ActivationTs: closeTs - float64(s.activationLeadSeconds),
	}
}

// WaitUntilActivation sleeps in bounded slices until now falls inside the
// activation window [activation, close), then returns that window. Waking
// early or late is harmless: the window is always recomputed from now.
func (s *Scheduler) WaitUntilActivation(ctx context.Context) (types.RoundWindow, error) {
	for {
		window := s.CurrentRound(s.now())
		nowTs := s.now()
		if window.ActivationTs <= nowTs && nowTs < window.CloseTs {
			return window, nil
		}

		var sleepFor time.Duration
		if nowTs < window.ActivationTs {
			sleepFor = secondsToDuration(window.ActivationTs - nowTs)
		} else {
			nextRoundTs := window.StartTs + float64(s.roundSeconds)
			sleepFor = secondsToDuration(nextRoundTs - nowTs)
		}
		if sleepFor < minActivationPoll {
			sleepFor = minActivationPoll
		}
		if sleepFor > maxActivationPoll {
			sleepFor = maxActivationPoll
		}

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return types.RoundWindow{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
