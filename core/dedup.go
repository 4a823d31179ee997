package core

import "math"

// ═══════════════════════════════════════════════════════════════════════════════
// EVENT DE-DUPLICATION - Keeps state transitions without per-tick flooding
// ═══════════════════════════════════════════════════════════════════════════════

const defaultMaterialThresholdPct = 3.0

// MaterialEvent identifies a repeated event type by (round, action) plus the
// numeric metrics whose movement makes a re-emission worthwhile. Absent
// metrics are simply not present in the map.
type MaterialEvent struct {
	RoundID int64
	Action  string
	Metrics map[string]float64
}

// ShouldLogMaterial reports whether the current event differs enough from the
// previously logged one: any identity change, a metric appearing, a metric
// moving off zero, or a relative move of at least thresholdPct.
func ShouldLogMaterial(current MaterialEvent, previous *MaterialEvent, thresholdPct float64) bool {
	if previous == nil {
		return true
	}
	if current.RoundID != previous.RoundID || current.Action != previous.Action {
		return true
	}

	thresholdRatio := thresholdPct / 100.0
	for key, cur := range current.Metrics {
		prev, ok := previous.Metrics[key]
		if !ok {
			return true
		}
		if prev == 0 {
			if cur != 0 {
				return true
			}
			continue
		}
		if math.Abs(cur-prev)/math.Abs(prev) >= thresholdRatio {
			return true
		}
	}
	return false
}

// DiscreteEvent identifies blocked-style events by their full identity tuple.
type DiscreteEvent struct {
	RoundID int64
	Action  string
	Reason  string
}

// ShouldLogDiscrete reports whether the identity tuple changed.
func ShouldLogDiscrete(current DiscreteEvent, previous *DiscreteEvent) bool {
	if previous == nil {
		return true
	}
	return current != *previous
}
