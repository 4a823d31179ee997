package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOddsSnapshot_EdgeStrength(t *testing.T) {
	snap := OddsSnapshot{YesPrice: Float64Ptr(0.62), NoPrice: Float64Ptr(0.38)}
	edge := snap.EdgeStrength()
	require.NotNil(t, edge)
	assert.InDelta(t, 0.24, *edge, 1e-9)

	// symmetric regardless of which side leads
	snap = OddsSnapshot{YesPrice: Float64Ptr(0.38), NoPrice: Float64Ptr(0.62)}
	edge = snap.EdgeStrength()
	require.NotNil(t, edge)
	assert.InDelta(t, 0.24, *edge, 1e-9)
}

func TestOddsSnapshot_EdgeStrengthRequiresBothSides(t *testing.T) {
	assert.Nil(t, OddsSnapshot{YesPrice: Float64Ptr(0.5)}.EdgeStrength())
	assert.Nil(t, OddsSnapshot{NoPrice: Float64Ptr(0.5)}.EdgeStrength())
	assert.Nil(t, OddsSnapshot{}.EdgeStrength())
}

func TestIsoUTC(t *testing.T) {
	assert.Equal(t, "2023-11-14T22:13:20Z", IsoUTC(1700000000))
	assert.Equal(t, "2023-11-14T22:13:20.5Z", IsoUTC(1700000000.5))
}

func TestRoundWindow_SecondsToClose(t *testing.T) {
	w := RoundWindow{StartTs: 900, CloseTs: 1800}
	assert.Equal(t, 800, w.SecondsToClose(1000))
	assert.Equal(t, 0, w.SecondsToClose(1800))
	assert.Equal(t, 0, w.SecondsToClose(2000))
}
