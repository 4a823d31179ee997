package state

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func TestState_TickAndRound(t *testing.T) {
	s := New()
	s.SetTick(100.5, 1000)
	s.SetRound(7, 1800)

	snap := s.Snapshot()
	require.NotNil(t, snap.LatestPrice)
	assert.Equal(t, 100.5, *snap.LatestPrice)
	require.NotNil(t, snap.ActiveRoundID)
	assert.Equal(t, int64(7), *snap.ActiveRoundID)
	require.NotNil(t, snap.RoundCloseTs)
	assert.Equal(t, 1800.0, *snap.RoundCloseTs)
}

func TestState_SetMarketClearsOdds(t *testing.T) {
	s := New()
	s.SetMarket("btcusdt-updown-15m-1000", []string{"111", "222"})
	s.SetOdds(floatPtr(0.55), floatPtr(0.45), 1000)

	s.SetMarket("btcusdt-updown-15m-1900", []string{"333", "444"})

	odds := s.OddsSnapshot()
	assert.Equal(t, "btcusdt-updown-15m-1900", odds.Slug)
	assert.Equal(t, []string{"333", "444"}, odds.TokenIDs)
	assert.Nil(t, odds.YesPrice)
	assert.Nil(t, odds.NoPrice)
	assert.Nil(t, odds.LastUpdateTs)
}

func TestState_KillSwitchToggle(t *testing.T) {
	s := New()
	assert.False(t, s.IsKillSwitchEnabled())

	s.SetKillSwitch(true)
	assert.True(t, s.IsKillSwitchEnabled())
	assert.True(t, s.Snapshot().KillSwitchEnabled)

	s.SetKillSwitch(false)
	assert.False(t, s.IsKillSwitchEnabled())
}

func TestState_EventRingBounded(t *testing.T) {
	s := New()
	for i := 0; i < maxEvents+50; i++ {
		s.AddEvent("info", fmt.Sprintf("event_%d", i), nil)
	}

	events := s.Snapshot().Events
	require.Len(t, events, maxEvents)
	assert.Equal(t, fmt.Sprintf("event_%d", maxEvents+49), events[len(events)-1].Message)
	assert.Equal(t, "event_50", events[0].Message)
}

func TestState_PaperTradeRingBounded(t *testing.T) {
	s := New()
	for i := 0; i < maxPaperEntries+10; i++ {
		s.AddPaperTradeEntry(map[string]any{"seq": i})
	}

	entries := s.PaperTradeEntries()
	require.Len(t, entries, maxPaperEntries)
	assert.Equal(t, 10, entries[0]["seq"])
}

func TestState_EventNilDataNormalized(t *testing.T) {
	s := New()
	s.AddEvent("warning", "odds_move", nil)

	events := s.Snapshot().Events
	require.Len(t, events, 1)
	assert.NotNil(t, events[0].Data)
}

func TestState_SnapshotIsIndependentCopy(t *testing.T) {
	s := New()
	s.AddPaperTradeEntry(map[string]any{"seq": 1})
	snap := s.Snapshot()

	s.AddPaperTradeEntry(map[string]any{"seq": 2})
	s.AddEvent("info", "decision", nil)

	assert.Len(t, snap.PaperTrades, 1)
	assert.Empty(t, snap.Events)
}

func TestState_CrossFeedPrice(t *testing.T) {
	s := New()
	assert.Nil(t, s.CrossFeedPrice())

	s.SetCrossFeedPrice(99.75, 1000)
	require.NotNil(t, s.CrossFeedPrice())
	assert.Equal(t, 99.75, *s.CrossFeedPrice())
}
