package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "data", "trades.db"))
	require.NoError(t, err)
	return db
}

func TestDatabase_SaveAndSettleTrade(t *testing.T) {
	db := newTestDB(t)

	trade := &PaperTrade{
		ID:          "t1",
		RoundID:     7,
		Action:      "BUY_YES",
		Strategy:    "updown",
		MarketSlug:  "btcusdt-updown-15m-900",
		EntryPrice:  decimal.NewFromFloat(0.55),
		NotionalUSD: decimal.NewFromFloat(100),
		Confidence:  decimal.NewFromFloat(0.72),
		EnteredAt:   time.Unix(1000, 0).UTC(),
	}
	require.NoError(t, db.SaveOpenTrade(trade))

	open, err := db.OpenTrades()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "open", open[0].Status)

	settledAt := time.Unix(1800, 0).UTC()
	require.NoError(t, db.SettleTrade("t1",
		decimal.NewFromFloat(1.0),
		decimal.NewFromFloat(81.8182),
		decimal.NewFromFloat(81.8182),
		decimal.NewFromFloat(81.8182),
		"win", settledAt))

	open, err = db.OpenTrades()
	require.NoError(t, err)
	assert.Empty(t, open)

	recent, err := db.RecentTrades(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "closed", recent[0].Status)
	assert.Equal(t, "win", recent[0].Outcome)
	require.NotNil(t, recent[0].SettledAt)
	assert.True(t, recent[0].ExitPrice.Equal(decimal.NewFromFloat(1.0)))
}

func TestDatabase_UpsertDailySummary(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.UpsertDailySummary(&DailySummary{
		DayUTC:         "2026-08-30",
		ClosedTrades:   1,
		Wins:           1,
		RealizedPnlUSD: decimal.NewFromFloat(81.82),
	}))

	// second upsert for the same day overwrites the aggregate
	require.NoError(t, db.UpsertDailySummary(&DailySummary{
		DayUTC:         "2026-08-30",
		ClosedTrades:   2,
		Wins:           1,
		Losses:         1,
		RealizedPnlUSD: decimal.NewFromFloat(-18.18),
	}))

	var summaries []DailySummary
	require.NoError(t, db.db.Find(&summaries).Error)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].ClosedTrades)
	assert.Equal(t, 1, summaries[0].Losses)
}

func TestDatabase_RecentTradesLimit(t *testing.T) {
	db := newTestDB(t)

	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, db.SaveOpenTrade(&PaperTrade{
			ID:        id,
			RoundID:   int64(i),
			Action:    "BUY_NO",
			Strategy:  "updown",
			EnteredAt: time.Unix(int64(1000+i), 0).UTC(),
		}))
	}

	recent, err := db.RecentTrades(2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
