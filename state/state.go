package state

import (
	"sync"
	"time"

	"github.com/0xferal/roundbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// AGENT STATE - Process-wide store shared by feeds, engine and admin API
// ═══════════════════════════════════════════════════════════════════════════════
//
// One lock per logical state object; readers take snapshot copies instead of
// holding the lock across computation.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	maxEvents       = 200
	maxPaperEntries = 500
)

// Event is a structured entry in the bounded event ring
type Event struct {
	Ts      float64        `json:"ts"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// Snapshot is a point-in-time copy of the whole agent state
type Snapshot struct {
	StartedTs         float64            `json:"started_ts"`
	KillSwitchEnabled bool               `json:"kill_switch_enabled"`
	ActiveRoundID     *int64             `json:"active_round_id"`
	RoundCloseTs      *float64           `json:"round_close_ts"`
	LatestPrice       *float64           `json:"latest_price"`
	LatestTickTs      *float64           `json:"latest_tick_ts"`
	CrossFeedPrice    *float64           `json:"cross_feed_price"`
	CrossFeedTs       *float64           `json:"cross_feed_ts"`
	Odds              types.OddsSnapshot `json:"odds"`
	LastDecision      map[string]any     `json:"last_decision"`
	PaperTrades       []map[string]any   `json:"paper_trades"`
	Events            []Event            `json:"events"`
}

// AgentState is the mutable singleton constructed once at startup and passed
// by reference to every component that needs it.
type AgentState struct {
	mu sync.Mutex

	startedTs         float64
	killSwitchEnabled bool

	activeRoundID *int64
	roundCloseTs  *float64

	latestPrice  *float64
	latestTickTs *float64

	crossFeedPrice *float64
	crossFeedTs    *float64

	oddsSlug         string
	oddsTokenIDs     []string
	oddsYesPrice     *float64
	oddsNoPrice      *float64
	oddsLastUpdateTs *float64

	lastDecision map[string]any

	events      []Event
	paperTrades []map[string]any
}

// New creates the shared agent state
func New() *AgentState {
	return &AgentState{
		startedTs: float64(time.Now().UnixNano()) / 1e9,
	}
}

// SetRound records the active round id and close time
func (s *AgentState) SetRound(roundID int64, closeTs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRoundID = &roundID
	s.roundCloseTs = &closeTs
}

// SetTick records the latest observed price
func (s *AgentState) SetTick(price, tickTs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestPrice = &price
	s.latestTickTs = &tickTs
}

// LatestPrice returns the most recent tick price, if any
func (s *AgentState) LatestPrice() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestPrice
}

// SetCrossFeedPrice records the cross-check venue price used for divergence
func (s *AgentState) SetCrossFeedPrice(price, ts float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crossFeedPrice = &price
	s.crossFeedTs = &ts
}

// CrossFeedPrice returns the latest cross-check venue price, if any
func (s *AgentState) CrossFeedPrice() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crossFeedPrice
}

// SetDecision stores the last routed decision for the admin surface
func (s *AgentState) SetDecision(decision map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDecision = decision
}

// SetMarket resets the tracked market; prices clear until the next odds update
func (s *AgentState) SetMarket(slug string, tokenIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oddsSlug = slug
	s.oddsTokenIDs = append([]string(nil), tokenIDs...)
	s.oddsYesPrice = nil
	s.oddsNoPrice = nil
	s.oddsLastUpdateTs = nil
}

// SetOdds records the latest yes/no pricing
func (s *AgentState) SetOdds(yesPrice, noPrice *float64, updateTs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oddsYesPrice = yesPrice
	s.oddsNoPrice = noPrice
	s.oddsLastUpdateTs = &updateTs
}

// OddsSnapshot returns a copy of the tracked odds
func (s *AgentState) OddsSnapshot() types.OddsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.OddsSnapshot{
		Slug:         s.oddsSlug,
		TokenIDs:     append([]string(nil), s.oddsTokenIDs...),
		YesPrice:     s.oddsYesPrice,
		NoPrice:      s.oddsNoPrice,
		LastUpdateTs: s.oddsLastUpdateTs,
	}
}

// SetKillSwitch toggles the admission kill switch
func (s *AgentState) SetKillSwitch(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killSwitchEnabled = enabled
}

// IsKillSwitchEnabled reports whether new trade admissions are blocked
func (s *AgentState) IsKillSwitchEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killSwitchEnabled
}

// AddEvent appends to the bounded event ring
func (s *AgentState) AddEvent(level, message string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data == nil {
		data = map[string]any{}
	}
	s.events = append(s.events, Event{
		Ts:      float64(time.Now().UnixNano()) / 1e9,
		Level:   level,
		Message: message,
		Data:    data,
	})
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
}

// AddPaperTradeEntry appends to the bounded paper-trade ring
func (s *AgentState) AddPaperTradeEntry(entry map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paperTrades = append(s.paperTrades, entry)
	if len(s.paperTrades) > maxPaperEntries {
		s.paperTrades = s.paperTrades[len(s.paperTrades)-maxPaperEntries:]
	}
}

// PaperTradeEntries returns a copy of the recent paper-trade records
func (s *AgentState) PaperTradeEntries() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.paperTrades...)
}

// Snapshot returns a copy of everything the admin surface exposes
func (s *AgentState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		StartedTs:         s.startedTs,
		KillSwitchEnabled: s.killSwitchEnabled,
		ActiveRoundID:     s.activeRoundID,
		RoundCloseTs:      s.roundCloseTs,
		LatestPrice:       s.latestPrice,
		LatestTickTs:      s.latestTickTs,
		CrossFeedPrice:    s.crossFeedPrice,
		CrossFeedTs:       s.crossFeedTs,
		Odds: types.OddsSnapshot{
			Slug:         s.oddsSlug,
			TokenIDs:     append([]string(nil), s.oddsTokenIDs...),
			YesPrice:     s.oddsYesPrice,
			NoPrice:      s.oddsNoPrice,
			LastUpdateTs: s.oddsLastUpdateTs,
		},
		LastDecision: s.lastDecision,
		PaperTrades:  append([]map[string]any(nil), s.paperTrades...),
		Events:       append([]Event(nil), s.events...),
	}
}
