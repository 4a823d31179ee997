package review

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/0xferal/roundbot/state"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ROUND-CLOSE REVIEW - Post-mortem queue fed at every round close
// ═══════════════════════════════════════════════════════════════════════════════
//
// Round closes enqueue a review request; a single worker drains the queue so
// the trading loop never blocks on review work.
//
// ═══════════════════════════════════════════════════════════════════════════════

const queueDepth = 32

// Request identifies one closed round to review
type Request struct {
	MarketSlug   string
	RoundID      int64
	RoundOpenTs  time.Time
	RoundCloseTs time.Time
}

// Trigger owns the review queue and its worker
type Trigger struct {
	mu      sync.Mutex
	state   *state.AgentState
	queue   chan Request
	running bool
	stopCh  chan struct{}
}

// NewTrigger creates a review trigger bound to shared state
func NewTrigger(st *state.AgentState) *Trigger {
	return &Trigger{
		state:  st,
		queue:  make(chan Request, queueDepth),
		stopCh: make(chan struct{}),
	}
}

// Start launches the worker
func (t *Trigger) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	go t.worker()
	log.Info().Msg("🔍 Review trigger started")
}

// Stop shuts the worker down
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
	log.Info().Msg("Review trigger stopped")
}

// Enqueue submits a round for review without blocking; a full queue drops
// the request and reports false.
func (t *Trigger) Enqueue(req Request) bool {
	select {
	case t.queue <- req:
		return true
	default:
		log.Warn().Int64("round_id", req.RoundID).Msg("Review queue full, dropping request")
		return false
	}
}

func (t *Trigger) worker() {
	for {
		select {
		case <-t.stopCh:
			return
		case req := <-t.queue:
			t.process(req)
		}
	}
}

// process records the round-close snapshot for offline analysis
func (t *Trigger) process(req Request) {
	snapshot := t.state.Snapshot()
	t.state.AddEvent("info", "round_review_collected", map[string]any{
		"market_slug":    req.MarketSlug,
		"round_id":       req.RoundID,
		"round_open_ts":  req.RoundOpenTs.Unix(),
		"round_close_ts": req.RoundCloseTs.Unix(),
		"paper_trades":   len(snapshot.PaperTrades),
		"events":         len(snapshot.Events),
	})
	log.Info().
		Str("slug", req.MarketSlug).
		Int64("round_id", req.RoundID).
		Msg("🔍 Round review collected")
}
