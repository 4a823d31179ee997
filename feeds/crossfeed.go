package feeds

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/0xferal/roundbot/state"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CROSS FEED - Secondary venue price used for divergence checks
// ═══════════════════════════════════════════════════════════════════════════════

const crossFeedInterval = 2 * time.Second

// CrossFeed polls a REST ticker endpoint and mirrors the price into state
type CrossFeed struct {
	mu      sync.Mutex
	url     string
	symbol  string
	state   *state.AgentState
	client  *http.Client
	running bool
	stopCh  chan struct{}
}

// NewCrossFeed creates a cross feed poller
func NewCrossFeed(url, symbol string, st *state.AgentState) *CrossFeed {
	return &CrossFeed{
		url:    url,
		symbol: symbol,
		state:  st,
		client: &http.Client{Timeout: 4 * time.Second},
		stopCh: make(chan struct{}),
	}
}

// Start begins polling
func (f *CrossFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.pollLoop()
	log.Info().Str("symbol", f.symbol).Dur("interval", crossFeedInterval).Msg("📈 Cross feed started")
}

// Stop stops the poller
func (f *CrossFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
	log.Info().Msg("Cross feed stopped")
}

func (f *CrossFeed) pollLoop() {
	ticker := time.NewTicker(crossFeedInterval)
	defer ticker.Stop()

	f.fetchOnce()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.fetchOnce()
		}
	}
}

func (f *CrossFeed) fetchOnce() {
	price, err := f.fetchPrice()
	if err != nil {
		log.Debug().Err(err).Msg("Cross feed fetch failed")
		return
	}
	f.state.SetCrossFeedPrice(price, float64(time.Now().UnixNano())/1e9)
}

func (f *CrossFeed) fetchPrice() (float64, error) {
	url := fmt.Sprintf("%s?symbol=%s", f.url, f.symbol)

	resp, err := f.client.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("cross feed status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var result struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(result.Price, 64)
}
