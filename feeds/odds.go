package feeds

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/0xferal/roundbot/state"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POLYMARKET ODDS TRACKER - yes/no pricing for the active up/down market
// ═══════════════════════════════════════════════════════════════════════════════
//
// Discovers the active round market by slug, subscribes to its tokens over
// the CLOB WebSocket and pushes yes/no prices into shared state. Every
// refresh interval the connection is torn down and discovery runs again so
// the tracker rolls into the next round's market automatically.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	gammaBaseURL         = "https://gamma-api.polymarket.com"
	oddsReconnectDelay   = 2 * time.Second
	oddsRecvTimeout      = 500 * time.Millisecond
	refPriceLookupWindow = 5 * time.Second
	minTokenIDDigits     = 8
)

// ActiveMarket identifies the round market currently being tracked
type ActiveMarket struct {
	Slug     string
	TokenIDs []string
}

// OddsTrackerConfig configures market discovery and move logging
type OddsTrackerConfig struct {
	WSURL                 string
	MarketSymbol          string // e.g. BTC
	CandleWindow          string // e.g. 15m
	WindowSeconds         int
	RefreshSeconds        int
	MoveThresholdPct      float64
	MoveMinAbsDelta       float64
	MoveLogCooldownSec    float64
	ReferencePriceRESTURL string
}

// OddsTracker follows the active market's yes/no odds
type OddsTracker struct {
	mu      sync.Mutex
	cfg     OddsTrackerConfig
	state   *state.AgentState
	running bool
	stopCh  chan struct{}

	lastLoggedYesPrice *float64
	lastLoggedNoPrice  *float64
	lastMoveEventTs    float64
	lastKnownRefPrice  *float64
	lastRefLookupTs    time.Time
}

// NewOddsTracker creates an odds tracker bound to shared state
func NewOddsTracker(cfg OddsTrackerConfig, st *state.AgentState) *OddsTracker {
	return &OddsTracker{
		cfg:    cfg,
		state:  st,
		stopCh: make(chan struct{}),
	}
}

// Start begins market discovery and streaming
func (t *OddsTracker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	go t.run()
	log.Info().Str("symbol", t.cfg.MarketSymbol).Msg("🎰 Odds tracker started")
}

// Stop shuts the tracker down
func (t *OddsTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
	log.Info().Msg("Odds tracker stopped")
}

func (t *OddsTracker) run() {
	var lastMarketKey string

	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		market, err := t.findActiveMarket()
		if err != nil || market == nil {
			log.Warn().Err(err).Int("retry_s", t.cfg.RefreshSeconds).Msg("No active odds market found; retrying")
			t.sleep(time.Duration(t.cfg.RefreshSeconds) * time.Second)
			continue
		}

		key := market.Slug + "|" + strings.Join(market.TokenIDs, ",")
		if key != lastMarketKey {
			log.Info().Str("slug", market.Slug).Msg("🎯 Active odds market")
			t.state.SetMarket(market.Slug, market.TokenIDs)
			t.state.AddEvent("info", "odds_market_detected", map[string]any{
				"slug":      market.Slug,
				"token_ids": market.TokenIDs,
			})
			lastMarketKey = key
		}

		if err := t.streamMarket(market); err != nil {
			log.Warn().Err(err).Msg("Odds tracker error; reconnecting")
			t.sleep(oddsReconnectDelay)
		}
	}
}

// streamMarket subscribes to one market until the refresh interval elapses
func (t *OddsTracker) streamMarket(market *ActiveMarket) error {
	yesToken := market.TokenIDs[0]
	noToken := market.TokenIDs[1]
	var yesPrice, noPrice *float64

	conn, _, err := websocket.DefaultDialer.Dial(t.cfg.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]any{
		"type":       "market",
		"assets_ids": market.TokenIDs,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	log.Info().Int("tokens", len(market.TokenIDs)).Msg("🔌 Odds WebSocket subscribed")

	deadline := time.Now().Add(time.Duration(t.cfg.RefreshSeconds) * time.Second)
	for {
		select {
		case <-t.stopCh:
			return nil
		default:
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining < oddsRecvTimeout {
			remaining = oddsRecvTimeout
		}
		conn.SetReadDeadline(time.Now().Add(remaining))

		_, message, err := conn.ReadMessage()
		if err != nil {
			// Read deadlines end the subscription window cleanly
			if netTimeout(err) {
				return nil
			}
			return err
		}

		updates := extractPriceUpdates(message)
		if len(updates) == 0 {
			continue
		}

		for _, u := range updates {
			price := u.Price
			switch u.AssetID {
			case yesToken:
				yesPrice = &price
			case noToken:
				noPrice = &price
			}
		}

		nowTs := float64(time.Now().UnixNano()) / 1e9
		t.state.SetOdds(yesPrice, noPrice, nowTs)

		refPrice := t.resolveReferencePrice()
		if event := t.buildMoveEvent(market.Slug, yesPrice, noPrice, refPrice, nowTs); event != nil {
			event["ts"] = nowTs
			t.state.AddEvent("info", "odds_move", event)
		}
	}
}

// findActiveMarket probes the slug candidates around the current window
func (t *OddsTracker) findActiveMarket() (*ActiveMarket, error) {
	window := int64(t.cfg.WindowSeconds)
	aligned := (time.Now().Unix() / window) * window
	candidates := []int64{aligned, aligned - window, aligned - 2*window, aligned + window}

	client := &http.Client{Timeout: 5 * time.Second}
	prefix := strings.ToLower(t.cfg.MarketSymbol)

	for _, ts := range candidates {
		slug := fmt.Sprintf("%s-updown-%s-%d", prefix, t.cfg.CandleWindow, ts)
		tokenIDs, err := t.lookupSlug(client, slug)
		if err != nil {
			continue
		}
		if len(tokenIDs) >= 2 {
			return &ActiveMarket{Slug: slug, TokenIDs: tokenIDs[:2]}, nil
		}
	}
	return nil, nil
}

func (t *OddsTracker) lookupSlug(client *http.Client, slug string) ([]string, error) {
	resp, err := client.Get(fmt.Sprintf("%s/markets/slug/%s", gammaBaseURL, slug))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gamma lookup %s: status %d", slug, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var tokenIDs []string
	collectTokenIDs(payload, false, seen, &tokenIDs)
	return tokenIDs, nil
}

// collectTokenIDs walks arbitrary Gamma payloads pulling out CLOB token ids.
// Token ids surface under token/asset keys, sometimes as JSON-encoded strings.
func collectTokenIDs(value any, underTokenKey bool, seen map[string]bool, out *[]string) {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if underTokenKey && isTokenID(trimmed) {
			if !seen[trimmed] {
				seen[trimmed] = true
				*out = append(*out, trimmed)
			}
			return
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				collectTokenIDs(parsed, underTokenKey, seen, out)
			}
		}
	case []any:
		for _, entry := range v {
			collectTokenIDs(entry, underTokenKey, seen, out)
		}
	case map[string]any:
		for key, entry := range v {
			normalized := strings.ToLower(key)
			tokenKey := strings.Contains(normalized, "token") || strings.Contains(normalized, "asset")
			collectTokenIDs(entry, tokenKey, seen, out)
		}
	}
}

func isTokenID(s string) bool {
	if len(s) < minTokenIDDigits {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// PriceUpdate is one asset price extracted from a CLOB message
type PriceUpdate struct {
	AssetID string
	Price   float64
}

// extractPriceUpdates walks any CLOB payload shape for asset_id/price pairs
func extractPriceUpdates(message []byte) []PriceUpdate {
	var payload any
	if err := json.Unmarshal(message, &payload); err != nil {
		return nil
	}

	var updates []PriceUpdate
	var collect func(value any)
	collect = func(value any) {
		switch v := value.(type) {
		case []any:
			for _, item := range v {
				collect(item)
			}
		case map[string]any:
			assetID, _ := v["asset_id"].(string)
			priceRaw := v["price"]
			if priceRaw == nil {
				priceRaw = v["p"]
			}
			if assetID != "" && priceRaw != nil {
				if price, ok := toFloat(priceRaw); ok {
					updates = append(updates, PriceUpdate{AssetID: assetID, Price: price})
				}
			}
			for _, child := range v {
				switch child.(type) {
				case map[string]any, []any:
					collect(child)
				}
			}
		}
	}
	collect(payload)
	return updates
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

// buildMoveEvent returns a move event when either side shifted materially
func (t *OddsTracker) buildMoveEvent(slug string, yesPrice, noPrice, refPrice *float64, nowTs float64) map[string]any {
	if nowTs-t.lastMoveEventTs < t.cfg.MoveLogCooldownSec {
		return nil
	}

	thresholdRatio := t.cfg.MoveThresholdPct / 100.0
	yesChanged := sideChanged(yesPrice, t.lastLoggedYesPrice, thresholdRatio, t.cfg.MoveMinAbsDelta)
	noChanged := sideChanged(noPrice, t.lastLoggedNoPrice, thresholdRatio, t.cfg.MoveMinAbsDelta)
	if !yesChanged && !noChanged {
		return nil
	}

	event := map[string]any{
		"slug":      slug,
		"price":     refPrice,
		"yes_price": yesPrice,
		"no_price":  noPrice,
		"yes_from":  t.lastLoggedYesPrice,
		"yes_to":    yesPrice,
		"no_from":   t.lastLoggedNoPrice,
		"no_to":     noPrice,
	}

	if yesPrice != nil {
		t.lastLoggedYesPrice = yesPrice
	}
	if noPrice != nil {
		t.lastLoggedNoPrice = noPrice
	}
	t.lastMoveEventTs = nowTs
	return event
}

func sideChanged(current, previous *float64, thresholdRatio, minAbsDelta float64) bool {
	if current == nil {
		return false
	}
	if previous == nil {
		return true
	}
	if *previous == 0 {
		return *current != 0
	}
	absDelta := math.Abs(*current - *previous)
	relDelta := absDelta / math.Abs(*previous)
	return relDelta >= thresholdRatio || absDelta >= minAbsDelta
}

// resolveReferencePrice reuses the live tick price when present, falling
// back to a throttled REST lookup
func (t *OddsTracker) resolveReferencePrice() *float64 {
	if price := t.state.LatestPrice(); price != nil {
		t.lastKnownRefPrice = price
		return price
	}

	if time.Since(t.lastRefLookupTs) < refPriceLookupWindow {
		return t.lastKnownRefPrice
	}
	t.lastRefLookupTs = time.Now()

	if t.cfg.ReferencePriceRESTURL == "" {
		return t.lastKnownRefPrice
	}

	client := &http.Client{Timeout: 4 * time.Second}
	resp, err := client.Get(t.cfg.ReferencePriceRESTURL)
	if err != nil {
		return t.lastKnownRefPrice
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return t.lastKnownRefPrice
	}

	var result struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return t.lastKnownRefPrice
	}
	price, err := strconv.ParseFloat(result.Price, 64)
	if err != nil {
		return t.lastKnownRefPrice
	}

	t.lastKnownRefPrice = &price
	t.state.SetCrossFeedPrice(price, float64(time.Now().UnixNano())/1e9)
	return t.lastKnownRefPrice
}

func (t *OddsTracker) sleep(d time.Duration) {
	select {
	case <-t.stopCh:
	case <-time.After(d):
	}
}

func netTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
