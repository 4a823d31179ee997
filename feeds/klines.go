package feeds

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// KLINES - Round-open reference price from the venue's candle endpoint
// ═══════════════════════════════════════════════════════════════════════════════

// klineIntervals maps supported round lengths to venue interval labels
var klineIntervals = map[int]string{
	60:   "1m",
	300:  "5m",
	900:  "15m",
	1800: "30m",
	3600: "1h",
}

// KlinesClient fetches round-open prices over REST
type KlinesClient struct {
	url    string
	client *http.Client
}

// NewKlinesClient creates a klines client for the given endpoint
func NewKlinesClient(url string) *KlinesClient {
	return &KlinesClient{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// FetchRoundOpenPrice returns the open of the candle starting at
// roundStartTs, or nil when the round length has no matching interval or
// the endpoint cannot serve it.
func (c *KlinesClient) FetchRoundOpenPrice(symbol string, roundStartTs float64, roundSeconds int) *float64 {
	interval, ok := klineIntervals[roundSeconds]
	if !ok {
		return nil
	}

	url := fmt.Sprintf("%s?symbol=%s&interval=%s&startTime=%d&limit=1",
		c.url, symbol, interval, int64(roundStartTs*1000))

	resp, err := c.client.Get(url)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}

	// Kline rows are heterogenous arrays; the open price is index 1
	var payload [][]any
	if err := json.Unmarshal(body, &payload); err != nil || len(payload) == 0 {
		return nil
	}
	row := payload[0]
	if len(row) < 2 {
		return nil
	}

	openRaw, ok := row[1].(string)
	if !ok {
		return nil
	}
	open, err := strconv.ParseFloat(openRaw, 64)
	if err != nil {
		return nil
	}
	return &open
}
