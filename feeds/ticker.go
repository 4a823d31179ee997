package feeds

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/0xferal/roundbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE TICKER FEED - Live trade prints over WebSocket
// ═══════════════════════════════════════════════════════════════════════════════
//
// Streams individual trades for the reference symbol. Supports the Binance
// trade stream and a generic custom stream that sends {ts, price, size}
// JSON objects.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	binanceWSBase    = "wss://stream.binance.com:9443/ws"
	tickerReconnect  = 5 * time.Second
	tickerReadLimit  = 1 << 20
	tickerBufferSize = 1000
)

// TickerFeed maintains a WebSocket connection to a trade stream
type TickerFeed struct {
	mu sync.RWMutex

	wsURL        string
	stream       string // binance | custom
	symbol       string
	pingInterval time.Duration

	conn      *websocket.Conn
	connected bool
	running   bool
	stopCh    chan struct{}

	subscribers []chan types.Tick
}

// NewTickerFeed creates a ticker feed for one symbol.
// For the binance stream the URL is derived from the symbol; for a custom
// stream wsURL is used verbatim.
func NewTickerFeed(stream, symbol, wsURL string, pingIntervalSec int) *TickerFeed {
	if stream == "binance" {
		wsURL = fmt.Sprintf("%s/%s@trade", binanceWSBase, strings.ToLower(symbol))
	}
	return &TickerFeed{
		wsURL:        wsURL,
		stream:       stream,
		symbol:       symbol,
		pingInterval: time.Duration(pingIntervalSec) * time.Second,
		stopCh:       make(chan struct{}),
		subscribers:  make([]chan types.Tick, 0),
	}
}

// Start connects and begins streaming trades
func (f *TickerFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.connectionLoop()
	log.Info().Str("symbol", f.symbol).Str("stream", f.stream).Msg("📡 Ticker feed started")
}

// Stop closes the connection
func (f *TickerFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}

	f.running = false
	close(f.stopCh)

	if f.conn != nil {
		f.conn.Close()
	}

	log.Info().Msg("Ticker feed stopped")
}

// Subscribe returns a channel that receives ticks
func (f *TickerFeed) Subscribe() chan types.Tick {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan types.Tick, tickerBufferSize)
	f.subscribers = append(f.subscribers, ch)
	return ch
}

// IsConnected reports whether the WebSocket is currently up
func (f *TickerFeed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// connectionLoop maintains the WebSocket connection
func (f *TickerFeed) connectionLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if err := f.connect(); err != nil {
			log.Error().Err(err).Str("url", f.wsURL).Msg("Ticker connection failed, retrying...")
			time.Sleep(tickerReconnect)
			continue
		}

		f.readLoop()

		f.mu.Lock()
		f.connected = false
		f.mu.Unlock()

		select {
		case <-f.stopCh:
			return
		default:
			time.Sleep(tickerReconnect)
		}
	}
}

// connect establishes the WebSocket connection
func (f *TickerFeed) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(tickerReadLimit)

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()

	log.Info().Str("symbol", f.symbol).Msg("🔌 Ticker WebSocket connected")

	go f.pingLoop(conn)
	return nil
}

// pingLoop keeps the connection alive
func (f *TickerFeed) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.mu.Lock()
			if f.conn != conn {
				f.mu.Unlock()
				return
			}
			err := conn.WriteMessage(websocket.PingMessage, nil)
			f.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// readLoop processes incoming messages until the connection drops
func (f *TickerFeed) readLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		_, message, err := f.conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("Ticker read error, reconnecting")
			f.conn.Close()
			return
		}

		tick, ok := f.parseTick(message)
		if !ok {
			continue
		}
		f.broadcast(tick)
	}
}

// binanceTrade is the Binance @trade stream payload
type binanceTrade struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"` // milliseconds
}

// customTrade is the generic custom stream payload
type customTrade struct {
	Ts    float64 `json:"ts"`
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

func (f *TickerFeed) parseTick(message []byte) (types.Tick, bool) {
	if f.stream == "binance" {
		var t binanceTrade
		if err := json.Unmarshal(message, &t); err != nil || t.EventType != "trade" {
			return types.Tick{}, false
		}
		price, err := strconv.ParseFloat(t.Price, 64)
		if err != nil || price <= 0 {
			return types.Tick{}, false
		}
		size, _ := strconv.ParseFloat(t.Quantity, 64)
		return types.Tick{
			Ts:     float64(t.TradeTime) / 1000.0,
			Symbol: f.symbol,
			Price:  price,
			Size:   size,
		}, true
	}

	var t customTrade
	if err := json.Unmarshal(message, &t); err != nil || t.Price <= 0 {
		return types.Tick{}, false
	}
	ts := t.Ts
	if ts == 0 {
		ts = float64(time.Now().UnixNano()) / 1e9
	}
	return types.Tick{Ts: ts, Symbol: f.symbol, Price: t.Price, Size: t.Size}, true
}

// broadcast sends the tick to all subscribers
func (f *TickerFeed) broadcast(tick types.Tick) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ch := range f.subscribers {
		select {
		case ch <- tick:
		default:
			// Channel full, skip
		}
	}
}
