package feeds

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/0xferal/roundbot/types"
)

// ParseWindowSeconds converts a window label like "15m" into seconds.
func ParseWindowSeconds(window string) (int, error) {
	value := strings.ToLower(strings.TrimSpace(window))
	if value == "" {
		return 0, fmt.Errorf("window must not be empty")
	}

	unit := value[len(value)-1:]
	number, err := strconv.Atoi(value[:len(value)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: %w", window, err)
	}
	if number <= 0 {
		return 0, fmt.Errorf("window must be > 0")
	}

	factors := map[string]int{
		"s": 1,
		"m": 60,
		"h": 3600,
		"d": 86400,
	}
	factor, ok := factors[unit]
	if !ok {
		return 0, fmt.Errorf("unsupported window unit: %s", unit)
	}
	return number * factor, nil
}

// CandleBuilder aggregates ticks into fixed OHLCV buckets. AddTick returns
// the completed candle when a tick rolls into the next bucket.
type CandleBuilder struct {
	symbol        string
	window        string
	windowSeconds int
	current       *types.Candle
}

// NewCandleBuilder creates a candle builder for one symbol and window.
func NewCandleBuilder(symbol, window string, windowSeconds int) *CandleBuilder {
	return &CandleBuilder{
		symbol:        symbol,
		window:        window,
		windowSeconds: windowSeconds,
	}
}

// AddTick folds a tick into the current bucket. Out-of-order ticks that fall
// before the current bucket are dropped.
func (b *CandleBuilder) AddTick(tick types.Tick) *types.Candle {
	bucketStart := float64(int64(tick.Ts)/int64(b.windowSeconds)) * float64(b.windowSeconds)
	bucketEnd := bucketStart + float64(b.windowSeconds)

	if b.current == nil {
		b.current = b.newCandle(tick, bucketStart, bucketEnd)
		return nil
	}

	if bucketStart == b.current.StartTs {
		if tick.Price > b.current.High {
			b.current.High = tick.Price
		}
		if tick.Price < b.current.Low {
			b.current.Low = tick.Price
		}
		b.current.Close = tick.Price
		b.current.Volume += tick.Size
		return nil
	}

	if bucketStart < b.current.StartTs {
		return nil
	}

	closed := *b.current
	b.current = b.newCandle(tick, bucketStart, bucketEnd)
	return &closed
}

func (b *CandleBuilder) newCandle(tick types.Tick, startTs, endTs float64) *types.Candle {
	return &types.Candle{
		Symbol:  b.symbol,
		Window:  b.window,
		StartTs: startTs,
		EndTs:   endTs,
		Open:    tick.Price,
		High:    tick.Price,
		Low:     tick.Price,
		Close:   tick.Price,
		Volume:  tick.Size,
	}
}
