package market

import "time"

// Candle represents OHLCV (Open, High, Low, Close, Volume) candlestick data
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Timeframe identifies one of the two candle series kept per instrument.
type Timeframe int

const (
	Fast Timeframe = iota
	Slow
)

func (tf Timeframe) String() string {
	if tf == Slow {
		return "slow"
	}
	return "fast"
}

// CandleWindow is a capacity-bounded sliding window of candles ordered by
// strictly increasing OpenTime. The last entry may still be forming and is
// replaced in place until a closed update for the same OpenTime arrives.
//
// CandleWindow is not safe for concurrent use; the owner guards it.
type CandleWindow struct {
	capacity int
	candles  []Candle
	forming  bool
}

// NewCandleWindow returns an empty window holding at most capacity candles.
func NewCandleWindow(capacity int) *CandleWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &CandleWindow{
		capacity: capacity,
		candles:  make([]Candle, 0, capacity+1),
	}
}

// Apply merges a streamed candle into the window.
//
// A still-forming candle replaces the last entry when the open times match
// and is appended otherwise. A closed candle replaces the matching forming
// entry (or is appended) and becomes immutable. Updates older than the last
// entry are ignored. It reports whether the window changed.
func (w *CandleWindow) Apply(c Candle, closed bool) bool {
	n := len(w.candles)
	if n > 0 {
		last := w.candles[n-1]
		switch {
		case c.OpenTime.Before(last.OpenTime):
			return false
		case c.OpenTime.Equal(last.OpenTime):
			if !w.forming {
				return false
			}
			w.candles[n-1] = c
			w.forming = !closed
			return true
		}
	}

	w.candles = append(w.candles, c)
	w.forming = !closed
	w.evict()
	return true
}

// Reset replaces the window contents with the given candles, keeping only
// the most recent capacity entries. Out of order entries are skipped and the
// final candle is treated as forming.
func (w *CandleWindow) Reset(candles []Candle) {
	w.candles = w.candles[:0]
	for _, c := range candles {
		if n := len(w.candles); n > 0 && !c.OpenTime.After(w.candles[n-1].OpenTime) {
			continue
		}
		w.candles = append(w.candles, c)
	}
	w.evict()
	w.forming = len(w.candles) > 0
}

func (w *CandleWindow) evict() {
	if over := len(w.candles) - w.capacity; over > 0 {
		w.candles = append(w.candles[:0], w.candles[over:]...)
	}
}

// Candles returns a copy of the window contents.
func (w *CandleWindow) Candles() []Candle {
	out := make([]Candle, len(w.candles))
	copy(out, w.candles)
	return out
}

// Last returns the newest candle.
func (w *CandleWindow) Last() (Candle, bool) {
	if len(w.candles) == 0 {
		return Candle{}, false
	}
	return w.candles[len(w.candles)-1], true
}

func (w *CandleWindow) Len() int { return len(w.candles) }
func (w *CandleWindow) Cap() int { return w.capacity }
