package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/perps/market"
)

// ATR calculates the Average True Range series for the given period using
// Wilder's smoothing. The first candle has no true range.
func ATR(candles []market.Candle, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	return rma(trueRanges(candles), period), nil
}

func trueRanges(candles []market.Candle) []float64 {
	out := nanSeries(len(candles))
	for i := 1; i < len(candles); i++ {
		out[i] = trueRange(candles[i], candles[i-1])
	}
	return out
}

// trueRange calculates the True Range for a candle given the previous candle
func trueRange(current, previous market.Candle) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)

	return math.Max(highLow, math.Max(highClose, lowClose))
}
