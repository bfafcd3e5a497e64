package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/perps/market"
)

// BollingerBands holds the lower, middle (SMA) and upper bands.
type BollingerBands struct {
	Lower  []float64
	Middle []float64
	Upper  []float64
}

// Bollinger uses the population standard deviation over the window.
func Bollinger(closes []float64, period int, k float64) (BollingerBands, error) {
	mid, err := SMA(closes, period)
	if err != nil {
		return BollingerBands{}, err
	}

	lower := nanSeries(len(closes))
	upper := nanSeries(len(closes))
	for i := period - 1; i < len(closes); i++ {
		if math.IsNaN(mid[i]) {
			continue
		}
		ss := 0.0
		for _, v := range closes[i-period+1 : i+1] {
			d := v - mid[i]
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(period))
		lower[i] = mid[i] - k*sd
		upper[i] = mid[i] + k*sd
	}
	return BollingerBands{Lower: lower, Middle: mid, Upper: upper}, nil
}

// FibLevels are retracement levels measured down from the rolling high.
type FibLevels struct {
	L236 []float64
	L500 []float64
	L618 []float64
	L786 []float64
}

func Fibonacci(candles []market.Candle, period int) (FibLevels, error) {
	if period <= 0 {
		return FibLevels{}, fmt.Errorf("period must be positive, got %d", period)
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
	}
	hi := RollingMax(highs, period)
	lo := RollingMin(lows, period)

	level := func(r float64) []float64 {
		out := nanSeries(len(candles))
		for i := range candles {
			if math.IsNaN(hi[i]) || math.IsNaN(lo[i]) {
				continue
			}
			out[i] = hi[i] - (hi[i]-lo[i])*r
		}
		return out
	}

	return FibLevels{
		L236: level(0.236),
		L500: level(0.5),
		L618: level(0.618),
		L786: level(0.786),
	}, nil
}
