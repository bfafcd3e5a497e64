package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/perps/market"
)

// DirectionalIndex holds Wilder's ADX with its +DI (DMP) and -DI (DMN)
// components.
type DirectionalIndex struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX implements Wilder's Average Directional Index (trend strength).
func ADX(candles []market.Candle, period int) (DirectionalIndex, error) {
	if period <= 0 {
		return DirectionalIndex{}, fmt.Errorf("period must be positive, got %d", period)
	}

	n := len(candles)
	pdm := nanSeries(n)
	mdm := nanSeries(n)
	for i := 1; i < n; i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low

		pdm[i], mdm[i] = 0, 0
		if upMove > downMove && upMove > 0 {
			pdm[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			mdm[i] = downMove
		}
	}

	atr := rma(trueRanges(candles), period)
	spdm := rma(pdm, period)
	smdm := rma(mdm, period)

	plus := nanSeries(n)
	minus := nanSeries(n)
	dx := nanSeries(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(atr[i]) || atr[i] == 0 {
			continue
		}
		plus[i] = 100 * spdm[i] / atr[i]
		minus[i] = 100 * smdm[i] / atr[i]
		if sum := plus[i] + minus[i]; sum > 0 {
			dx[i] = 100 * math.Abs(plus[i]-minus[i]) / sum
		} else {
			dx[i] = 0
		}
	}

	return DirectionalIndex{
		ADX:     rma(dx, period),
		PlusDI:  plus,
		MinusDI: minus,
	}, nil
}
