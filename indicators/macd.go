package indicators

import (
	"fmt"
	"math"
)

// MACDSeries is the MACD line, its signal line and the histogram
// (MACD minus signal).
type MACDSeries struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

func MACD(closes []float64, fast, slow, signal int) (MACDSeries, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return MACDSeries{}, fmt.Errorf("periods must be positive, got %d/%d/%d", fast, slow, signal)
	}
	if fast >= slow {
		return MACDSeries{}, fmt.Errorf("fast period %d must be below slow period %d", fast, slow)
	}

	ef, _ := EMA(closes, fast)
	es, _ := EMA(closes, slow)

	line := nanSeries(len(closes))
	for i := range closes {
		if math.IsNaN(ef[i]) || math.IsNaN(es[i]) {
			continue
		}
		line[i] = ef[i] - es[i]
	}

	sig, _ := EMA(line, signal)
	hist := nanSeries(len(closes))
	for i := range closes {
		if math.IsNaN(line[i]) || math.IsNaN(sig[i]) {
			continue
		}
		hist[i] = line[i] - sig[i]
	}

	return MACDSeries{MACD: line, Signal: sig, Histogram: hist}, nil
}
