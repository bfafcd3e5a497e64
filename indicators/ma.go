package indicators

import (
	"fmt"
	"math"
)

// SMA calculates the Simple Moving Average series for the given period.
// The result has the same length as values; entries before the first full
// window are NaN.
func SMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	return RollingMean(values, period), nil
}

// EMA calculates the Exponential Moving Average series for the given period.
// The first value is seeded with the SMA of the first period values.
func EMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	out := nanSeries(len(values))

	start := firstValid(values)
	if start < 0 || len(values)-start < period {
		return out, nil
	}

	multiplier := 2.0 / float64(period+1)

	sma := 0.0
	for i := start; i < start+period; i++ {
		sma += values[i]
	}
	ema := sma / float64(period)
	out[start+period-1] = ema

	for i := start + period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out[i] = ema
	}
	return out, nil
}

// rma is Wilder's moving average, seeded with the SMA of the first period
// valid values.
func rma(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	start := firstValid(values)
	if start < 0 || len(values)-start < period {
		return out
	}

	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	avg := sum / float64(period)
	out[start+period-1] = avg

	for i := start + period; i < len(values); i++ {
		avg = (avg*float64(period-1) + values[i]) / float64(period)
		out[i] = avg
	}
	return out
}

// RollingMean is the mean of the last n values at every index. Any NaN in
// the window yields NaN.
func RollingMean(values []float64, n int) []float64 {
	return rolling(values, n, func(w []float64) float64 {
		s := 0.0
		for _, v := range w {
			s += v
		}
		return s / float64(len(w))
	})
}

func RollingMax(values []float64, n int) []float64 {
	return rolling(values, n, func(w []float64) float64 {
		m := math.Inf(-1)
		for _, v := range w {
			m = math.Max(m, v)
		}
		return m
	})
}

func RollingMin(values []float64, n int) []float64 {
	return rolling(values, n, func(w []float64) float64 {
		m := math.Inf(1)
		for _, v := range w {
			m = math.Min(m, v)
		}
		return m
	})
}

// Diff returns values[i] - values[i-1]; the first entry is NaN.
func Diff(values []float64) []float64 {
	out := nanSeries(len(values))
	for i := 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	return out
}

func rolling(values []float64, n int, fn func([]float64) float64) []float64 {
	out := nanSeries(len(values))
	if n <= 0 {
		return out
	}
	for i := n - 1; i < len(values); i++ {
		w := values[i-n+1 : i+1]
		if hasNaN(w) {
			continue
		}
		out[i] = fn(w)
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func firstValid(values []float64) int {
	for i, v := range values {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
