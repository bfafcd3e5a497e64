package strategies

import (
	"math"

	"github.com/rustyeddy/perps/indicators"
)

// Regime classifies trend strength and direction from slow timeframe
// indicators.
type Regime int

const (
	Undetermined Regime = iota
	StrongTrendUp
	Rising
	SidewaysOrWeak
	Falling
	StrongTrendDown
)

func (r Regime) String() string {
	switch r {
	case StrongTrendUp:
		return "StrongTrendUp"
	case Rising:
		return "Rising"
	case SidewaysOrWeak:
		return "SidewaysOrWeak"
	case Falling:
		return "Falling"
	case StrongTrendDown:
		return "StrongTrendDown"
	default:
		return "Undetermined"
	}
}

func (r Regime) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

const (
	// StrongTrendADX separates strong trends from ordinary ones.
	StrongTrendADX = 25.0

	// MinMACDDivergence is the minimum MACD to signal distance, as a
	// percentage of the signal line, for MACD to count as directional.
	MinMACDDivergence = 10.0
)

// macdSignalRate is |MACD - signal| / |signal| * 100, or 0 on a zero
// signal line.
func macdSignalRate(f *indicators.Frame) float64 {
	sig := indicators.At(f.MACDSignal, 0)
	if sig == 0 {
		return 0
	}
	return math.Abs((indicators.At(f.MACD, 0) - sig) / sig * 100)
}

// Classify is a pure function of the frame. When both directions fire,
// up wins because it is checked first.
func Classify(f *indicators.Frame) Regime {
	if f.Len() < 3 {
		return Undetermined
	}

	at := indicators.At
	rate := macdSignalRate(f)

	risingMA := at(f.SMAShort, 0) > at(f.SMAMid, 0) && at(f.SMAMid, 0) > at(f.SMALong, 0) &&
		at(f.SMAShort, 0) > at(f.SMAShort, 1) &&
		at(f.SMAMid, 0) > at(f.SMAMid, 1)
	fallingMA := at(f.SMAShort, 0) < at(f.SMAMid, 0) && at(f.SMAMid, 0) < at(f.SMALong, 0) &&
		at(f.SMAShort, 0) < at(f.SMAShort, 1) &&
		at(f.SMAMid, 0) < at(f.SMAMid, 1)

	risingMACD := at(f.MACD, 0) > at(f.MACDSignal, 0) &&
		at(f.MACD, 0) > at(f.MACD, 1) && at(f.MACD, 1) > at(f.MACD, 2) &&
		rate > MinMACDDivergence
	fallingMACD := at(f.MACD, 0) < at(f.MACDSignal, 0) &&
		at(f.MACD, 0) < at(f.MACD, 1) && at(f.MACD, 1) < at(f.MACD, 2) &&
		rate > MinMACDDivergence

	up := risingMA || risingMACD
	down := fallingMA || fallingMACD

	if at(f.ADX, 0) > StrongTrendADX {
		switch {
		case up:
			return StrongTrendUp
		case down:
			return StrongTrendDown
		}
	} else {
		switch {
		case up:
			return Rising
		case down:
			return Falling
		}
	}
	return SidewaysOrWeak
}
