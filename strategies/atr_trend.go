package strategies

import (
	"fmt"
	"math"

	"github.com/rustyeddy/perps/indicators"
)

// atrTrendFollow rides volatility expansions in strong trends. Shorts are
// preferred because it runs in falling regimes.
func atrTrendFollow(in Input) Signal {
	f := in.Frame
	d := derive(in)
	at := indicators.At

	const depthRatio = 1.8

	strong := d.adx > 32 && d.atr > d.atrMA*1.4
	width := d.bbUpper - d.bbLower
	widening := width > 2*indicators.MeanAt(indicators.Diff(f.BBUpper), 5, 0)

	l0, l1, l2 := at(f.Low, 0), at(f.Low, 1), at(f.Low, 2)
	h0, h1, h2 := at(f.High, 0), at(f.High, 1), at(f.High, 2)
	lowsFalling := l2 >= l1 && l1 >= l0
	highsRising := h2 <= h1 && h1 <= h0

	enterShort := allOf(
		strong, widening, lowsFalling,
		d.close < d.bbMiddle,
		d.pressure < 0.45,
		d.askDepth > d.bidDepth*depthRatio,
	)
	enterLong := allOf(
		strong, widening, highsRising,
		d.close > d.bbMiddle,
		d.pressure > 0.55,
		d.bidDepth > d.askDepth*depthRatio,
	)
	exitShort := allOf(
		d.atr < d.atrMA*0.8,
		d.adx < 27,
		d.close > d.bbMiddle,
		d.pressure > 0.55,
	)
	exitLong := allOf(
		d.atr < d.atrMA*0.8,
		d.adx < 27,
		d.close < d.bbMiddle,
		d.pressure < 0.45,
	)
	emergency := d.amount > 0 &&
		d.atr > d.atrMA*2.5 &&
		math.Abs(d.close-d.avg) > d.close*0.05

	reason := func(what string) string {
		return fmt.Sprintf("%s (ADX:%.1f/ATR:%.2fx/MPR:%.2f)", what, d.adx, d.atr/d.atrMA, d.pressure)
	}

	switch {
	case enterShort:
		return open(in, EnterShort, reason("volatility breakdown"))
	case enterLong:
		return open(in, EnterLong, reason("volatility breakout"))
	case d.amount < 0 && exitShort:
		return closeOut(in, ExitShort, reason("volatility contracting"), true)
	case d.amount > 0 && exitLong:
		return closeOut(in, ExitLong, reason("volatility contracting"), true)
	case emergency && in.canClose():
		return closeOut(in, ExitLong, reason("volatility spike"), true)
	}
	return hold()
}
