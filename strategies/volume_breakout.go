package strategies

import (
	"fmt"

	"github.com/rustyeddy/perps/indicators"
)

// volumeBreakout catches the start of a surge with a long and its
// exhaustion with a short.
func volumeBreakout(in Input) Signal {
	d := derive(in)
	fib786 := indicators.At(in.Frame.Fib786, 0)

	const adxThreshold = 25.0

	enterLong := allOf(
		d.volume > d.volMA*1.5,
		d.hist > d.prevHist*1.2,
		d.close > fib786,
		d.pressure > 0.6,
		d.imbalance > 0.2,
		d.adx < adxThreshold,
		d.atr < d.atrMA*2,
	)
	enterShort := allOf(
		d.hist < d.prevHist*0.8,
		d.rsi > 70,
		d.close < d.emaFast,
		d.pressure < 0.45,
		d.imbalance < -0.2,
		d.adx > adxThreshold,
		d.atr < d.atrMA*2,
	)
	exitLong := anyOf(
		d.close < d.emaSlow,
		d.pressure < 0.4,
		d.atr > d.atrMA*2,
	)
	exitShort := anyOf(
		d.close > d.emaFast,
		d.pressure > 0.55,
		d.atr > d.atrMA*2,
	)

	reason := func(what string) string {
		return fmt.Sprintf("%s (VOL:%.1fx/MPR:%.2f)", what, d.volume/d.volMA, d.pressure)
	}

	switch {
	case enterLong:
		return open(in, EnterLong, reason("breakout long"))
	case enterShort:
		return open(in, EnterShort, reason("breakout exhausted short"))
	case d.amount > 0 && exitLong:
		return closeOut(in, ExitLong, reason("breakout over"), true)
	case d.amount < 0 && exitShort:
		return closeOut(in, ExitShort, reason("breakout resumed"), true)
	}
	return hold()
}
