package strategies

import "fmt"

// meanReversion fades Bollinger band breaks with RSI extremes inside
// sideways markets.
func meanReversion(in Input) Signal {
	d := derive(in)

	const (
		rsiLower = 35.0
		rsiUpper = 65.0
	)

	enterLong := allOf(
		d.close < d.bbLower,
		d.rsi < rsiLower,
		d.volumeTrend,
		d.pressure > 0.55 && d.imbalance > 0.2,
		d.atr < d.atrMA*1.5,
	)
	enterShort := allOf(
		d.close > d.bbUpper,
		d.rsi > rsiUpper,
		d.volumeTrend,
		d.pressure < 0.45 && d.imbalance < -0.2,
		d.atr < d.atrMA*1.5,
	)
	exitLong := allOf(
		d.close > d.bbMiddle,
		d.rsi > rsiUpper,
		d.pressure < 0.5,
		d.atr > d.atrMA*2,
	)
	exitShort := allOf(
		d.close < d.bbMiddle,
		d.rsi < rsiLower,
		d.pressure > 0.5,
		d.atr > d.atrMA*2,
	)

	switch {
	case enterLong:
		return open(in, EnterLong, fmt.Sprintf("lower band reversal (RSI:%.1f/MPR:%.2f)", d.rsi, d.pressure))
	case enterShort:
		return open(in, EnterShort, fmt.Sprintf("upper band reversal (RSI:%.1f/MPR:%.2f)", d.rsi, d.pressure))
	case d.amount > 0 && exitLong:
		return closeOut(in, ExitLong, fmt.Sprintf("back to middle band (RSI:%.1f/MPR:%.2f)", d.rsi, d.pressure), true)
	case d.amount < 0 && exitShort:
		return closeOut(in, ExitShort, fmt.Sprintf("back to middle band (RSI:%.1f/MPR:%.2f)", d.rsi, d.pressure), true)
	}
	return hold()
}
