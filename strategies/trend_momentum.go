package strategies

import "fmt"

// trendMomentum follows sustained trends in both directions. The ADX bar
// is higher while the regime is a strong uptrend.
func trendMomentum(in Input) Signal {
	d := derive(in)

	adxThreshold := 22.0
	if in.Regime == StrongTrendUp {
		adxThreshold = 25.0
	}

	enterLong := allOf(
		d.emaSlow > d.emaFast,
		d.adx > adxThreshold,
		d.volumeTrend,
		d.pressure > 0.55 && d.bidDepth > d.askDepth*1.2,
		d.atr < d.atrMA*1.5,
	)
	enterShort := allOf(
		d.emaSlow < d.emaFast,
		d.adx > adxThreshold,
		d.rsi > 70,
		d.pressure < 0.45 && d.askDepth > d.bidDepth*1.2,
		d.atr < d.atrMA*1.5,
	)
	exitLong := allOf(
		d.close < d.emaFast,
		d.pressure < 0.45,
		d.atr > d.atrMA*2,
	)
	exitShort := allOf(
		d.close > d.emaFast,
		d.pressure > 0.55,
		d.atr > d.atrMA*2,
	)

	switch {
	case enterLong:
		return open(in, EnterLong, fmt.Sprintf("uptrend (ADX:%.1f/MPR:%.2f)", d.adx, d.pressure))
	case enterShort:
		return open(in, EnterShort, fmt.Sprintf("downtrend (ADX:%.1f/MPR:%.2f)", d.adx, d.pressure))
	case d.amount > 0 && exitLong:
		return closeOut(in, ExitLong, fmt.Sprintf("uptrend fading (ADX:%.1f/MPR:%.2f)", d.adx, d.pressure), true)
	case d.amount < 0 && exitShort:
		return closeOut(in, ExitShort, fmt.Sprintf("downtrend fading (ADX:%.1f/MPR:%.2f)", d.adx, d.pressure), true)
	}
	return hold()
}
