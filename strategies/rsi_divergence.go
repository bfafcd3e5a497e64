package strategies

import (
	"fmt"

	"github.com/rustyeddy/perps/indicators"
)

// rsiDivergence trades one-bar RSI divergences at the Bollinger bands.
func rsiDivergence(in Input) Signal {
	f := in.Frame
	d := derive(in)
	at := indicators.At

	rsi1, close1 := at(f.RSI, 1), at(f.Close, 1)
	bullish := d.rsi > rsi1 && d.close < close1
	bearish := d.rsi < rsi1 && d.close > close1

	const adxThreshold = 25.0

	enterLong := allOf(
		bullish,
		d.rsi < 30,
		d.close < d.bbLower,
		d.pressure > 0.5,
		d.bidDepth > d.askDepth*1.5,
		d.volumeTrend,
		d.adx < adxThreshold,
		d.atr < d.atrMA*1.5,
	)
	enterShort := allOf(
		bearish,
		d.rsi > 70,
		d.close > d.bbUpper,
		d.pressure < 0.45,
		d.askDepth > d.bidDepth*1.5,
		d.volumeTrend,
		d.adx < adxThreshold,
		d.atr < d.atrMA*1.5,
	)
	exitLong := allOf(
		d.close > d.bbMiddle,
		d.rsi > 50,
		d.pressure < 0.4,
		d.atr > d.atrMA*2,
		d.close-d.avg < -0.01*d.avg,
	)
	exitShort := allOf(
		d.close < d.bbMiddle,
		d.rsi < 50,
		d.pressure > 0.55,
		d.atr > d.atrMA*2,
		d.close-d.avg > 0.01*d.avg,
	)

	switch {
	case enterLong:
		return open(in, EnterLong, fmt.Sprintf("bullish divergence (RSI:%.1f/MPR:%.2f)", d.rsi, d.pressure))
	case enterShort:
		return open(in, EnterShort, fmt.Sprintf("bearish divergence (RSI:%.1f/MPR:%.2f)", d.rsi, d.pressure))
	case d.amount > 0 && exitLong:
		return closeOut(in, ExitLong, fmt.Sprintf("divergence resolved (RSI:%.1f/MPR:%.2f)", d.rsi, d.pressure), true)
	case d.amount < 0 && exitShort:
		return closeOut(in, ExitShort, fmt.Sprintf("divergence resolved (RSI:%.1f/MPR:%.2f)", d.rsi, d.pressure), true)
	}
	return hold()
}
