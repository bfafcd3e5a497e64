package strategies

import (
	"fmt"
	"math"

	"github.com/rustyeddy/perps/indicators"
	"github.com/rustyeddy/perps/risk"
)

// macdRSI trades MACD turns confirmed by an RSI dip or peak and a calm
// last candle. A position losing more than 10% on margin is cut when the
// histogram keeps moving against it and no regular exit fired.
func macdRSI(in Input) Signal {
	f := in.Frame
	d := derive(in)
	at := indicators.At

	m0, m1, m2, m3, m4 := at(f.MACD, 0), at(f.MACD, 1), at(f.MACD, 2), at(f.MACD, 3), at(f.MACD, 4)
	h0, h1, h2 := at(f.MACDHist, 0), at(f.MACDHist, 1), at(f.MACDHist, 2)
	rate := macdSignalRate(f)

	upraise := bodyPercent(at(f.Open, 0), at(f.Close, 0))
	preUpraise := bodyPercent(at(f.Open, 1), at(f.Close, 1))
	calm := math.Abs(preUpraise) < 0.4 && math.Abs(upraise) <= 0.3

	upChange := m0 > m1 && m1 >= m2 && m2 <= m3 && m3 < m4 && h0 < 0 && rate > MinMACDDivergence
	downChange := m0 < m1 && m1 <= m2 && m2 >= m3 && m3 > m4 && h0 > 0 && rate > MinMACDDivergence

	golden := h0 > h1 && h1 > h2 && indicators.MeanAt(f.MACDHist, 3, 1) < 0 && (h0 > 0 || h1 > 0) && rate > MinMACDDivergence
	dead := h0 < h1 && h1 < h2 && indicators.MeanAt(f.MACDHist, 3, 1) > 0 && (h0 < 0 || h1 < 0) && rate > MinMACDDivergence

	rsiMin := indicators.MinAt(f.RSI, 6, 2)

	enterLong := (upChange || golden) && calm && d.rsi < 45 && rsiMin < 35 && d.pressure > 0.55
	enterShort := (downChange || dead) && calm && d.rsi > 55 && rsiMin > 65 && d.pressure < 0.45
	exitLong := (downChange || dead) && d.pressure < 0.45
	exitShort := (upChange || golden) && d.pressure > 0.55

	gain := risk.ReturnOnMargin(in.Position)
	histDown := d.amount > 0 && gain < -10 && h0 <= 0 && h0 <= h1 && h1 < h2
	histUp := d.amount < 0 && gain < -10 && h0 >= 0 && h0 >= h1 && h1 > h2

	reason := func(what string) string {
		return fmt.Sprintf("%s (RSI:%.1f/MACD rate:%.1f/MPR:%.2f)", what, d.rsi, rate, d.pressure)
	}

	if in.canOpen() {
		switch {
		case enterLong:
			return open(in, EnterLong, reason("MACD turning up"))
		case enterShort:
			return open(in, EnterShort, reason("MACD turning down"))
		}
		return hold()
	}

	switch {
	case d.amount > 0 && exitLong && in.canClose():
		return closeOut(in, ExitLong, reason("MACD turning down"), true)
	case d.amount < 0 && exitShort && in.canClose():
		return closeOut(in, ExitShort, reason("MACD turning up"), true)
	case histDown:
		return closeOut(in, ExitLong, fmt.Sprintf("loss cut, histogram falling (ROM:%.1f%%)", gain), false)
	case histUp:
		return closeOut(in, ExitShort, fmt.Sprintf("loss cut, histogram rising (ROM:%.1f%%)", gain), false)
	}
	return hold()
}

// bodyPercent is the candle body as a percentage of the open, rounded to
// two decimals.
func bodyPercent(o, c float64) float64 {
	if o == 0 {
		return 0
	}
	return math.Round((c-o)/o*100*100) / 100
}
