package strategies

import (
	"github.com/rustyeddy/perps/indicators"
	"github.com/rustyeddy/perps/market"
)

func constant(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// flatFrame is a frame where every series holds v.
func flatFrame(n int, v float64) *indicators.Frame {
	return &indicators.Frame{
		Open: constant(n, v), High: constant(n, v), Low: constant(n, v),
		Close: constant(n, v), Volume: constant(n, v),
		EMAFast: constant(n, v), EMASlow: constant(n, v),
		SMAShort: constant(n, v), SMAMid: constant(n, v), SMALong: constant(n, v),
		RSI: constant(n, 50), ADX: constant(n, 20), DMP: constant(n, 20), DMN: constant(n, 20),
		ATR:  constant(n, 1),
		MACD: constant(n, 0), MACDSignal: constant(n, 0), MACDHist: constant(n, 0),
		BBLower: constant(n, v), BBMiddle: constant(n, v), BBUpper: constant(n, v),
		Fib236: constant(n, v), Fib500: constant(n, v), Fib618: constant(n, v), Fib786: constant(n, v),
	}
}

// tail overwrites the newest values of s, oldest first.
func tail(s []float64, vals ...float64) {
	copy(s[len(s)-len(vals):], vals)
}

func baseInput(f *indicators.Frame) Input {
	return Input{
		Symbol: "XRPUSDT",
		Regime: SidewaysOrWeak,
		Frame:  f,
		Book: indicators.BookMetrics{
			Symbol:   "XRPUSDT",
			LowBid:   49,
			HighAsk:  51,
			Pressure: 0.5,
			BidDepth: 100,
			AskDepth: 100,
		},
		Account:   market.Account{WalletBalance: 1000, FreeMargin: 500},
		TradeRate: 0.2,
		Leverage:  5,
	}
}
