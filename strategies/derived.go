package strategies

import "github.com/rustyeddy/perps/indicators"

// derived holds the latest row values shared by most strategies.
type derived struct {
	close, open float64
	emaFast     float64
	emaSlow     float64
	rsi         float64
	adx         float64
	atr         float64
	atrMA       float64
	hist        float64
	prevHist    float64

	bbLower, bbMiddle, bbUpper float64

	volume      float64
	volMA       float64
	volumeTrend bool

	pressure  float64
	imbalance float64
	bidDepth  float64
	askDepth  float64

	amount float64
	avg    float64
}

func derive(in Input) derived {
	f := in.Frame
	at := indicators.At
	return derived{
		close:    at(f.Close, 0),
		open:     at(f.Open, 0),
		emaFast:  at(f.EMAFast, 0),
		emaSlow:  at(f.EMASlow, 0),
		rsi:      at(f.RSI, 0),
		adx:      at(f.ADX, 0),
		atr:      at(f.ATR, 0),
		atrMA:    indicators.MeanAt(f.ATR, 14, 0),
		hist:     at(f.MACDHist, 0),
		prevHist: at(f.MACDHist, 1),

		bbLower:  at(f.BBLower, 0),
		bbMiddle: at(f.BBMiddle, 0),
		bbUpper:  at(f.BBUpper, 0),

		volume: at(f.Volume, 0),
		volMA:  indicators.MeanAt(f.Volume, 20, 0),
		// last three bars against the 20-bar mean ending one bar back
		volumeTrend: indicators.MeanAt(f.Volume, 3, 0) > indicators.MeanAt(f.Volume, 20, 1),

		pressure:  in.Book.Pressure,
		imbalance: in.Book.Imbalance,
		bidDepth:  in.Book.BidDepth,
		askDepth:  in.Book.AskDepth,

		amount: in.Position.Amount,
		avg:    in.Position.AvgEntryPrice,
	}
}

func allOf(conds ...bool) bool {
	for _, c := range conds {
		if !c {
			return false
		}
	}
	return true
}

func anyOf(conds ...bool) bool {
	for _, c := range conds {
		if c {
			return true
		}
	}
	return false
}
