// Package indicators provides technical analysis indicators for trading.
//
// Every series function is pure: OHLCV in, a series of the same length out,
// with NaN marking the warmup region.
package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/rustyeddy/perps/market"
)

// ErrInsufficientData is returned when a frame would contain too few fully
// warmed-up rows to evaluate any rule.
var ErrInsufficientData = errors.New("insufficient candle data")

// MinRows is the minimum number of warmed-up rows Compute requires.
const MinRows = 22

// Params are the indicator lengths used by Compute.
type Params struct {
	EMAFast, EMASlow            int
	SMAShort, SMAMid, SMALong   int
	RSI, ADX, ATR               int
	MACDFast, MACDSlow, MACDSig int
	BBLength                    int
	BBStd                       float64
	FibLength                   int
}

// DefaultParams returns the indicator lengths tuned for one minute and
// fifteen minute futures candles.
func DefaultParams() Params {
	return Params{
		EMAFast: 20, EMASlow: 50,
		SMAShort: 7, SMAMid: 15, SMALong: 50,
		RSI: 10, ADX: 10, ATR: 10,
		MACDFast: 5, MACDSlow: 10, MACDSig: 3,
		BBLength: 20, BBStd: 2.0,
		FibLength: 20,
	}
}

// Frame is a set of aligned indicator series. Rows still warming up are
// trimmed, so index Len()-1 is the newest candle and every value is
// finite.
type Frame struct {
	Candles []market.Candle

	Open, High, Low, Close, Volume []float64

	EMAFast, EMASlow           []float64
	SMAShort, SMAMid, SMALong  []float64
	RSI                        []float64
	ADX, DMP, DMN              []float64
	ATR                        []float64
	MACD, MACDSignal, MACDHist []float64
	BBLower, BBMiddle, BBUpper []float64
	Fib236, Fib500, Fib618     []float64
	Fib786                     []float64
}

// Compute calculates the full indicator set for the given candles.
func Compute(candles []market.Candle, p Params) (*Frame, error) {
	n := len(candles)
	f := &Frame{
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	for i, c := range candles {
		f.Open[i], f.High[i], f.Low[i], f.Close[i], f.Volume[i] = c.Open, c.High, c.Low, c.Close, c.Volume
	}

	var err error
	if f.EMAFast, err = EMA(f.Close, p.EMAFast); err != nil {
		return nil, fmt.Errorf("ema fast: %w", err)
	}
	if f.EMASlow, err = EMA(f.Close, p.EMASlow); err != nil {
		return nil, fmt.Errorf("ema slow: %w", err)
	}
	if f.SMAShort, err = SMA(f.Close, p.SMAShort); err != nil {
		return nil, fmt.Errorf("sma short: %w", err)
	}
	if f.SMAMid, err = SMA(f.Close, p.SMAMid); err != nil {
		return nil, fmt.Errorf("sma mid: %w", err)
	}
	if f.SMALong, err = SMA(f.Close, p.SMALong); err != nil {
		return nil, fmt.Errorf("sma long: %w", err)
	}
	if f.RSI, err = RSI(f.Close, p.RSI); err != nil {
		return nil, fmt.Errorf("rsi: %w", err)
	}
	if f.ATR, err = ATR(candles, p.ATR); err != nil {
		return nil, fmt.Errorf("atr: %w", err)
	}

	di, err := ADX(candles, p.ADX)
	if err != nil {
		return nil, fmt.Errorf("adx: %w", err)
	}
	f.ADX, f.DMP, f.DMN = di.ADX, di.PlusDI, di.MinusDI

	m, err := MACD(f.Close, p.MACDFast, p.MACDSlow, p.MACDSig)
	if err != nil {
		return nil, fmt.Errorf("macd: %w", err)
	}
	f.MACD, f.MACDSignal, f.MACDHist = m.MACD, m.Signal, m.Histogram

	bb, err := Bollinger(f.Close, p.BBLength, p.BBStd)
	if err != nil {
		return nil, fmt.Errorf("bollinger: %w", err)
	}
	f.BBLower, f.BBMiddle, f.BBUpper = bb.Lower, bb.Middle, bb.Upper

	fib, err := Fibonacci(candles, p.FibLength)
	if err != nil {
		return nil, fmt.Errorf("fibonacci: %w", err)
	}
	f.Fib236, f.Fib500, f.Fib618, f.Fib786 = fib.L236, fib.L500, fib.L618, fib.L786

	start := 0
	for _, s := range f.all() {
		if i := firstValid(*s); i < 0 {
			return nil, ErrInsufficientData
		} else if i > start {
			start = i
		}
	}
	if n-start < MinRows {
		return nil, fmt.Errorf("%w: %d usable rows, need %d", ErrInsufficientData, n-start, MinRows)
	}

	f.Candles = append([]market.Candle(nil), candles[start:]...)
	for _, s := range f.all() {
		*s = (*s)[start:]
	}
	return f, nil
}

func (f *Frame) all() []*[]float64 {
	return []*[]float64{
		&f.Open, &f.High, &f.Low, &f.Close, &f.Volume,
		&f.EMAFast, &f.EMASlow, &f.SMAShort, &f.SMAMid, &f.SMALong,
		&f.RSI, &f.ADX, &f.DMP, &f.DMN, &f.ATR,
		&f.MACD, &f.MACDSignal, &f.MACDHist,
		&f.BBLower, &f.BBMiddle, &f.BBUpper,
		&f.Fib236, &f.Fib500, &f.Fib618, &f.Fib786,
	}
}

// Len is the number of rows in the frame.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Close)
}

// At returns s counted back from the newest row: At(s, 0) is the latest
// value, At(s, 1) the one before. Out of range reads return NaN.
func At(s []float64, back int) float64 {
	i := len(s) - 1 - back
	if back < 0 || i < 0 {
		return math.NaN()
	}
	return s[i]
}

// MeanAt is the mean of the n values ending back rows before the newest.
func MeanAt(s []float64, n, back int) float64 {
	end := len(s) - back
	if n <= 0 || back < 0 || end-n < 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range s[end-n : end] {
		sum += v
	}
	return sum / float64(n)
}

// MinAt is the minimum of s[len-1-from .. len-1-to], inclusive of both
// offsets counted back from the newest row.
func MinAt(s []float64, from, to int) float64 {
	lo, hi := len(s)-1-from, len(s)-1-to
	if from < to || lo < 0 || hi >= len(s) {
		return math.NaN()
	}
	m := math.Inf(1)
	for _, v := range s[lo : hi+1] {
		m = math.Min(m, v)
	}
	return m
}
