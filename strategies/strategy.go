package strategies

import (
	"time"

	"github.com/rustyeddy/perps/indicators"
	"github.com/rustyeddy/perps/market"
	"github.com/rustyeddy/perps/risk"
)

// StrategyID names one of the built-in strategies.
type StrategyID int

const (
	None StrategyID = iota
	TrendMomentum
	VolumeBreakout
	MeanReversion
	MACDRSI
	ATRTrendFollow
	RSIDivergence
)

func (id StrategyID) String() string {
	switch id {
	case TrendMomentum:
		return "trend_momentum"
	case VolumeBreakout:
		return "volume_breakout"
	case MeanReversion:
		return "mean_reversion"
	case MACDRSI:
		return "macd_rsi"
	case ATRTrendFollow:
		return "atr_trend_follow"
	case RSIDivergence:
		return "rsi_divergence"
	default:
		return ""
	}
}

func (id StrategyID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// Input is everything a strategy may look at for one instrument.
type Input struct {
	Symbol   string
	Regime   Regime
	Frame    *indicators.Frame
	Book     indicators.BookMetrics
	Position market.Position
	Account  market.Account

	TradeRate float64
	// Leverage is used for sizing when the position reports none.
	Leverage float64
}

// Func evaluates one strategy. It must be pure.
type Func func(Input) Signal

var builtin = map[StrategyID]Func{
	TrendMomentum:  trendMomentum,
	VolumeBreakout: volumeBreakout,
	MeanReversion:  meanReversion,
	MACDRSI:        macdRSI,
	ATRTrendFollow: atrTrendFollow,
	RSIDivergence:  rsiDivergence,
}

// Plans maps each regime to its strategies in priority order.
var Plans = map[Regime][]StrategyID{
	StrongTrendUp:   {TrendMomentum, VolumeBreakout},
	Rising:          {TrendMomentum, MACDRSI},
	SidewaysOrWeak:  {MeanReversion, MACDRSI},
	Falling:         {ATRTrendFollow, MACDRSI},
	StrongTrendDown: {ATRTrendFollow, RSIDivergence},
}

// Engine runs the active strategies for a regime in priority order. The
// first non-HOLD signal wins and no further strategy is evaluated.
type Engine struct {
	funcs   map[StrategyID]Func
	plans   map[Regime][]StrategyID
	observe func(StrategyID, Signal)
	now     func() time.Time
}

type Option func(*Engine)

// WithStrategy replaces the implementation behind id.
func WithStrategy(id StrategyID, fn Func) Option {
	return func(e *Engine) { e.funcs[id] = fn }
}

// WithObserver is called after every strategy evaluation.
func WithObserver(fn func(StrategyID, Signal)) Option {
	return func(e *Engine) { e.observe = fn }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		funcs: make(map[StrategyID]Func, len(builtin)),
		plans: Plans,
		now:   time.Now,
	}
	for id, fn := range builtin {
		e.funcs[id] = fn
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Active returns the strategies evaluated for r.
func (e *Engine) Active(r Regime) []StrategyID {
	return e.plans[r]
}

func (e *Engine) Evaluate(in Input) Signal {
	out := Signal{Symbol: in.Symbol, Action: Hold, Regime: in.Regime, CreatedAt: e.now()}
	if in.Frame.Len() == 0 {
		return out
	}

	for _, id := range e.plans[in.Regime] {
		fn, ok := e.funcs[id]
		if !ok {
			continue
		}
		sig := fn(in)
		if e.observe != nil {
			e.observe(id, sig)
		}
		if sig.Action == Hold {
			continue
		}
		sig.Symbol = in.Symbol
		sig.Strategy = id
		sig.Regime = in.Regime
		sig.CreatedAt = out.CreatedAt
		return sig
	}
	return out
}

func (in Input) leverage() float64 {
	if in.Position.Leverage > 0 {
		return in.Position.Leverage
	}
	return in.Leverage
}

// priceFor returns the limit price used for an action: buys rest at the
// deepest ask level and sells at the deepest bid level.
func (in Input) priceFor(a Action) float64 {
	if a.Buy() {
		return in.Book.HighAsk
	}
	return in.Book.LowBid
}

func (in Input) canOpen() bool {
	return risk.CanOpen(in.Position, in.Account, in.TradeRate).Allowed
}

func (in Input) canClose() bool {
	return risk.CanClose(in.Position)
}

func hold() Signal { return Signal{Action: Hold} }

// open builds an entry signal after the open gate.
func open(in Input, a Action, reason string) Signal {
	if !in.canOpen() {
		return hold()
	}
	price := in.priceFor(a)
	size := risk.OpenSize(in.Account.WalletBalance, in.TradeRate, in.leverage(), indicators.At(in.Frame.Close, 0))
	if price <= 0 || size <= 0 {
		return hold()
	}
	return Signal{Action: a, Price: price, Size: size, Reason: reason}
}

// closeOut builds an exit signal that flattens the position. When gated
// is set the close gate must pass.
func closeOut(in Input, a Action, reason string, gated bool) Signal {
	if gated && !in.canClose() {
		return hold()
	}
	price := in.priceFor(a)
	size := risk.CloseSize(in.Position)
	if price <= 0 || size <= 0 {
		return hold()
	}
	return Signal{Action: a, Price: price, Size: size, Reason: reason}
}
