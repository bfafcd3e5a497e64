// Package orchestrator runs the trade cycle: for every symbol in turn it
// snapshots synchronized state, classifies the regime, evaluates the
// strategy engine and dispatches consistent signals for execution.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/perps/indicators"
	"github.com/rustyeddy/perps/internal/logging"
	"github.com/rustyeddy/perps/market"
	"github.com/rustyeddy/perps/marketdata"
	"github.com/rustyeddy/perps/metrics"
	"github.com/rustyeddy/perps/strategies"
)

// Source is the synchronized state the cycle reads.
type Source interface {
	Symbols() []string
	Snapshot(symbol string) (marketdata.Snapshot, error)
	Account() market.Account
	SetRegime(symbol, regime string)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, sig strategies.Signal) error
}

// RegimeStore persists the regimes computed each tick.
type RegimeStore interface {
	SaveRegime(ctx context.Context, symbol, fast, slow string) error
}

type Config struct {
	TickInterval    time.Duration
	InstrumentDelay time.Duration
	TradeRate       float64
	Leverage        float64
	Params          indicators.Params
}

// Status is the outcome of the last tick for one symbol.
type Status struct {
	Symbol     string                 `json:"symbol"`
	Signal     strategies.Signal      `json:"signal"`
	Book       indicators.BookMetrics `json:"orderbook"`
	FastRegime strategies.Regime      `json:"fast_regime"`
	SlowRegime strategies.Regime      `json:"slow_regime"`
	Dispatched bool                   `json:"dispatched"`
	Error      string                 `json:"error,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

type Trader struct {
	cfg      Config
	src      Source
	exec     Dispatcher
	engine   *strategies.Engine
	store    RegimeStore
	classify func(*indicators.Frame) strategies.Regime
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time
	log      zerolog.Logger

	mu     sync.RWMutex
	latest map[string]Status
}

type Option func(*Trader)

func WithEngine(e *strategies.Engine) Option { return func(t *Trader) { t.engine = e } }

func WithRegimeStore(s RegimeStore) Option { return func(t *Trader) { t.store = s } }

func WithClassifier(fn func(*indicators.Frame) strategies.Regime) Option {
	return func(t *Trader) { t.classify = fn }
}

func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(t *Trader) { t.sleep = fn }
}

func WithClock(now func() time.Time) Option { return func(t *Trader) { t.now = now } }

func New(cfg Config, src Source, exec Dispatcher, log zerolog.Logger, opts ...Option) *Trader {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}
	if cfg.InstrumentDelay < 0 {
		cfg.InstrumentDelay = 0
	}
	if cfg.Params == (indicators.Params{}) {
		cfg.Params = indicators.DefaultParams()
	}
	t := &Trader{
		cfg:      cfg,
		src:      src,
		exec:     exec,
		classify: strategies.Classify,
		sleep:    sleep,
		now:      time.Now,
		log:      logging.Component(log, "orchestrator"),
		latest:   make(map[string]Status),
	}
	for _, o := range opts {
		o(t)
	}
	if t.engine == nil {
		t.engine = strategies.NewEngine(strategies.WithClock(t.now))
	}
	return t
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run ticks until ctx is cancelled.
func (t *Trader) Run(ctx context.Context) error {
	t.log.Info().
		Strs("symbols", t.src.Symbols()).
		Dur("tick", t.cfg.TickInterval).
		Dur("instrument_delay", t.cfg.InstrumentDelay).
		Msg("trade loop started")
	for {
		t.Tick(ctx)
		if err := t.sleep(ctx, t.cfg.TickInterval); err != nil {
			t.log.Info().Msg("trade loop stopped")
			return nil
		}
	}
}

// Tick processes every symbol once, in configuration order.
func (t *Trader) Tick(ctx context.Context) {
	start := t.now()
	symbols := t.src.Symbols()
	for i, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		st := t.step(ctx, symbol)
		t.mu.Lock()
		t.latest[symbol] = st
		t.mu.Unlock()

		if i < len(symbols)-1 {
			if err := t.sleep(ctx, t.cfg.InstrumentDelay); err != nil {
				return
			}
		}
	}
	metrics.TickDuration.Observe(t.now().Sub(start).Seconds())
}

func (t *Trader) step(ctx context.Context, symbol string) (st Status) {
	st = Status{Symbol: symbol, Signal: strategies.Signal{Symbol: symbol}, UpdatedAt: t.now()}
	log := t.log.With().Str("symbol", symbol).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("trade step panicked")
			st.Error = fmt.Sprint(r)
		}
	}()

	snap, err := t.src.Snapshot(symbol)
	if err != nil {
		log.Error().Err(err).Msg("snapshot")
		st.Error = err.Error()
		return st
	}

	fast, ferr := indicators.Compute(snap.Fast, t.cfg.Params)
	slow, serr := indicators.Compute(snap.Slow, t.cfg.Params)
	if ferr == nil {
		st.FastRegime = t.classify(fast)
	}
	if serr == nil {
		st.SlowRegime = t.classify(slow)
	}
	if ferr != nil || serr != nil {
		log.Debug().AnErr("fast", ferr).AnErr("slow", serr).Msg("indicators not ready")
	}

	t.src.SetRegime(symbol, st.SlowRegime.String())
	if t.store != nil {
		if err := t.store.SaveRegime(ctx, symbol, st.FastRegime.String(), st.SlowRegime.String()); err != nil {
			log.Warn().Err(err).Msg("save regime")
		}
	}

	st.Book = indicators.Book(snap.Book)
	in := strategies.Input{
		Symbol:    symbol,
		Regime:    st.SlowRegime,
		Book:      st.Book,
		Position:  snap.Position,
		Account:   t.src.Account(),
		TradeRate: t.cfg.TradeRate,
		Leverage:  t.cfg.Leverage,
	}
	if ferr == nil {
		in.Frame = fast
	}
	sig := t.engine.Evaluate(in)
	st.Signal = sig
	metrics.SignalsTotal.WithLabelValues(symbol, sig.Action.String()).Inc()

	if sig.Action == strategies.Hold {
		return st
	}
	if !Consistent(snap.Position, sig.Action) {
		log.Debug().Str("action", sig.Action.String()).Str("side", snap.Position.Side().String()).Msg("signal inconsistent with position")
		return st
	}

	log.Info().Str("signal", sig.String()).Str("regime", st.SlowRegime.String()).Msg("dispatch")
	st.Dispatched = true
	if err := t.exec.Dispatch(ctx, sig); err != nil {
		st.Error = err.Error()
	}
	return st
}

// Consistent reports whether a may be executed against p. Flat positions
// only open, long positions add or exit long, short positions add or
// exit short.
func Consistent(p market.Position, a strategies.Action) bool {
	switch p.Side() {
	case market.Long:
		return a == strategies.EnterLong || a == strategies.ExitLong
	case market.Short:
		return a == strategies.EnterShort || a == strategies.ExitShort
	default:
		return a == strategies.EnterLong || a == strategies.EnterShort
	}
}

// Latest returns the last status of every symbol processed so far.
func (t *Trader) Latest() []Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Status, 0, len(t.latest))
	for _, s := range t.src.Symbols() {
		if st, ok := t.latest[s]; ok {
			out = append(out, st)
		}
	}
	return out
}

func (t *Trader) LatestFor(symbol string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.latest[symbol]
	return st, ok
}
