package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/perps/binance"
	"github.com/rustyeddy/perps/internal/logging"
	"github.com/rustyeddy/perps/market"
	"github.com/rustyeddy/perps/metrics"
)

// Exchange is the REST surface the synchronizer needs.
type Exchange interface {
	Account(ctx context.Context) (binance.AccountInfo, error)
	PositionRisk(ctx context.Context, symbol string) ([]binance.PositionRisk, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
	ChangeLeverage(ctx context.Context, symbol string, leverage int) error
	StartListenKey(ctx context.Context) (string, error)
	KeepAliveListenKey(ctx context.Context) error
}

// FillHandler receives terminal order reports from the account stream.
type FillHandler interface {
	HandleFill(ctx context.Context, f market.Fill)
}

// Store persists synchronized state for display. Every method replaces
// the rows of its key.
type Store interface {
	ReplaceCandles(ctx context.Context, symbol, interval string, candles []market.Candle) error
	UpsertCandle(ctx context.Context, symbol, interval string, c market.Candle) error
	SaveBalance(ctx context.Context, acct market.Account) error
	SavePositions(ctx context.Context, positions []market.Position) error
}

// Notifier delivers operator alerts.
type Notifier interface {
	Send(text string)
}

type Config struct {
	Symbols      []string
	FastInterval string
	SlowInterval string
	Window       int
	Leverage     int

	StreamURL       string
	ReconnectDelay  time.Duration
	PollInterval    time.Duration
	KeepAlive       time.Duration
	ShutdownTimeout time.Duration
}

func (c *Config) withDefaults() {
	if c.FastInterval == "" {
		c.FastInterval = "1m"
	}
	if c.SlowInterval == "" {
		c.SlowInterval = "15m"
	}
	if c.Window <= 0 {
		c.Window = 260
	}
	if c.StreamURL == "" {
		c.StreamURL = binance.StreamURL
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = binance.DefaultReconnectDelay
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

const (
	pollAttempts = 5
	pollBackoff  = time.Second
	restTimeout  = 10 * time.Second
)

// Synchronizer owns candle, book, balance and position state. All writes go
// through it; readers get copies.
type Synchronizer struct {
	cfg   Config
	ex    Exchange
	store Store
	fills FillHandler
	alert Notifier
	log   zerolog.Logger
	now   func() time.Time

	retryBase time.Duration

	instruments map[string]*instrumentState

	acctMu    sync.RWMutex
	account   market.Account
	positions map[string]market.Position
}

type Option func(*Synchronizer)

func WithStore(st Store) Option { return func(s *Synchronizer) { s.store = st } }

func WithFillHandler(h FillHandler) Option { return func(s *Synchronizer) { s.fills = h } }

func WithNotifier(n Notifier) Option { return func(s *Synchronizer) { s.alert = n } }

func WithClock(now func() time.Time) Option { return func(s *Synchronizer) { s.now = now } }

// WithRetryBackoff sets the first account poll retry delay.
func WithRetryBackoff(d time.Duration) Option { return func(s *Synchronizer) { s.retryBase = d } }

func New(cfg Config, ex Exchange, log zerolog.Logger, opts ...Option) *Synchronizer {
	cfg.withDefaults()
	syms := make([]string, 0, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		syms = append(syms, strings.ToUpper(sym))
	}
	cfg.Symbols = syms

	s := &Synchronizer{
		cfg:         cfg,
		ex:          ex,
		log:         logging.Component(log, "marketdata"),
		now:         time.Now,
		retryBase:   pollBackoff,
		instruments: make(map[string]*instrumentState, len(syms)),
		positions:   make(map[string]market.Position, len(syms)),
	}
	for _, sym := range syms {
		s.instruments[sym] = &instrumentState{
			fast: market.NewCandleWindow(cfg.Window),
			slow: market.NewCandleWindow(cfg.Window),
			book: market.OrderBook{Symbol: sym},
		}
		s.positions[sym] = market.Position{Symbol: sym, Leverage: float64(cfg.Leverage)}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetFillHandler wires the execution layer after construction.
func (s *Synchronizer) SetFillHandler(h FillHandler) { s.fills = h }

func (s *Synchronizer) interval(tf market.Timeframe) string {
	if tf == market.Slow {
		return s.cfg.SlowInterval
	}
	return s.cfg.FastInterval
}

// restContext bounds a REST call and lets it finish during shutdown.
func restContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), restTimeout)
}

// Initialize loads the starting state. Only a failed account fetch is
// fatal.
func (s *Synchronizer) Initialize(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		return fmt.Errorf("initial account: %w", err)
	}

	for _, sym := range s.cfg.Symbols {
		if s.cfg.Leverage > 0 {
			if err := s.ex.ChangeLeverage(ctx, sym, s.cfg.Leverage); err != nil {
				s.log.Warn().Err(err).Str("symbol", sym).Int("leverage", s.cfg.Leverage).Msg("set leverage failed")
			} else {
				s.ApplyLeverage(sym, s.cfg.Leverage)
			}
		}
	}

	if rows, err := s.ex.PositionRisk(ctx, ""); err != nil {
		s.log.Warn().Err(err).Msg("position risk fetch failed")
	} else {
		s.ApplyPositionRisk(rows)
	}

	for _, sym := range s.cfg.Symbols {
		for _, tf := range []market.Timeframe{market.Fast, market.Slow} {
			if err := s.LoadCandles(ctx, sym, tf); err != nil {
				s.log.Warn().Err(err).Str("symbol", sym).Stringer("timeframe", tf).Msg("initial candle load failed")
			}
		}
	}
	s.log.Info().Strs("symbols", s.cfg.Symbols).Msg("market data initialized")
	return nil
}

// LoadCandles repopulates one window from REST history.
func (s *Synchronizer) LoadCandles(ctx context.Context, symbol string, tf market.Timeframe) error {
	interval := s.interval(tf)
	candles, err := s.ex.Klines(ctx, symbol, interval, s.cfg.Window)
	if err != nil {
		return fmt.Errorf("klines %s %s: %w", symbol, interval, err)
	}
	if err := s.ResetCandles(symbol, tf, candles); err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.ReplaceCandles(ctx, symbol, interval, candles); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("persist candles failed")
		}
	}
	return nil
}

// Refresh re-fetches balances and positions, retrying transient failures.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	var info binance.AccountInfo
	err := binance.Retry(ctx, pollAttempts, s.retryBase, func(ctx context.Context) error {
		rctx, cancel := restContext(ctx)
		defer cancel()
		var err error
		info, err = s.ex.Account(rctx)
		return err
	})
	if err != nil {
		return err
	}

	s.ApplyAccountSnapshot(info)
	acct := s.Account()
	metrics.WalletBalance.Set(acct.WalletBalance)
	metrics.FreeMargin.Set(acct.FreeMargin)

	if s.store != nil {
		sctx, cancel := restContext(ctx)
		defer cancel()
		if err := s.store.SaveBalance(sctx, acct); err != nil {
			s.log.Warn().Err(err).Msg("persist balance failed")
		}
		if err := s.store.SavePositions(sctx, s.Positions()); err != nil {
			s.log.Warn().Err(err).Msg("persist positions failed")
		}
	}
	return nil
}

// Run starts every stream supervisor, the keepalive and the poll, and
// blocks until ctx is cancelled. It then waits up to ShutdownTimeout for
// them to stop.
func (s *Synchronizer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error().Interface("panic", r).Str("task", name).Msg("task panicked")
				}
			}()
			fn(ctx)
		}()
	}

	for _, st := range s.streams(ctx) {
		st := st
		start(st.Name, func(ctx context.Context) { _ = binance.Supervise(ctx, st, s.log) })
	}
	start("keepalive", s.keepAlive)
	start("poll", s.poll)

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		return errors.New("marketdata: shutdown timed out")
	}
}

// streams lists the supervised connections: three per symbol plus the
// account stream.
func (s *Synchronizer) streams(ctx context.Context) []binance.Stream {
	var out []binance.Stream
	for _, sym := range s.cfg.Symbols {
		sym := sym
		depth := binance.DepthStream(sym)
		out = append(out, binance.Stream{
			Name:   depth,
			URL:    binance.StaticURL(binance.StreamEndpoint(s.cfg.StreamURL, depth)),
			Handle: s.handleDepth,
			Delay:  s.cfg.ReconnectDelay,
		})
		for _, tf := range []market.Timeframe{market.Fast, market.Slow} {
			tf := tf
			name := binance.KlineStream(sym, s.interval(tf))
			out = append(out, binance.Stream{
				Name: name,
				URL:  binance.StaticURL(binance.StreamEndpoint(s.cfg.StreamURL, name)),
				BeforeConnect: func(ctx context.Context) error {
					rctx, cancel := restContext(ctx)
					defer cancel()
					return s.LoadCandles(rctx, sym, tf)
				},
				Handle: s.kline(ctx, sym, tf),
				Delay:  s.cfg.ReconnectDelay,
			})
		}
	}
	out = append(out, binance.Stream{
		Name: "user",
		URL: func(ctx context.Context) (string, error) {
			rctx, cancel := restContext(ctx)
			defer cancel()
			key, err := s.ex.StartListenKey(rctx)
			if err != nil {
				return "", fmt.Errorf("listen key: %w", err)
			}
			return binance.StreamEndpoint(s.cfg.StreamURL, key), nil
		},
		Handle: s.userEvent(ctx),
		Delay:  s.cfg.ReconnectDelay,
	})
	return out
}

func (s *Synchronizer) handleDepth(msg []byte) error {
	ev, err := binance.DecodeDepth(msg)
	if err != nil {
		return err
	}
	return s.ApplyDepth(ev.OrderBook())
}

func (s *Synchronizer) kline(ctx context.Context, symbol string, tf market.Timeframe) func([]byte) error {
	interval := s.interval(tf)
	return func(msg []byte) error {
		ev, err := binance.DecodeKline(msg)
		if err != nil {
			return err
		}
		if !strings.EqualFold(ev.Symbol, symbol) {
			return fmt.Errorf("kline for %s on %s stream", ev.Symbol, symbol)
		}
		c := ev.Candle()
		changed, err := s.ApplyKline(symbol, tf, c, ev.Kline.Closed)
		if err != nil || !changed || s.store == nil {
			return err
		}
		sctx, cancel := restContext(ctx)
		defer cancel()
		if err := s.store.UpsertCandle(sctx, symbol, interval, c); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("persist candle failed")
		}
		return nil
	}
}

func (s *Synchronizer) userEvent(ctx context.Context) func([]byte) error {
	return func(msg []byte) error {
		ev, err := binance.DecodeUserEvent(msg)
		if errors.Is(err, binance.ErrUnhandledEvent) {
			s.log.Debug().Err(err).Msg("ignoring user event")
			return nil
		}
		if err != nil {
			return err
		}

		switch ev := ev.(type) {
		case *binance.AccountUpdateEvent:
			change := s.ApplyAccountUpdate(ev)
			if change != 0 && s.alert != nil {
				acct := s.Account()
				s.alert.Send(fmt.Sprintf("Balance %s %.4f USDT\nWallet: %.4f USDT", ev.Update.Reason, change, acct.WalletBalance))
			}
		case *binance.AccountConfigEvent:
			if ev.Config.Symbol != "" && ev.Config.Leverage > 0 {
				s.ApplyLeverage(ev.Config.Symbol, ev.Config.Leverage)
			}
		case *binance.OrderTradeUpdateEvent:
			if s.fills != nil {
				s.fills.HandleFill(ctx, ev.Fill())
			}
		case *binance.ListenKeyExpiredEvent:
			return binance.ErrReconnect
		}
		return nil
	}
}

func (s *Synchronizer) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rctx, cancel := restContext(ctx)
			if err := s.ex.KeepAliveListenKey(rctx); err != nil {
				s.log.Warn().Err(err).Msg("listen key keepalive failed")
			}
			cancel()
		}
	}
}

func (s *Synchronizer) poll(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				metrics.PollErrors.Inc()
				s.log.Warn().Err(err).Msg("account poll failed")
			}
		}
	}
}
