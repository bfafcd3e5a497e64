// Package execution places the orders a signal asks for and reconciles
// the FILLED reports that come back on the account stream.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/perps/binance"
	"github.com/rustyeddy/perps/internal/logging"
	"github.com/rustyeddy/perps/journal"
	"github.com/rustyeddy/perps/market"
	"github.com/rustyeddy/perps/metrics"
	"github.com/rustyeddy/perps/pkg/id"
	"github.com/rustyeddy/perps/strategies"
)

var ErrInvalidSignal = errors.New("invalid signal")

// OrderClient is the order surface of the exchange client.
type OrderClient interface {
	PlaceLimitOrder(ctx context.Context, o binance.LimitOrder) (binance.Order, error)
	CancelAllOpenOrders(ctx context.Context, symbol string) error
}

// Refresher re-fetches balance and positions.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// AccountView reads the synchronized account state.
type AccountView interface {
	Account() market.Account
	Position(symbol string) market.Position
}

type Notifier interface {
	Send(text string)
}

type nopNotifier struct{}

func (nopNotifier) Send(string) {}

type Config struct {
	// Leverage is used for the trade text when the position reports none.
	Leverage float64
	// RefreshTimeout bounds the post-fill account refresh.
	RefreshTimeout time.Duration
	// OrderTimeout bounds each order request. Requests outlive the
	// caller's context so shutdown never aborts one in flight.
	OrderTimeout time.Duration
	// ClientIDPrefix starts every newClientOrderId.
	ClientIDPrefix string
}

// seenLimit bounds the remembered filled order ids and the orders
// awaiting a terminal report.
const seenLimit = 4096

// pendingOrder is a signal registered under its client order id before
// the order is sent.
type pendingOrder struct {
	sig strategies.Signal
	at  time.Time
}

// Executor is safe for concurrent use by the trade loop and the account
// stream.
type Executor struct {
	cfg     Config
	client  OrderClient
	refresh Refresher
	view    AccountView
	journal journal.Journal
	alert   Notifier
	log     zerolog.Logger
	now     func() time.Time

	wg sync.WaitGroup

	mu         sync.Mutex
	placed     map[string]pendingOrder
	lastPlaced map[string]strategies.Signal
	seen       map[int64]struct{}
	seenOrder  []int64
}

type Option func(*Executor)

func WithJournal(j journal.Journal) Option { return func(e *Executor) { e.journal = j } }

func WithNotifier(n Notifier) Option { return func(e *Executor) { e.alert = n } }

func WithClock(now func() time.Time) Option { return func(e *Executor) { e.now = now } }

func New(cfg Config, client OrderClient, refresh Refresher, view AccountView, log zerolog.Logger, opts ...Option) *Executor {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 10 * time.Second
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 10 * time.Second
	}
	if cfg.ClientIDPrefix == "" {
		cfg.ClientIDPrefix = "perps"
	}
	e := &Executor{
		cfg:        cfg,
		client:     client,
		refresh:    refresh,
		view:       view,
		alert:      nopNotifier{},
		log:        logging.Component(log, "execution"),
		now:        time.Now,
		placed:     make(map[string]pendingOrder),
		lastPlaced: make(map[string]strategies.Signal),
		seen:       make(map[int64]struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func validate(sig strategies.Signal) error {
	switch {
	case sig.Symbol == "":
		return fmt.Errorf("%w: missing symbol", ErrInvalidSignal)
	case sig.Action == strategies.Hold:
		return fmt.Errorf("%w: nothing to do for HOLD", ErrInvalidSignal)
	case sig.Price <= 0 || sig.Size <= 0:
		return fmt.Errorf("%w: price %g size %g", ErrInvalidSignal, sig.Price, sig.Size)
	}
	return nil
}

// Dispatch routes sig to the matching order operation. HOLD is a no-op.
func (e *Executor) Dispatch(ctx context.Context, sig strategies.Signal) error {
	switch sig.Action {
	case strategies.Hold:
		return nil
	case strategies.EnterLong:
		return e.EnterLong(ctx, sig)
	case strategies.EnterShort:
		return e.EnterShort(ctx, sig)
	case strategies.ExitLong:
		return e.ExitLong(ctx, sig)
	case strategies.ExitShort:
		return e.ExitShort(ctx, sig)
	}
	return fmt.Errorf("%w: unknown action %d", ErrInvalidSignal, sig.Action)
}

func (e *Executor) EnterLong(ctx context.Context, sig strategies.Signal) error {
	return e.place(ctx, sig, strategies.EnterLong, binance.Buy, false)
}

func (e *Executor) EnterShort(ctx context.Context, sig strategies.Signal) error {
	return e.place(ctx, sig, strategies.EnterShort, binance.Sell, false)
}

// ExitLong cancels the symbol's open orders and sells the position.
func (e *Executor) ExitLong(ctx context.Context, sig strategies.Signal) error {
	return e.place(ctx, sig, strategies.ExitLong, binance.Sell, true)
}

// ExitShort cancels the symbol's open orders and buys back the position.
func (e *Executor) ExitShort(ctx context.Context, sig strategies.Signal) error {
	return e.place(ctx, sig, strategies.ExitShort, binance.Buy, true)
}

func (e *Executor) place(ctx context.Context, sig strategies.Signal, want strategies.Action, side binance.OrderSide, cancelFirst bool) error {
	sig.Action = want
	log := e.log.With().Str("symbol", sig.Symbol).Str("action", want.String()).Logger()
	fail := func(err error) error {
		metrics.OrderErrors.WithLabelValues(sig.Symbol, want.String()).Inc()
		log.Error().Err(err).Msg("order dropped")
		return err
	}

	if err := validate(sig); err != nil {
		return fail(err)
	}

	octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.OrderTimeout)
	defer cancel()

	if cancelFirst {
		if err := e.client.CancelAllOpenOrders(octx, sig.Symbol); err != nil {
			return fail(fmt.Errorf("cancel open orders %s: %w", sig.Symbol, err))
		}
	}

	// the FILLED report may arrive before the REST response
	cid := id.ClientOrderID(e.cfg.ClientIDPrefix)
	e.register(cid, sig)

	order, err := e.client.PlaceLimitOrder(octx, binance.LimitOrder{
		Symbol:        sig.Symbol,
		Side:          side,
		Quantity:      sig.Size,
		Price:         sig.Price,
		ClientOrderID: cid,
	})
	if err != nil {
		// a rejected order never reports; a transport error may still have placed it
		var apiErr *binance.APIError
		if errors.As(err, &apiErr) {
			e.forget(cid)
		}
		return fail(fmt.Errorf("place %s %s: %w", side, sig.Symbol, err))
	}

	e.mu.Lock()
	e.lastPlaced[sig.Symbol] = sig
	e.mu.Unlock()

	metrics.OrdersTotal.WithLabelValues(sig.Symbol, want.String()).Inc()
	log.Info().
		Int64("order_id", order.OrderID).
		Str("client_order_id", cid).
		Float64("price", sig.Price).
		Float64("size", sig.Size).
		Str("strategy", sig.Strategy.String()).
		Str("reason", sig.Reason).
		Msg("order placed")
	return nil
}

// LastPlaced returns the last signal successfully placed for symbol.
func (e *Executor) LastPlaced(symbol string) (strategies.Signal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sig, ok := e.lastPlaced[symbol]
	return sig, ok
}

// register records sig under cid, evicting the oldest entry when full.
func (e *Executor) register(cid string, sig strategies.Signal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.placed) >= seenLimit {
		var oldest string
		var at time.Time
		for k, p := range e.placed {
			if oldest == "" || p.at.Before(at) {
				oldest, at = k, p.at
			}
		}
		delete(e.placed, oldest)
	}
	e.placed[cid] = pendingOrder{sig: sig, at: e.now()}
}

func (e *Executor) forget(cid string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.placed, cid)
}

// Pending is the number of sent orders without a terminal report.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.placed)
}
