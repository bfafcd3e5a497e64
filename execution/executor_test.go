package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perps/binance"
	"github.com/rustyeddy/perps/journal"
	"github.com/rustyeddy/perps/market"
	"github.com/rustyeddy/perps/strategies"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) PlaceLimitOrder(ctx context.Context, o binance.LimitOrder) (binance.Order, error) {
	args := m.Called(ctx, o)
	return args.Get(0).(binance.Order), args.Error(1)
}

func (m *mockClient) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	return m.Called(ctx, symbol).Error(0)
}

type mockRefresher struct {
	mock.Mock
}

func (m *mockRefresher) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type fakeView struct {
	acct market.Account
	pos  map[string]market.Position
}

func (v fakeView) Account() market.Account { return v.acct }

func (v fakeView) Position(symbol string) market.Position { return v.pos[symbol] }

type memJournal struct {
	mu     sync.Mutex
	trades []journal.TradeRecord
	equity []journal.EquitySnapshot
}

func (j *memJournal) RecordTrade(t journal.TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, t)
	return nil
}

func (j *memJournal) RecordEquity(e journal.EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.equity = append(j.equity, e)
	return nil
}

func (j *memJournal) Close() error { return nil }

type memNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *memNotifier) Send(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
}

type fixture struct {
	client  *mockClient
	refresh *mockRefresher
	journal *memJournal
	alerts  *memNotifier
	exec    *Executor
}

func testView() fakeView {
	return fakeView{
		acct: market.Account{WalletBalance: 1000, FreeMargin: 800},
		pos: map[string]market.Position{
			"XRPUSDT": {Symbol: "XRPUSDT", Amount: 20, AvgEntryPrice: 0.5, Leverage: 5},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		client:  &mockClient{},
		refresh: &mockRefresher{},
		journal: &memJournal{},
		alerts:  &memNotifier{},
	}
	f.exec = New(Config{Leverage: 5}, f.client, f.refresh, testView(), zerolog.Nop(),
		WithJournal(f.journal), WithNotifier(f.alerts),
		WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }))
	return f
}

// settle waits for background fill reconciliation.
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.exec.Wait(ctx))
}

// captureIDs records the client order id of every placed order.
func captureIDs(ids *[]string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		*ids = append(*ids, args.Get(1).(binance.LimitOrder).ClientOrderID)
	}
}

func signal(a strategies.Action, reason string) strategies.Signal {
	return strategies.Signal{
		Symbol:   "XRPUSDT",
		Action:   a,
		Price:    0.5,
		Size:     20,
		Strategy: strategies.MeanReversion,
		Regime:   strategies.SidewaysOrWeak,
		Reason:   reason,
	}
}

func limit(side binance.OrderSide) interface{} {
	return mock.MatchedBy(func(o binance.LimitOrder) bool {
		return o.Symbol == "XRPUSDT" && o.Side == side && o.Quantity == 20 && o.Price == 0.5 && o.ClientOrderID != ""
	})
}

func TestDispatchRoutesSides(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action strategies.Action
		side   binance.OrderSide
		cancel bool
	}{
		{strategies.EnterLong, binance.Buy, false},
		{strategies.EnterShort, binance.Sell, false},
		{strategies.ExitLong, binance.Sell, true},
		{strategies.ExitShort, binance.Buy, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.action.String(), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			if tt.cancel {
				f.client.On("CancelAllOpenOrders", mock.Anything, "XRPUSDT").Return(nil).Once()
			}
			f.client.On("PlaceLimitOrder", mock.Anything, limit(tt.side)).Return(binance.Order{OrderID: 7}, nil).Once()

			require.NoError(t, f.exec.Dispatch(context.Background(), signal(tt.action, "r")))
			f.client.AssertExpectations(t)
			if !tt.cancel {
				f.client.AssertNotCalled(t, "CancelAllOpenOrders", mock.Anything, mock.Anything)
			}
			last, ok := f.exec.LastPlaced("XRPUSDT")
			require.True(t, ok)
			assert.Equal(t, tt.action, last.Action)
			assert.Equal(t, 1, f.exec.Pending())
		})
	}
}

func TestDispatchHoldIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.exec.Dispatch(context.Background(), signal(strategies.Hold, "")))
	f.client.AssertNotCalled(t, "PlaceLimitOrder", mock.Anything, mock.Anything)
}

func TestInvalidSignal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sig := signal(strategies.EnterLong, "")
	sig.Size = 0
	assert.ErrorIs(t, f.exec.EnterLong(context.Background(), sig), ErrInvalidSignal)

	sig = signal(strategies.EnterLong, "")
	sig.Symbol = ""
	assert.ErrorIs(t, f.exec.Dispatch(context.Background(), sig), ErrInvalidSignal)
	f.client.AssertNotCalled(t, "PlaceLimitOrder", mock.Anything, mock.Anything)
}

func TestPlacementFailureIsDropped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	apiErr := &binance.APIError{Status: 400, Code: -2019, Msg: "Margin is insufficient."}
	f.client.On("PlaceLimitOrder", mock.Anything, mock.Anything).Return(binance.Order{}, apiErr).Once()

	err := f.exec.EnterShort(context.Background(), signal(strategies.EnterShort, ""))
	var target *binance.APIError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, -2019, target.Code)
	f.client.AssertNumberOfCalls(t, "PlaceLimitOrder", 1)

	_, ok := f.exec.LastPlaced("XRPUSDT")
	assert.False(t, ok)
	assert.Zero(t, f.exec.Pending())
}

func TestTransportErrorKeepsOrderPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.client.On("PlaceLimitOrder", mock.Anything, mock.Anything).Return(binance.Order{}, errors.New("connection reset")).Once()

	assert.Error(t, f.exec.EnterLong(context.Background(), signal(strategies.EnterLong, "")))
	// the order may still rest at the exchange
	assert.Equal(t, 1, f.exec.Pending())
}

func TestOrderRequestsOutliveCallerContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alive := func(c context.Context) bool {
		_, ok := c.Deadline()
		return ok && c.Err() == nil
	}
	f.client.On("CancelAllOpenOrders", mock.MatchedBy(alive), "XRPUSDT").Return(nil).Once()
	f.client.On("PlaceLimitOrder", mock.Anything, limit(binance.Sell)).
		Run(func(args mock.Arguments) {
			// shutdown arrives while the request is in flight
			cancel()
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).
		Return(binance.Order{OrderID: 8}, nil).Once()

	require.NoError(t, f.exec.Dispatch(ctx, signal(strategies.ExitLong, "stop")))
	f.client.AssertExpectations(t)
	assert.Error(t, ctx.Err())
}

func TestExitStopsWhenCancelFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.client.On("CancelAllOpenOrders", mock.Anything, "XRPUSDT").Return(errors.New("boom")).Once()

	assert.Error(t, f.exec.ExitLong(context.Background(), signal(strategies.ExitLong, "")))
	f.client.AssertNotCalled(t, "PlaceLimitOrder", mock.Anything, mock.Anything)
}

func filled(orderID int64, cid string) market.Fill {
	return market.Fill{
		Symbol:        "XRPUSDT",
		OrderID:       orderID,
		ClientOrderID: cid,
		Side:          "BUY",
		Status:        binance.StatusFilled,
		AvgPrice:      0.5,
		Quantity:      20,
		FilledQty:     20,
		RealizedPnL:   0.4,
		Commission:    0.004,
	}
}

func TestFillAttributedToPlacementSignal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	var ids []string
	f.client.On("PlaceLimitOrder", mock.Anything, mock.Anything).Run(captureIDs(&ids)).Return(binance.Order{OrderID: 11}, nil).Once()
	f.client.On("PlaceLimitOrder", mock.Anything, mock.Anything).Run(captureIDs(&ids)).Return(binance.Order{OrderID: 12}, nil).Once()
	f.refresh.On("Refresh", mock.Anything).Return(nil)

	require.NoError(t, f.exec.EnterLong(ctx, signal(strategies.EnterLong, "first")))
	// a newer signal is placed before the first order fills
	newer := signal(strategies.EnterLong, "second")
	newer.Strategy = strategies.MACDRSI
	require.NoError(t, f.exec.EnterLong(ctx, newer))

	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
	f.exec.HandleFill(ctx, filled(11, ids[0]))
	f.exec.HandleFill(ctx, filled(11, ids[0]))
	f.settle(t)

	f.refresh.AssertNumberOfCalls(t, "Refresh", 1)
	require.Len(t, f.journal.trades, 1)
	rec := f.journal.trades[0]
	assert.Equal(t, "first", rec.Reason)
	assert.Equal(t, "mean_reversion", rec.Strategy)
	assert.Equal(t, "SidewaysOrWeak", rec.Regime)
	assert.Equal(t, "ENTER_LONG", rec.Action)
	assert.Equal(t, int64(11), rec.OrderID)
	assert.InDelta(t, 10.0, rec.Notional, 1e-9)
	// 0.4 / (10 / 5) * 100
	assert.InDelta(t, 20.0, rec.PnLPct, 1e-9)
	assert.Equal(t, 1000.0, rec.Wallet)
	assert.NotEmpty(t, rec.ID)
	assert.Len(t, f.journal.equity, 1)
	assert.Len(t, f.alerts.texts, 1)
	assert.Equal(t, 1, f.exec.Pending())
}

func TestFillFallsBackToLastPlacedThenSide(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.refresh.On("Refresh", mock.Anything).Return(nil)

	f.exec.HandleFill(ctx, filled(1, ""))
	f.settle(t)
	require.Len(t, f.journal.trades, 1)
	assert.Equal(t, "BUY", f.journal.trades[0].Action)
	assert.Empty(t, f.journal.trades[0].Strategy)

	f.client.On("CancelAllOpenOrders", mock.Anything, "XRPUSDT").Return(nil)
	f.client.On("PlaceLimitOrder", mock.Anything, mock.Anything).Return(binance.Order{OrderID: 2}, nil).Once()
	require.NoError(t, f.exec.ExitShort(ctx, signal(strategies.ExitShort, "cover")))

	// placed on another session, same symbol
	f.exec.HandleFill(ctx, filled(99, "other-01HZZZZZZZZZZZZZZZZZZZZZZZ"))
	f.settle(t)
	require.Len(t, f.journal.trades, 2)
	assert.Equal(t, "EXIT_SHORT", f.journal.trades[1].Action)
	assert.Equal(t, "cover", f.journal.trades[1].Reason)
}

func TestNonFilledIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, st := range []string{binance.StatusNew, binance.StatusPartiallyFilled, binance.StatusCanceled} {
		fl := filled(5, "")
		fl.Status = st
		f.exec.HandleFill(context.Background(), fl)
	}
	f.settle(t)
	f.refresh.AssertNotCalled(t, "Refresh", mock.Anything)
	assert.Empty(t, f.journal.trades)
}

func TestRefreshFailureStillJournals(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.refresh.On("Refresh", mock.Anything).Return(errors.New("timeout")).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.exec.HandleFill(ctx, filled(3, ""))
	f.settle(t)
	assert.Len(t, f.journal.trades, 1)
}

func TestRefreshContextSurvivesCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.refresh.On("Refresh", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok && ctx.Err() == nil
	})).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.exec.HandleFill(ctx, filled(4, ""))
	f.settle(t)
	f.refresh.AssertExpectations(t)
}

func TestTerminalReportsForgetOrders(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var ids []string
	f.client.On("PlaceLimitOrder", mock.Anything, mock.Anything).Run(captureIDs(&ids)).Return(binance.Order{OrderID: 1}, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.exec.EnterShort(context.Background(), signal(strategies.EnterShort, "")))
	}
	require.Equal(t, 3, f.exec.Pending())

	for i, st := range []string{binance.StatusCanceled, binance.StatusExpired, binance.StatusRejected} {
		fl := filled(int64(i+1), ids[i])
		fl.Status = st
		f.exec.HandleFill(context.Background(), fl)
	}
	f.settle(t)
	assert.Zero(t, f.exec.Pending())
	f.refresh.AssertNotCalled(t, "Refresh", mock.Anything)
}

// fillingClient reports every order FILLED before the REST call returns.
type fillingClient struct {
	exec   *Executor
	nextID int64
}

func (c *fillingClient) PlaceLimitOrder(ctx context.Context, o binance.LimitOrder) (binance.Order, error) {
	c.nextID++
	fl := filled(c.nextID, o.ClientOrderID)
	fl.Side = string(o.Side)
	c.exec.HandleFill(ctx, fl)
	return binance.Order{OrderID: c.nextID, ClientOrderID: o.ClientOrderID}, nil
}

func (c *fillingClient) CancelAllOpenOrders(context.Context, string) error { return nil }

func TestFillBeforePlacementResponse(t *testing.T) {
	t.Parallel()

	refresh := &mockRefresher{}
	refresh.On("Refresh", mock.Anything).Return(nil)
	j := &memJournal{}
	client := &fillingClient{}
	exec := New(Config{Leverage: 5}, client, refresh, testView(), zerolog.Nop(), WithJournal(j))
	client.exec = exec
	f := &fixture{refresh: refresh, journal: j, exec: exec}

	ctx := context.Background()
	require.NoError(t, exec.Dispatch(ctx, signal(strategies.EnterLong, "first")))
	require.NoError(t, exec.Dispatch(ctx, signal(strategies.ExitLong, "second")))
	f.settle(t)

	require.Len(t, j.trades, 2)
	byOrder := map[int64]journal.TradeRecord{}
	for _, rec := range j.trades {
		byOrder[rec.OrderID] = rec
	}
	assert.Equal(t, "ENTER_LONG", byOrder[1].Action)
	assert.Equal(t, "first", byOrder[1].Reason)
	assert.Equal(t, "EXIT_LONG", byOrder[2].Action)
	assert.Equal(t, "second", byOrder[2].Reason)
	assert.Zero(t, exec.Pending())
}

func TestWaitHonoursContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	release := make(chan struct{})
	f.refresh.On("Refresh", mock.Anything).Run(func(mock.Arguments) { <-release }).Return(nil).Once()

	f.exec.HandleFill(context.Background(), filled(6, ""))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.exec.Wait(ctx), context.DeadlineExceeded)

	close(release)
	f.settle(t)
	assert.Len(t, f.journal.trades, 1)
}

func TestTradeText(t *testing.T) {
	t.Parallel()

	tr := Trade{
		Fill:     filled(1, ""),
		Wallet:   1000,
		Action:   "EXIT_LONG",
		Leverage: 5,
		Reason:   "take profit",
	}
	want := "Wallet : 1000.0000 USDT\n" +
		"Action:\t XRPUSDT - EXIT_LONG\n" +
		"Price:\t 0.50000\n" +
		"Volume:\t 10.0000 USDT \t5x\n" +
		"PnL:\t 0.4000 USDT, 20.0000 %\n" +
		"Fee:\t 0.0040 USDT\n" +
		"Reason:\t take profit\n"
	assert.Equal(t, want, tr.Text())

	tr.Leverage = 0
	assert.Zero(t, tr.PnLPct())
}
