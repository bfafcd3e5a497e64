package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.UnixMilli(1499827319559)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("test-key", "test-secret",
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func TestSignKnownVector(t *testing.T) {
	t.Parallel()

	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	payload := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	assert.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", Sign(secret, payload))
}

func TestSignedRequest(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v2/account", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))

		q := r.URL.Query()
		assert.Equal(t, "1499827319559", q.Get("timestamp"))
		assert.Equal(t, "5000", q.Get("recvWindow"))

		raw := r.URL.RawQuery
		i := strings.LastIndex(raw, "&signature=")
		require.Positive(t, i)
		assert.Equal(t, Sign("test-secret", raw[:i]), raw[i+len("&signature="):])

		_, _ = w.Write([]byte(`{
			"totalWalletBalance":"1000.5","availableBalance":"600","totalInitialMargin":"400.5",
			"totalMarginBalance":"1010","totalUnrealizedProfit":"9.5",
			"positions":[{"symbol":"XRPUSDT","entryPrice":"0.5","positionAmt":"-100","leverage":"5","unrealizedProfit":"2","breakEvenPrice":"0.49"},
			             {"symbol":"ADAUSDT","entryPrice":"0.0","positionAmt":"0","leverage":"5","unrealizedProfit":"0","breakEvenPrice":"0"}]
		}`))
	})

	info, err := c.Account(context.Background())
	require.NoError(t, err)

	acct := info.Account(fixedNow)
	assert.Equal(t, 1000.5, acct.WalletBalance)
	assert.Equal(t, 600.0, acct.FreeMargin)
	assert.Equal(t, 400.5, acct.UsedMargin)
	assert.Equal(t, 9.5, acct.TotalUnrealizedPnL)

	require.Len(t, info.Positions, 2)
	xrp := info.Positions[0].Position(fixedNow)
	assert.Equal(t, -100.0, xrp.Amount)
	assert.Equal(t, 0.5, xrp.AvgEntryPrice)
	assert.Equal(t, 5.0, xrp.Leverage)
	assert.True(t, info.Positions[1].Position(fixedNow).IsFlat())
}

func TestAPIError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1021,"msg":"Timestamp for this request is outside of the recvWindow."}`))
	})

	_, err := c.OpenOrders(context.Background(), "XRPUSDT")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, -1021, apiErr.Code)
	assert.False(t, apiErr.Retryable())
	assert.False(t, IsRetryable(err))
}

func TestRetryableClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &APIError{Status: 429}, true},
		{"server error", &APIError{Status: 503}, true},
		{"bad request", &APIError{Status: 400}, false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.err), tt.name)
	}
}

func TestRetryRecoversFrom503(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unavailable"))
			return
		}
		_, _ = w.Write([]byte(`{"totalWalletBalance":"42"}`))
	})

	var info AccountInfo
	err := Retry(context.Background(), 5, time.Millisecond, func(ctx context.Context) error {
		var err error
		info, err = c.Account(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 42.0, info.TotalWalletBalance.Float64())
}

func TestRetryGivesUp(t *testing.T) {
	t.Parallel()

	var calls int
	err := Retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		return &APIError{Status: 500}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		return &APIError{Status: 400}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestKlines(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "XRPUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "15m", r.URL.Query().Get("interval"))
		assert.Equal(t, "260", r.URL.Query().Get("limit"))
		assert.Empty(t, r.Header.Get("X-MBX-APIKEY"))
		_, _ = w.Write([]byte(`[
			[1700000000000,"0.50","0.52","0.49","0.51","1000",1700000899999,"510",10,"500","255","0"],
			[1700000900000,"0.51","0.53","0.50","0.52","1200",1700001799999,"620",12,"600","310","0"]
		]`))
	})

	candles, err := c.Klines(context.Background(), "XRPUSDT", "15m", 260)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), candles[0].OpenTime)
	assert.Equal(t, 0.52, candles[0].High)
	assert.Equal(t, 1200.0, candles[1].Volume)

	_, err = c.Klines(context.Background(), "XRPUSDT", "15m", 0)
	assert.Error(t, err)
}

func TestPlaceLimitOrder(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fapi/v1/order", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "XRPUSDT", q.Get("symbol"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "LIMIT", q.Get("type"))
		assert.Equal(t, "GTC", q.Get("timeInForce"))
		assert.Equal(t, "20", q.Get("quantity"))
		assert.Equal(t, "0.5123", q.Get("price"))
		assert.Equal(t, "cid-1", q.Get("newClientOrderId"))
		_, _ = w.Write([]byte(`{"orderId":99,"clientOrderId":"cid-1","symbol":"XRPUSDT","side":"BUY","status":"NEW","price":"0.5123","origQty":"20"}`))
	})

	o, err := c.PlaceLimitOrder(context.Background(), LimitOrder{
		Symbol: "XRPUSDT", Side: Buy, Quantity: 20, Price: 0.5123, ClientOrderID: "cid-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(99), o.OrderID)
	assert.Equal(t, StatusNew, o.Status)

	_, err = c.PlaceLimitOrder(context.Background(), LimitOrder{Symbol: "XRPUSDT", Side: Buy, Price: 1})
	assert.Error(t, err)
}

func TestCancelAndLeverage(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		paths []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"code":200,"msg":"ok"}`))
	})

	require.NoError(t, c.CancelAllOpenOrders(context.Background(), "XRPUSDT"))
	require.NoError(t, c.ChangeLeverage(context.Background(), "XRPUSDT", 5))
	assert.Error(t, c.ChangeLeverage(context.Background(), "XRPUSDT", 0))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"DELETE /fapi/v1/allOpenOrders", "POST /fapi/v1/leverage"}, paths)
}

func TestListenKey(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))
		assert.Empty(t, r.URL.Query().Get("signature"))
		switch r.Method {
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"listenKey":"abc123"}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	})

	key, err := c.StartListenKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)
	assert.NoError(t, c.KeepAliveListenKey(context.Background()))
}

func TestClockOffset(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// server is one second behind the fixed local clock
		_, _ = w.Write([]byte(`{"serverTime":1499827318559}`))
	})

	off, err := c.ClockOffset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Second, off)
}
