// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StreamMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "perps_stream_messages_total", Help: "Stream messages received"},
		[]string{"stream"},
	)
	StreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "perps_stream_errors_total", Help: "Stream messages dropped as malformed"},
		[]string{"stream"},
	)
	Reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "perps_stream_reconnects_total", Help: "Stream reconnect attempts"},
		[]string{"stream"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "perps_orders_total", Help: "Orders placed"},
		[]string{"symbol", "action"},
	)
	OrderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "perps_order_errors_total", Help: "Order placements that failed"},
		[]string{"symbol", "action"},
	)
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "perps_fills_total", Help: "Filled orders reconciled"},
		[]string{"symbol", "side"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "perps_signals_total", Help: "Signals produced per tick"},
		[]string{"symbol", "action"},
	)
	AlertsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "perps_alerts_dropped_total", Help: "Alerts dropped on a full queue"},
	)
	PollErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "perps_account_poll_errors_total", Help: "Account polls that failed after retries"},
	)
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "perps_tick_duration_seconds",
			Help:    "Duration of one trade cycle over all symbols",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		},
	)
	WalletBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "perps_wallet_balance", Help: "Wallet balance in USDT"},
	)
	FreeMargin = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "perps_free_margin", Help: "Available margin in USDT"},
	)
)

func init() {
	prometheus.MustRegister(
		StreamMessages, StreamErrors, Reconnects,
		OrdersTotal, OrderErrors, FillsTotal, SignalsTotal,
		AlertsDropped, PollErrors,
		TickDuration, WalletBalance, FreeMargin,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a standalone /metrics listener in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
