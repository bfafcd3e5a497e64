package journal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	tradeHeader  = []string{"trade_id", "time", "symbol", "order_id", "side", "action", "strategy", "regime", "price", "qty", "notional", "leverage", "realized_pnl", "pnl_pct", "commission", "wallet", "reason"}
	equityHeader = []string{"time", "wallet_balance", "margin_balance", "used_margin", "free_margin", "unrealized_pnl"}
)

// CSV appends to a trades file and an equity file, writing headers
// when a file is new.
type CSV struct {
	mu     sync.Mutex
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSV, error) {
	tf, tw, err := openCSV(tradesPath, tradeHeader)
	if err != nil {
		return nil, err
	}
	ef, ew, err := openCSV(equityPath, equityHeader)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}
	return &CSV{trades: tw, equity: ew, tf: tf, ef: ef}, nil
}

func openCSV(path string, header []string) (*os.File, *csv.Writer, error) {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	st, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return nil, nil, err
	}
	w := csv.NewWriter(fh)
	if st.Size() == 0 {
		if err := w.Write(header); err != nil {
			_ = fh.Close()
			return nil, nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = fh.Close()
			return nil, nil, fmt.Errorf("write header %s: %w", path, err)
		}
	}
	return fh, w, nil
}

func (j *CSV) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	err := j.trades.Write([]string{
		t.ID,
		t.Time.UTC().Format(time.RFC3339),
		t.Symbol,
		strconv.FormatInt(t.OrderID, 10),
		t.Side,
		t.Action,
		t.Strategy,
		t.Regime,
		f(t.Price),
		f(t.Qty),
		f(t.Notional),
		f(t.Leverage),
		f(t.RealizedPnL),
		f(t.PnLPct),
		f(t.Commission),
		f(t.Wallet),
		t.Reason,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSV) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	err := j.equity.Write([]string{
		e.Time.UTC().Format(time.RFC3339),
		f(e.WalletBalance),
		f(e.MarginBalance),
		f(e.UsedMargin),
		f(e.FreeMargin),
		f(e.UnrealizedPnL),
	})
	if err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades.Flush()
	j.equity.Flush()
	return errors.Join(j.trades.Error(), j.equity.Error(), j.tf.Close(), j.ef.Close())
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
